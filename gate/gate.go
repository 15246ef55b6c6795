// Package gate implements ThreadGate: a many-reader/one-writer
// coordinator with lock promotion and reentrancy. CachingMap uses it
// to serialize its strategy promotion (which truncates the front)
// against per-key operations (get, put, remove); LocalCache.LockAll
// closes one.
//
// State is a single packed 64-bit word: {status, enterCount}, and
// every transition is CAS-only. The wide word leaves headroom above
// the 2^30-1 enter-count ceiling without changing the packing scheme.
package gate

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Krishna8167/coherentcache/cacheerr"
)

// Status is the gate's lifecycle state.
type Status int32

const (
	Open Status = iota
	Closing
	Closed
	Destroyed
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

const (
	// maxEnters bounds reentrancy at 2^30-1.
	maxEnters = 1<<30 - 1

	statusShift = 32
	countMask   = 1<<32 - 1
)

func pack(status Status, count uint32) uint64 {
	return uint64(status)<<statusShift | uint64(count)
}

func unpack(word uint64) (Status, uint32) {
	return Status(word >> statusShift), uint32(word & countMask)
}

// Token identifies a logical "thread" for reentrancy/promotion
// purposes. The core has no OS thread-local storage to key off, so
// callers supply a stable token scoped to the logical caller (e.g.
// the control-map key holder, or a per-goroutine counter).
type Token int64

// Gate is a ThreadGate: many-reader/one-writer with reentrancy
// and lock promotion. The zero value is not usable; construct with
// New.
type Gate struct {
	word atomic.Uint64

	mu           sync.Mutex
	waitCh       chan struct{} // closed and replaced on every state change
	entersByTok  map[int64]uint32
	closingToken int64 // token owning the close/closing transition; 0 = none
	closeWaiters uint32
}

// New returns an open Gate.
func New() *Gate {
	g := &Gate{
		waitCh:      make(chan struct{}),
		entersByTok: make(map[int64]uint32),
	}
	g.word.Store(pack(Open, 0))
	return g
}

func (g *Gate) notifyLocked() {
	close(g.waitCh)
	g.waitCh = make(chan struct{})
}

func (g *Gate) notify() {
	g.mu.Lock()
	g.notifyLocked()
	g.mu.Unlock()
}

func (g *Gate) enterCountFor(tok Token) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entersByTok[int64(tok)]
}

func (g *Gate) bumpEnterCountLocked(tok Token, delta int32) {
	cur := g.entersByTok[int64(tok)]
	next := int32(cur) + delta
	if next <= 0 {
		delete(g.entersByTok, int64(tok))
		return
	}
	g.entersByTok[int64(tok)] = uint32(next)
}

func (g *Gate) isClosingOwner(tok Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closingToken != 0 && g.closingToken == int64(tok)
}

// waitForChange blocks until the next state change or the deadline,
// returning false on timeout. hasDeadline=false waits forever.
func (g *Gate) waitForChange(deadline time.Time, hasDeadline bool) bool {
	g.mu.Lock()
	ch := g.waitCh
	g.mu.Unlock()

	if !hasDeadline {
		<-ch
		return true
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

func deadlineFor(timeout time.Duration) (time.Time, bool) {
	if timeout < 0 {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

// Enter acquires non-exclusive access for tok, waiting up to timeout
// (zero means no wait, negative means wait forever). Unless the gate is
// destroyed, it succeeds immediately regardless of status if tok is the
// thread currently closing the gate (lock promotion / reentrant
// close-owner enters).
func (g *Gate) Enter(tok Token, timeout time.Duration) error {
	deadline, hasDeadline := deadlineFor(timeout)

	for {
		word := g.word.Load()
		status, count := unpack(word)

		if status == Destroyed {
			return cacheerr.IllegalState("gate: enter on destroyed gate")
		}

		if status == Open || g.isClosingOwner(tok) {
			if count >= maxEnters {
				return cacheerr.IllegalState("gate: enter count exhausted")
			}
			if g.word.CompareAndSwap(word, pack(status, count+1)) {
				g.mu.Lock()
				g.bumpEnterCountLocked(tok, 1)
				g.mu.Unlock()
				return nil
			}
			continue
		}

		if timeout == 0 {
			return cacheerr.Timeout("gate: enter timed out")
		}
		if !g.waitForChange(deadline, hasDeadline) {
			return cacheerr.Timeout("gate: enter timed out")
		}
	}
}

// Exit releases one non-exclusive access previously obtained by Enter.
func (g *Gate) Exit(tok Token) {
	for {
		word := g.word.Load()
		status, count := unpack(word)
		if count == 0 {
			return
		}
		if g.word.CompareAndSwap(word, pack(status, count-1)) {
			g.mu.Lock()
			g.bumpEnterCountLocked(tok, -1)
			g.notifyLocked()
			g.mu.Unlock()
			return
		}
	}
}

// BarEntry transitions open -> closing: blocks new Enter calls from
// threads other than tok, but does not wait for active enters to
// drain. Every successful BarEntry must eventually be matched by Open
// (directly, or via the Close it leads into).
func (g *Gate) BarEntry(tok Token, timeout time.Duration) error {
	deadline, hasDeadline := deadlineFor(timeout)
	for {
		word := g.word.Load()
		status, count := unpack(word)
		switch {
		case status == Destroyed:
			return cacheerr.IllegalState("gate: barEntry on destroyed gate")
		case status == Open:
			if g.word.CompareAndSwap(word, pack(Closing, count)) {
				g.mu.Lock()
				g.closingToken = int64(tok)
				g.notifyLocked()
				g.mu.Unlock()
				return nil
			}
		case status == Closing && g.isClosingOwner(tok):
			return nil // reentrant
		default:
			if timeout == 0 {
				return cacheerr.Timeout("gate: barEntry timed out")
			}
			if !g.waitForChange(deadline, hasDeadline) {
				return cacheerr.Timeout("gate: barEntry timed out")
			}
		}
	}
}

func (g *Gate) revertBar(tok Token) {
	for {
		word := g.word.Load()
		status, count := unpack(word)
		if status != Closing || !g.isClosingOwner(tok) {
			return
		}
		if g.word.CompareAndSwap(word, pack(Open, count)) {
			g.mu.Lock()
			g.closingToken = 0
			g.notifyLocked()
			g.mu.Unlock()
			return
		}
	}
}

// Close acquires exclusive access: bars entry (if not already barred
// by tok) and waits for the active-enter count to reach zero, modulo
// tok's own reentrant enters (those are temporarily discounted for the
// duration of Close and restored on Open, implementing lock
// promotion: a thread that has Entered may Close). On timeout, any
// transition Close itself initiated (barring entry) is rolled back.
func (g *Gate) Close(tok Token, timeout time.Duration) error {
	deadline, hasDeadline := deadlineFor(timeout)

	barredHere := false
	status, _ := unpack(g.word.Load())
	switch status {
	case Open:
		if err := g.BarEntry(tok, timeout); err != nil {
			return err
		}
		barredHere = true
	case Closing:
		if !g.isClosingOwner(tok) {
			return cacheerr.IllegalState("gate: close by non-owner while closing")
		}
	case Closed:
		if g.isClosingOwner(tok) {
			g.mu.Lock()
			g.closeWaiters++
			g.mu.Unlock()
			return nil // reentrant promotion
		}
		return cacheerr.IllegalState("gate: close while closed by another thread")
	default:
		return cacheerr.IllegalState("gate: close on destroyed gate")
	}

	ownTok := g.enterCountFor(tok)

	for {
		word := g.word.Load()
		st, count := unpack(word)
		if st == Destroyed {
			return cacheerr.IllegalState("gate: destroyed while closing")
		}
		if count == ownTok {
			if g.word.CompareAndSwap(word, pack(Closed, count)) {
				g.mu.Lock()
				g.closeWaiters++
				g.notifyLocked()
				g.mu.Unlock()
				return nil
			}
			continue
		}
		if timeout == 0 {
			if barredHere {
				g.revertBar(tok)
			}
			return cacheerr.Timeout("gate: close timed out")
		}
		if !g.waitForChange(deadline, hasDeadline) {
			if barredHere {
				g.revertBar(tok)
			}
			return cacheerr.Timeout("gate: close timed out")
		}
	}
}

// Open may only be called by the thread that closed (or barred) the
// gate. Each call decrements an internal close-owner count; at zero
// the gate returns to Open and waiters are notified.
func (g *Gate) Open(tok Token) error {
	g.mu.Lock()
	if g.closingToken == 0 || g.closingToken != int64(tok) {
		g.mu.Unlock()
		return cacheerr.IllegalState("gate: open by non-owner")
	}
	if g.closeWaiters > 0 {
		g.closeWaiters--
	}
	remaining := g.closeWaiters
	g.mu.Unlock()

	if remaining > 0 {
		return nil
	}

	for {
		word := g.word.Load()
		status, count := unpack(word)
		if status == Destroyed {
			return cacheerr.IllegalState("gate: open on destroyed gate")
		}
		if g.word.CompareAndSwap(word, pack(Open, count)) {
			g.mu.Lock()
			g.closingToken = 0
			g.notifyLocked()
			g.mu.Unlock()
			return nil
		}
	}
}

// Destroy permanently closes the gate. Only the current closing owner
// may call it, and only from the Closed state.
func (g *Gate) Destroy(tok Token) error {
	if !g.isClosingOwner(tok) {
		return cacheerr.IllegalState("gate: destroy by non-owner")
	}

	for {
		word := g.word.Load()
		status, count := unpack(word)
		if status != Closed {
			return cacheerr.IllegalState("gate: destroy requires closed status")
		}
		if g.word.CompareAndSwap(word, pack(Destroyed, count)) {
			g.notify()
			return nil
		}
	}
}

// Status returns the gate's current lifecycle state and active enter
// count, for diagnostics.
func (g *Gate) Status() (Status, uint32) {
	return unpack(g.word.Load())
}
