package cachingmap

import (
	"github.com/Krishna8167/coherentcache/event"
)

// invalidationListener is the listener CachingMap installs on the back
// tier. It is synchronous so events are applied on the
// producer's goroutine, in arrival order. priming selects the
// PrimingListener variant used by the present/auto strategies.
type invalidationListener[K comparable, V any] struct {
	cm      *CachingMap[K, V]
	priming bool
}

func (l *invalidationListener[K, V]) Synchronous() bool { return true }
func (l *invalidationListener[K, V]) Priming() bool     { return l.priming }

func (l *invalidationListener[K, V]) EntryInserted(e event.CacheEvent[K, V]) error {
	l.cm.onBackEvent(e)
	return nil
}

func (l *invalidationListener[K, V]) EntryUpdated(e event.CacheEvent[K, V]) error {
	l.cm.onBackEvent(e)
	return nil
}

func (l *invalidationListener[K, V]) EntryDeleted(e event.CacheEvent[K, V]) error {
	l.cm.onBackEvent(e)
	return nil
}

// deactivationListener reacts to back-tier destroy/truncate.
type deactivationListener[K comparable, V any] struct {
	cm *CachingMap[K, V]
}

func (d *deactivationListener[K, V]) CacheDestroyed() { d.cm.Release() }

func (d *deactivationListener[K, V]) CacheTruncated() { d.cm.truncateFront() }
