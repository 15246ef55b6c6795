// Package cacheerr defines the error kinds raised across the caching
// core. Each kind is a sentinel that survives
// github.com/pkg/errors wrapping, so callers can attach context with
// errors.WithMessagef and still recover the kind via errors.Is.
package cacheerr

import "github.com/pkg/errors"

// Sentinel error kinds. Never compare these with ==; use errors.Is.
var (
	// ErrIllegalArgument signals bad configuration: non-positive load
	// factor, invalid TTL, malformed date components.
	ErrIllegalArgument = errors.New("illegal argument")

	// ErrIllegalState signals gate misuse, use of a released CachingMap,
	// or priming promotion attempted with a non-empty front.
	ErrIllegalState = errors.New("illegal state")

	// ErrConcurrentModification signals that LocalCache.Invoke could
	// not acquire its key lock within the configured wait.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrTimeout signals a blocking API exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrInterrupted signals a blocking call that returned without the
	// lock it waited for (CachingMap's per-key control lock).
	ErrInterrupted = errors.New("interrupted")

	// ErrUnsupported signals an operation on a read-only store or a
	// read-only iterator.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrNoSuchElement signals an iterator advanced past its end.
	ErrNoSuchElement = errors.New("no such element")

	// ErrClassCast signals a heterogeneous map was traversed through a
	// typed wrapper with incompatible converters.
	ErrClassCast = errors.New("class cast")
)

// IllegalArgument wraps ErrIllegalArgument with call-site context.
func IllegalArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIllegalArgument, format, args...)
}

// IllegalState wraps ErrIllegalState with call-site context.
func IllegalState(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIllegalState, format, args...)
}

// ConcurrentModification wraps ErrConcurrentModification with context.
func ConcurrentModification(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConcurrentModification, format, args...)
}

// Timeout wraps ErrTimeout with call-site context.
func Timeout(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTimeout, format, args...)
}

// Interrupted wraps ErrInterrupted with call-site context.
func Interrupted(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInterrupted, format, args...)
}

// Unsupported wraps ErrUnsupported with call-site context.
func Unsupported(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}

// NoSuchElement wraps ErrNoSuchElement with call-site context.
func NoSuchElement(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNoSuchElement, format, args...)
}

// ClassCast wraps ErrClassCast with call-site context.
func ClassCast(format string, args ...interface{}) error {
	return errors.Wrapf(ErrClassCast, format, args...)
}
