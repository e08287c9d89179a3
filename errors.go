package gazecapture

import (
	"errors"
	"fmt"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// ErrorKind classifies a failed native call.
type ErrorKind int

const (
	// KindInvalidArgument indicates a caller error (bad handle, bad address, bad parameter)
	KindInvalidArgument ErrorKind = iota
	// KindNotFound indicates the requested device or resource is not available
	KindNotFound
	// KindConnectionFailed indicates a lost or failed device link (transient)
	KindConnectionFailed
	// KindTimedOut indicates no data arrived in time (transient, not a failure)
	KindTimedOut
	// KindUnsupported indicates the device or SDK does not support the operation
	KindUnsupported
	// KindInternal indicates an SDK internal or allocation failure
	KindInternal
	// KindUnknown indicates any other status code
	KindUnknown
)

// String returns a human-readable name of the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindConnectionFailed:
		return "connection failed"
	case KindTimedOut:
		return "timed out"
	case KindUnsupported:
		return "unsupported"
	case KindInternal:
		return "internal error"
	default:
		return "unknown"
	}
}

// Error is the typed error produced from a native status code.
//
// Use errors.Is with the Err* kind sentinels to test the kind:
//
//	if errors.Is(err, gazecapture.ErrConnectionFailed) { ... }
type Error struct {
	// Op is the native operation that failed (e.g. "wait_for_callbacks")
	Op string
	// Kind is the classified error kind
	Kind ErrorKind
	// Code is the underlying native status
	Code native.Status
}

func (e *Error) Error() string {
	if e.Kind == KindUnknown {
		return fmt.Sprintf("gaze-capture: %s: %s (code %d: %s)", e.Op, e.Kind, int(e.Code), e.Code)
	}
	return fmt.Sprintf("gaze-capture: %s: %s (code %d)", e.Op, e.Kind, int(e.Code))
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && ErrorKind(k) == e.Kind
}

type kindSentinel ErrorKind

func (k kindSentinel) Error() string { return "gaze-capture: " + ErrorKind(k).String() }

// Kind sentinels, matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidArgument  error = kindSentinel(KindInvalidArgument)
	ErrNotFound         error = kindSentinel(KindNotFound)
	ErrConnectionFailed error = kindSentinel(KindConnectionFailed)
	ErrTimedOut         error = kindSentinel(KindTimedOut)
	ErrUnsupported      error = kindSentinel(KindUnsupported)
	ErrInternal         error = kindSentinel(KindInternal)
	ErrUnknown          error = kindSentinel(KindUnknown)
)

// Lifecycle errors.
var (
	ErrClosed         = errors.New("gaze-capture: resource is closed")
	ErrHandleReleased = errors.New("gaze-capture: handle already released")
	ErrNilConsumer    = errors.New("gaze-capture: nil consumer")
)

// kindOf maps every native status onto the error taxonomy.
func kindOf(st native.Status) ErrorKind {
	switch st {
	case native.StatusInvalidParameter:
		return KindInvalidArgument
	case native.StatusNotAvailable:
		return KindNotFound
	case native.StatusConnectionFailed, native.StatusConnectionFailedDriver:
		return KindConnectionFailed
	case native.StatusTimedOut:
		return KindTimedOut
	case native.StatusNotSupported:
		return KindUnsupported
	case native.StatusInternal, native.StatusAllocationFailed:
		return KindInternal
	default:
		return KindUnknown
	}
}

// statusError is the single translation point from native status codes to
// Go errors. It returns nil for StatusOK and an *Error otherwise.
func statusError(op string, st native.Status) error {
	if st == native.StatusOK {
		return nil
	}
	return &Error{Op: op, Kind: kindOf(st), Code: st}
}

// KindOf returns the kind of err if it is (or wraps) an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsTransient reports whether err is a timeout or a lost connection, the two
// conditions the poll loop recovers from locally.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimedOut) || errors.Is(err, ErrConnectionFailed)
}
