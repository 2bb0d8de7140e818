package content

import (
	"context"
	"errors"

	"filebox/internal/hasher"
	"filebox/internal/store"
)

// Error kinds. Callers match them with errors.Is.
var (
	// ErrIO means the incoming stream could not be read in full.
	ErrIO = errors.New("io error")
	// ErrStorage means the database or payload storage failed.
	ErrStorage = errors.New("storage error")
	// ErrInvalid means the request itself is malformed.
	ErrInvalid = errors.New("invalid argument")
	// ErrNotFound means the requested file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the file belongs to another owner.
	ErrForbidden = errors.New("forbidden")
	// ErrQuotaExceeded means the owner may not store more files.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrBlobGone means a candidate blob was deleted between lookup and
	// mutation. The resolver retries when it sees it.
	ErrBlobGone = errors.New("blob no longer exists")
)

// Error carries the failed operation, its kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// E builds an *Error of the given kind.
func E(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// classify wraps err with the kind it belongs to. Context errors stay
// kindless so cancellation is reported as such.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, Err: err}
	}
	var readErr *hasher.ReadError
	if errors.As(err, &readErr) {
		return &Error{Op: op, Kind: ErrIO, Err: err}
	}
	if errors.Is(err, store.ErrBlobNotFound) {
		return &Error{Op: op, Kind: ErrBlobGone, Err: err}
	}
	return &Error{Op: op, Kind: ErrStorage, Err: err}
}
