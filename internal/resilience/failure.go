package resilience

import (
	"context"
	"errors"
	"fmt"
)

// Failure is the typed error surfaced when an operation cannot be completed.
type Failure struct {
	Kind      ErrorKind
	Attempts  int  // attempts made before giving up
	Timeout   bool // the last attempt breached its deadline
	Cancelled bool // the caller's context ended the run
	Fallback  bool // the error came from the fallback, not the operation
	Err       error
}

func (f *Failure) Error() string {
	switch {
	case f.Cancelled:
		return fmt.Sprintf("%s: cancelled after %d attempt(s): %v", f.Kind, f.Attempts, f.Err)
	case f.Fallback:
		return fmt.Sprintf("%s: fallback failed: %v", f.Kind, f.Err)
	case f.Attempts > 0:
		return fmt.Sprintf("%s: failed after %d attempt(s): %v", f.Kind, f.Attempts, f.Err)
	default:
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure tags err with kind. Returns nil for a nil err.
func NewFailure(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Kind: kind, Err: err}
}

// KindOf returns the ErrorKind of the outermost Failure in err's chain,
// or KindUnknown if there is none.
func KindOf(err error) ErrorKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether err represents a caller cancellation rather
// than an ordinary failure.
func IsCancelled(err error) bool {
	var f *Failure
	if errors.As(err, &f) && f.Cancelled {
		return true
	}
	return errors.Is(err, context.Canceled)
}
