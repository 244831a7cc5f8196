package capability

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies an invocation failure for the retry policy.
type FailureKind string

const (
	// FailureTransient covers failures that a re-invocation may clear:
	// network timeouts, rate limits, flaky upstreams.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers failures that retrying cannot fix, such
	// as invalid input or a policy denial.
	FailurePermanent FailureKind = "permanent"
)

// Failure is the error type every capability returns on a failed
// invocation.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Transientf builds a retryable failure.
func Transientf(format string, args ...any) error {
	return &Failure{Kind: FailureTransient, Message: fmt.Sprintf(format, args...)}
}

// Permanentf builds a non-retryable failure.
func Permanentf(format string, args ...any) error {
	return &Failure{Kind: FailurePermanent, Message: fmt.Sprintf(format, args...)}
}

// WrapTransient attaches a cause to a retryable failure.
func WrapTransient(err error, message string) error {
	return &Failure{Kind: FailureTransient, Message: message, Err: err}
}

// WrapPermanent attaches a cause to a non-retryable failure.
func WrapPermanent(err error, message string) error {
	return &Failure{Kind: FailurePermanent, Message: message, Err: err}
}

// Retryable reports whether the executor may re-invoke after err.
// Deadline expiry is always retryable; unclassified errors from
// underlying clients are treated as transient since they are almost
// always network conditions.
func Retryable(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind == FailureTransient
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
