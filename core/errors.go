package core

import "fmt"

// Error taxonomy per §7. These are observable kinds, not exhaustive type
// hierarchies: callers type-switch or errors.As against the handful of
// wrapper types below, and read the reason string for detail.

// RejectedError is returned for a pre-delivery refusal: no response is
// stored and the caller is not charged.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return fmt.Sprintf("rejected: %s", e.Reason) }

// NewRejected builds a RejectedError with a formatted reason.
func NewRejected(format string, args ...any) *RejectedError {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// TransactionFailedError is informational: it is carried inside a stored
// *failed* response, not returned to the caller as a Go error, but the type
// exists so the response builder and tests can reason about failure causes
// uniformly with rejections/exceptions.
type TransactionFailedError struct {
	Cause Cause
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction failed: %s: %s", e.Cause.ClassOfCause, e.Cause.MessageOfCause)
}

// NodeException wraps an internal invariant violation crossing the node
// boundary; never stored in the store.
type NodeException struct {
	Err error
}

func (e *NodeException) Error() string { return fmt.Sprintf("node exception: %v", e.Err) }
func (e *NodeException) Unwrap() error { return e.Err }

// WrapNodeException wraps err as a NodeException, per §7's propagation
// rule for errors crossing the node boundary.
func WrapNodeException(err error) error {
	if err == nil {
		return nil
	}
	return &NodeException{Err: err}
}

// StoreException wraps an error crossing the store boundary.
type StoreException struct {
	Err error
}

func (e *StoreException) Error() string { return fmt.Sprintf("store exception: %v", e.Err) }
func (e *StoreException) Unwrap() error { return e.Err }

// WrapStoreException wraps err as a StoreException, per §7's propagation
// rule for errors crossing the store boundary.
func WrapStoreException(err error) error {
	if err == nil {
		return nil
	}
	return &StoreException{Err: err}
}

// UnknownReferenceError is a lookup miss for a TR or SR.
type UnknownReferenceError struct {
	Reference fmt.Stringer
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown reference: %s", e.Reference)
}

// UninitializedNodeError is raised specifically when the manifest is not
// yet set, distinguished from a generic UnknownReferenceError per §7.
type UninitializedNodeError struct{}

func (e *UninitializedNodeError) Error() string { return "node is not yet initialized" }

// PollingTimeoutError is raised when get_polled_response exhausts its
// polling budget without a recorded outcome.
type PollingTimeoutError struct {
	Reference TransactionReference
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("polling timed out waiting for %s", e.Reference)
}

// InterruptedError surfaces a cancelled polling wait.
type InterruptedError struct {
	Reference TransactionReference
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted while polling for %s", e.Reference)
}
