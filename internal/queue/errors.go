package queue

import (
	"errors"
	"fmt"
)

// ErrorKind classifies queue operation failures so callers branch on kind
// instead of matching error text.
type ErrorKind string

const (
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindNotFound           ErrorKind = "not_found"
	KindInvalidState       ErrorKind = "invalid_state"
)

type QueueError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *QueueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("queue %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("queue %s: %s", e.Op, e.Kind)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

func newQueueError(op string, kind ErrorKind, err error) *QueueError {
	return &QueueError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the queue error kind; unclassified errors count as backend
// failures, the conservative default for an external store.
func KindOf(err error) ErrorKind {
	var qe *QueueError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindBackendUnavailable
}
