package task

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned to every caller attached to a request that
	// was removed from the queue before it started.
	ErrCancelled = errors.New("request cancelled")

	// ErrQueueCleared is returned when ClearQueue removed the request.
	// It wraps ErrCancelled.
	ErrQueueCleared = fmt.Errorf("%w: queue cleared", ErrCancelled)

	// ErrUnkeyableParams is returned when request parameters cannot be
	// serialized into a request key and no explicit key was given.
	ErrUnkeyableParams = errors.New("request parameters cannot form a key")

	// ErrOperationPanicked is returned when an operation panics.
	ErrOperationPanicked = errors.New("operation panicked")

	// ErrResultType is returned by the generic Submit when a shared result
	// does not have the caller's type.
	ErrResultType = errors.New("unexpected result type")
)
