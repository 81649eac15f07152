package core

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned by Spawn once shutdown has begun, and reported
	// by JoinHandles of tasks that were abandoned by a hard stop.
	ErrPoolClosed = errors.New("executor: pool closed")

	// ErrTaskOrphaned completes a suspended task whose last Waker was dropped.
	// Nothing can ever schedule such a task again.
	ErrTaskOrphaned = errors.New("executor: suspended task has no wakers left")

	// ErrInvalidConfig is wrapped by NewExecutor when the config is rejected.
	ErrInvalidConfig = errors.New("executor: invalid config")

	// ErrWorkerStart is wrapped by NewExecutor when a worker fails to come up.
	ErrWorkerStart = errors.New("executor: worker failed to start")

	// ErrNilStep is returned when spawning a nil Step.
	ErrNilStep = errors.New("executor: nil step")
)

// PanicError is the failure a task completes with when its step panics.
type PanicError struct {
	TaskID TaskID
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("executor: %s panicked: %v", e.TaskID, e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
