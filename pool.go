package taskexec

import (
	"context"
	"errors"

	"github.com/Swind/go-task-executor/core"
)

// NewExecutor creates and starts an executor with the given number of
// workers and default handlers. workers <= 0 means runtime.NumCPU().
func NewExecutor(id string, workers int) (*Executor, error) {
	if workers < 0 {
		workers = 0
	}
	return core.NewExecutor(&core.ExecutorConfig{
		ID:      id,
		Workers: workers,
	})
}

// Run starts a temporary executor, spawns root on it and waits for root to
// complete. The executor is then drained and stopped, so tasks root spawned
// without awaiting are still finished before Run returns, unless ctx ends
// first.
//
// Run returns root's failure, if any, joined with a shutdown error.
func Run(ctx context.Context, workers int, root Step) error {
	exec, err := NewExecutor("", workers)
	if err != nil {
		return err
	}

	h, err := exec.Spawn(root)
	if err != nil {
		exec.Stop()
		return err
	}

	runErr := h.Wait(ctx)
	if err := exec.Shutdown(ctx); err != nil && !errors.Is(runErr, err) {
		return errors.Join(runErr, err)
	}
	return runErr
}

// RunFunc is Run for a run-to-completion closure.
func RunFunc(ctx context.Context, workers int, f func(ctx context.Context)) error {
	return Run(ctx, workers, core.Func(f))
}
