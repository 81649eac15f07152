package core

import "context"

// Handle is a cheap reference to an Executor for spawning from code that
// outlives its caller. Tasks that spawn successors capture one.
type Handle struct {
	exec *Executor
}

func (h *Handle) Spawn(step Step) (*JoinHandle, error) {
	return h.exec.spawn("", step, nil)
}

func (h *Handle) SpawnNamed(name string, step Step) (*JoinHandle, error) {
	return h.exec.spawn(name, step, nil)
}

func (h *Handle) SpawnFunc(f func(ctx context.Context)) (*JoinHandle, error) {
	return h.exec.spawn("", Func(f), nil)
}

// IsClosed reports whether the executor has begun shutting down.
func (h *Handle) IsClosed() bool {
	return h.exec.IsClosed()
}

// ExecutorID returns the ID of the executor behind the handle.
func (h *Handle) ExecutorID() string {
	return h.exec.id
}
