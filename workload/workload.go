// Package workload drives an executor with the four load shapes used to
// measure it: bulk spawning, cooperative yielding, one-shot ping-pong and
// chained spawning.
//
// Every workload blocks the calling goroutine until the tasks it spawned have
// signalled completion, or ctx ends.
package workload

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/Swind/go-task-executor/channel"
	"github.com/Swind/go-task-executor/core"
)

// signalCapacity bounds the completion channel every workload reports on.
const signalCapacity = 1000

// Params sizes a workload run.
type Params struct {
	Spawns int // SpawnMany: number of tasks
	Tasks  int // YieldMany: number of tasks
	Yields int // YieldMany: yields per task
	Pings  int // PingPong: number of exchanges
	Depth  int // ChainedSpawn: chain length
}

// DefaultParams returns the standard sizes for a machine with cpus processors.
func DefaultParams(cpus int) Params {
	if cpus < 1 {
		cpus = 1
	}
	return Params{
		Spawns: 10_000,
		Tasks:  50 * cpus,
		Yields: 1_000,
		Pings:  1_000,
		Depth:  1_000,
	}
}

// Workload is a named, runnable load shape.
type Workload struct {
	Name        string
	Description string
	Run         func(ctx context.Context, h *core.Handle, p Params) error
}

var registry = map[string]Workload{
	"spawn_many": {
		Name:        "spawn_many",
		Description: "spawn many tiny tasks from outside the pool",
		Run: func(ctx context.Context, h *core.Handle, p Params) error {
			return SpawnMany(ctx, h, p.Spawns)
		},
	},
	"yield_many": {
		Name:        "yield_many",
		Description: "many tasks that each yield back to the scheduler repeatedly",
		Run: func(ctx context.Context, h *core.Handle, p Params) error {
			return YieldMany(ctx, h, p.Tasks, p.Yields)
		},
	},
	"ping_pong": {
		Name:        "ping_pong",
		Description: "paired tasks exchanging one-shot messages",
		Run: func(ctx context.Context, h *core.Handle, p Params) error {
			return PingPong(ctx, h, p.Pings)
		},
	},
	"chained_spawn": {
		Name:        "chained_spawn",
		Description: "each task spawns its successor until the chain ends",
		Run: func(ctx context.Context, h *core.Handle, p Params) error {
			return ChainedSpawn(ctx, h, p.Depth)
		},
	},
}

// All returns every workload sorted by name.
func All() []Workload {
	out := make([]Workload, 0, len(registry))
	for _, w := range registry {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a workload by name.
func Lookup(name string) (Workload, bool) {
	w, ok := registry[name]
	return w, ok
}

// must turns a failure inside a step into a task panic, which the executor
// records as that task's *core.PanicError.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

// countdown fires done once after n calls to tick.
type countdown struct {
	left atomic.Int64
	done *channel.Sender[struct{}]
}

func newCountdown(n int, done *channel.Sender[struct{}]) *countdown {
	c := &countdown{done: done}
	c.left.Store(int64(n))
	return c
}

func (c *countdown) tick() {
	if c.left.Add(-1) == 0 {
		must(c.done.TrySend(struct{}{}))
	}
}

// fail closes done so the waiting caller gets ErrChannelClosed, then panics
// with err to fail the calling task.
func (c *countdown) fail(err error) {
	c.done.Close()
	panic(err)
}

func awaitSignals(ctx context.Context, rx *channel.Receiver[struct{}], n int) error {
	for i := range n {
		if _, err := rx.Recv(ctx); err != nil {
			return fmt.Errorf("waiting for completion %d of %d: %w", i+1, n, err)
		}
	}
	return nil
}

// =============================================================================
// Workloads
// =============================================================================

// SpawnMany spawns n tasks from the calling goroutine. Each decrements a
// shared counter; the last one signals.
func SpawnMany(ctx context.Context, h *core.Handle, n int) error {
	if n <= 0 {
		return nil
	}
	tx, rx := channel.NewBounded[struct{}](signalCapacity)
	defer rx.Close()
	cd := newCountdown(n, tx)

	for range n {
		if _, err := h.Spawn(func(cx *core.Context) core.Poll {
			cd.tick()
			return core.Ready
		}); err != nil {
			return err
		}
	}
	return awaitSignals(ctx, rx, 1)
}

// YieldMany spawns tasks tasks that each yield yields times before signalling.
// Every task signals, so the caller receives tasks signals. The completion
// channel holds one slot per task, so signalling never blocks a worker.
func YieldMany(ctx context.Context, h *core.Handle, tasks, yields int) error {
	if tasks <= 0 {
		return nil
	}
	tx, rx := channel.NewBounded[struct{}](max(tasks, signalCapacity))
	defer rx.Close()

	for range tasks {
		if _, err := h.Spawn(core.Yield(yields, func(cx *core.Context) core.Poll {
			must(tx.TrySend(struct{}{}))
			return core.Ready
		})); err != nil {
			return err
		}
	}
	return awaitSignals(ctx, rx, tasks)
}

// PingPong runs pings request/response exchanges. A root task spawns one
// ping task per exchange; each ping spawns its partner, sends it a one-shot
// and waits for the reply on a second one-shot.
func PingPong(ctx context.Context, h *core.Handle, pings int) error {
	if pings <= 0 {
		return nil
	}
	tx, rx := channel.NewBounded[struct{}](signalCapacity)
	defer rx.Close()
	cd := newCountdown(pings, tx)

	if _, err := h.Spawn(func(cx *core.Context) core.Poll {
		for range pings {
			_, err := cx.Spawn(ping(cd))
			must(err)
		}
		return core.Ready
	}); err != nil {
		return err
	}
	return awaitSignals(ctx, rx, 1)
}

func ping(cd *countdown) core.Step {
	var reply *channel.OneshotReceiver[struct{}]
	return func(cx *core.Context) core.Poll {
		if reply == nil {
			tx1, rx1 := channel.NewOneshot[struct{}]()
			tx2, rx2 := channel.NewOneshot[struct{}]()
			if _, err := cx.Spawn(pong(rx1, tx2)); err != nil {
				tx1.Close()
				rx2.Close()
				cd.fail(err)
			}
			if err := tx1.Send(struct{}{}); err != nil {
				rx2.Close()
				cd.fail(err)
			}
			reply = rx2
		}

		_, p, err := reply.Poll(cx)
		if p == core.Pending {
			return core.Pending
		}
		if err != nil {
			cd.fail(err)
		}
		cd.tick()
		return core.Ready
	}
}

// pong answers one ping. tx is closed on any failure so the ping observes
// ErrChannelClosed instead of waiting forever.
func pong(rx *channel.OneshotReceiver[struct{}], tx *channel.OneshotSender[struct{}]) core.Step {
	return func(cx *core.Context) core.Poll {
		_, p, err := rx.Poll(cx)
		if p == core.Pending {
			return core.Pending
		}
		if err != nil {
			tx.Close()
			panic(err)
		}
		must(tx.Send(struct{}{}))
		return core.Ready
	}
}

// ChainedSpawn builds a chain of depth tasks. Each link spawns the next
// through the captured Handle and returns; the final link signals. Spawning
// is queued, so the chain never grows the stack.
func ChainedSpawn(ctx context.Context, h *core.Handle, depth int) error {
	tx, rx := channel.NewBounded[struct{}](signalCapacity)
	defer rx.Close()

	if _, err := h.Spawn(link(h, depth, tx)); err != nil {
		return err
	}
	return awaitSignals(ctx, rx, 1)
}

func link(h *core.Handle, n int, done *channel.Sender[struct{}]) core.Step {
	return func(cx *core.Context) core.Poll {
		if n <= 0 {
			must(done.TrySend(struct{}{}))
			return core.Ready
		}
		_, err := h.Spawn(link(h, n-1, done))
		must(err)
		return core.Ready
	}
}
