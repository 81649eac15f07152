// Package taskexec is a multi-threaded cooperative task executor for Go.
//
// Work is expressed as tasks: resumable steps that run on a fixed pool of
// worker goroutines. A step returns Ready when the task is finished or
// Pending when it must wait, after handing a Waker to whatever will make
// progress possible. Waking a task puts it back on a run queue exactly once,
// no matter how many wakers fire.
//
// # Quick Start
//
// Run a root task on a temporary executor and wait for it:
//
//	err := taskexec.Run(ctx, 4, func(cx *taskexec.Context) taskexec.Poll {
//		fmt.Println("hello from", cx.TaskID())
//		return taskexec.Ready
//	})
//
// For a long-lived pool, create an Executor and spawn onto it from anywhere:
//
//	exec, err := taskexec.NewExecutor("app", 4)
//	if err != nil {
//		return err
//	}
//	defer exec.Shutdown(ctx)
//
//	h, err := exec.Spawn(step)
//	if err != nil {
//		return err
//	}
//	err = h.Wait(ctx)
//
// # Key Concepts
//
// Executor: owns the workers and run queues. Each worker keeps a bounded local
// queue; spawns from outside a worker go through a shared injector queue, and
// idle workers steal half of a busy sibling's queue.
//
// Step: one slice of a task's work. A step must not block; it yields by
// returning Pending.
//
// Waker: a cloneable reference that reschedules a suspended task. A task
// that suspends with no live waker can never run again; it is completed
// with ErrTaskOrphaned.
//
// Handle: a lightweight reference for spawning onto an executor from tasks or
// goroutines that outlive the caller. There is no package-level executor;
// tasks reach theirs through Context or a captured Handle.
//
// # Shutdown
//
// Shutdown stops accepting spawns and, in ShutdownDrain mode, waits for every
// live task to finish. ShutdownAbandon stops workers after their current
// step. Either way, later spawns fail with ErrPoolClosed.
//
// # Subpackages
//
//	core                      executor, tasks, wakers, run queues
//	channel                   oneshot and bounded channels usable from tasks
//	workload                  reference workloads and benchmarks
//	observability/prometheus  Prometheus exporter and snapshot poller
package taskexec
