package core

import (
	"math/rand/v2"
	"sync/atomic"
)

const injectorBatch = 32

// TaskScheduler owns the run queues: one unbounded injector shared by
// everyone and one bounded local ring per worker. Idle workers park on a
// buffered signal channel; every push drops a token into it.
type TaskScheduler struct {
	injector *InjectorQueue
	locals   []*localQueue
	signal   chan struct{}

	workerCount        int
	stealAttempts      int
	globalPollInterval uint32

	metricQueued atomic.Int64 // Waiting in a run queue
	metricActive atomic.Int32 // Being stepped by a worker
	metricSteals atomic.Uint64

	poolID  string
	metrics Metrics
}

func NewTaskScheduler(workerCount int, config *ExecutorConfig) *TaskScheduler {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	cfg := config.withDefaults()
	s := &TaskScheduler{
		injector:           NewInjectorQueue(),
		locals:             make([]*localQueue, workerCount),
		signal:             make(chan struct{}, workerCount*2),
		workerCount:        workerCount,
		stealAttempts:      cfg.StealAttempts,
		globalPollInterval: uint32(cfg.GlobalPollInterval),
		poolID:             cfg.ID,
		metrics:            cfg.Metrics,
	}
	for i := range s.locals {
		s.locals[i] = newLocalQueue(cfg.LocalQueueCapacity)
	}
	return s
}

// Schedule pushes a runnable cell. from is the index of the worker doing the
// push, or -1 for any other goroutine; worker pushes stay local.
func (s *TaskScheduler) Schedule(c *taskCell, from int) {
	s.metricQueued.Add(1)

	if from >= 0 && from < len(s.locals) {
		if overflow := s.locals[from].push(c); overflow != nil {
			s.injector.PushBatch(overflow)
		}
	} else {
		s.injector.Push(c)
	}

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full: enough tokens are buffered to wake every
		// parked worker, and the task is already queued.
	}
}

// GetWork (Called by Worker) blocks until a cell is available or stopCh closes.
func (s *TaskScheduler) GetWork(id int, tick uint32, stopCh <-chan struct{}) (*taskCell, bool) {
	for {
		select {
		case <-stopCh:
			return nil, false
		default:
		}

		if c := s.findWork(id, tick); c != nil {
			s.metricQueued.Add(-1)
			return c, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

func (s *TaskScheduler) findWork(id int, tick uint32) *taskCell {
	local := s.locals[id]

	if s.globalPollInterval > 0 && tick%s.globalPollInterval == 0 {
		if c, ok := s.injector.Pop(); ok {
			return c
		}
	}

	if c, ok := local.Pop(); ok {
		return c
	}

	if c := s.pullInjector(local); c != nil {
		return c
	}

	return s.steal(id)
}

// pullInjector moves a batch from the injector into local and returns the first.
func (s *TaskScheduler) pullInjector(local *localQueue) *taskCell {
	n := min(injectorBatch, len(local.buf)/2, s.injector.Len()/s.workerCount+1)
	batch := s.injector.PopUpTo(n)
	if len(batch) == 0 {
		return nil
	}
	if rest := local.pushBatch(batch[1:]); rest != nil {
		s.injector.PushBatch(rest)
	}
	return batch[0]
}

// steal makes up to stealAttempts passes over the siblings, each pass
// starting at a random one.
func (s *TaskScheduler) steal(id int) *taskCell {
	n := s.workerCount
	if n < 2 {
		return nil
	}
	for range s.stealAttempts {
		start := rand.IntN(n)
		for i := range n {
			victim := (start + i) % n
			if victim == id {
				continue
			}
			stolen := s.locals[victim].stealHalf()
			if len(stolen) == 0 {
				continue
			}
			return s.takeStolen(id, stolen)
		}
	}
	return nil
}

func (s *TaskScheduler) takeStolen(id int, stolen []*taskCell) *taskCell {
	s.metricSteals.Add(uint64(len(stolen)))
	s.metrics.RecordSteal(s.poolID, len(stolen))
	if rest := s.locals[id].pushBatch(stolen[1:]); rest != nil {
		s.injector.PushBatch(rest)
	}
	if len(stolen) > 1 {
		// Let other parked workers look at what was just moved.
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}
	return stolen[0]
}

// Drain removes every queued cell from every queue.
func (s *TaskScheduler) Drain() []*taskCell {
	out := s.injector.Drain()
	for _, q := range s.locals {
		out = append(out, q.Drain()...)
	}
	s.metricQueued.Add(-int64(len(out)))
	return out
}

// Metrics
func (s *TaskScheduler) WorkerCount() int     { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int { return int(s.metricQueued.Load()) }
func (s *TaskScheduler) ActiveTaskCount() int { return int(s.metricActive.Load()) }
func (s *TaskScheduler) StealCount() uint64   { return s.metricSteals.Load() }

func (s *TaskScheduler) OnTaskStart() {
	s.metricActive.Add(1)
}

func (s *TaskScheduler) OnTaskEnd() {
	s.metricActive.Add(-1)
}
