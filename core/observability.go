package core

import "time"

// TaskExecutionRecord captures a completed task.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	PoolID     string
	WorkerID   int // worker that ran the final step, -1 if none did
	Polls      int
	SpawnedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
	Err        error
}

// PoolStats represents runtime observability state for an executor.
type PoolStats struct {
	ID        string
	Workers   int
	Queued    int
	Active    int
	Live      int
	Running   bool
	Closing   bool
	Spawned   uint64
	Completed uint64
	Panicked  uint64
	Rejected  uint64
	Steals    uint64
}
