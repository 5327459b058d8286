package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryTask records one Enqueue call on the in-memory queue
type MemoryTask struct {
	Job   string
	Args  json.RawMessage
	Delay time.Duration
}

// MemoryQueue is an in-memory TaskQueue used in tests
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []MemoryTask
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job string, args any, delay time.Duration) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, MemoryTask{Job: job, Args: payload, Delay: delay})
	return nil
}

// Tasks returns a copy of everything enqueued so far
func (q *MemoryQueue) Tasks() []MemoryTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]MemoryTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}
