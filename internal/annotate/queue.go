package annotate

import (
	"context"
	"log"
)

// Queue is the single-threaded refinement queue shared by all log
// workers. Confining the lookup-bound passes to one goroutine bounds
// outbound request concurrency to one and avoids redundant concurrent
// lookups; annotation latency under heavy chat is the accepted cost.
type Queue struct {
	tasks chan func(context.Context)
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{tasks: make(chan func(context.Context), size)}
}

// Start runs tasks until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			task(ctx)
		}
	}
}

// Schedule enqueues a task without blocking the caller. A full queue
// drops the task; the message then simply stays unrefined.
func (q *Queue) Schedule(task func(context.Context)) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		log.Printf("annotate: queue full, refinement dropped")
		return false
	}
}
