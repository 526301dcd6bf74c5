// Package queue holds the single bounded FIFO of pending jobs shared by all
// workers. Producers are admission calls; consumers are the per-server workers.
package queue

import (
	"time"

	"comfygate/internal/model"
)

// Queue is a bounded FIFO. Order of delivery is FIFO across producers; a
// worker that re-queues a job on failover appends it at the tail.
type Queue struct {
	ch chan *model.Job
}

// New creates a queue with the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan *model.Job, capacity)}
}

// TryPut enqueues with zero wait. Returns false when the queue is full.
func (q *Queue) TryPut(job *model.Job) bool {
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

// Take blocks for up to timeout for the next job. Returns false on timeout.
func (q *Queue) Take(timeout time.Duration) (*model.Job, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.ch:
		return job, true
	case <-timer.C:
		return nil, false
	}
}

// Drain removes and returns every pending job.
func (q *Queue) Drain() []*model.Job {
	var jobs []*model.Job
	for {
		select {
		case job := <-q.ch:
			jobs = append(jobs, job)
		default:
			return jobs
		}
	}
}

// Len is the current number of pending jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap is the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
