// Package admission gates job submissions before they reach the task queue:
// service-hours windows, group whitelisting, healthy-server presence, the
// per-user concurrency cap, and queue capacity.
package admission

import (
	"errors"
	"time"

	"comfygate/internal/model"
	"comfygate/internal/queue"
	"comfygate/internal/registry"
	"comfygate/pkg/logger"

	"go.uber.org/zap"
)

// Rejection reasons. The caller maps these onto user-facing replies.
var (
	ErrClosed            = errors.New("service is outside its open hours")
	ErrNotWhitelisted    = errors.New("group is not whitelisted")
	ErrNoHealthyServer   = errors.New("no healthy server available")
	ErrUserLimitExceeded = errors.New("user has too many tasks in flight")
	ErrQueueFull         = errors.New("task queue is full")
)

// Controller runs the admission checks in a fixed order and enqueues the job
// on success. Acquire-then-enqueue keeps the user counter consistent: a full
// queue rolls the counter back before rejecting.
type Controller struct {
	registry *registry.Registry
	queue    *queue.Queue
	counters *UserCounters

	openRanges []TimeRange
	whitelist  map[string]bool

	now func() time.Time
}

// New creates an admission controller. openRanges may be empty, meaning the
// service is always open; whitelist may be empty, meaning every group is
// allowed.
func New(reg *registry.Registry, q *queue.Queue, counters *UserCounters, openRanges []TimeRange, whitelist []string) *Controller {
	wl := make(map[string]bool, len(whitelist))
	for _, g := range whitelist {
		wl[g] = true
	}
	return &Controller{
		registry:   reg,
		queue:      q,
		counters:   counters,
		openRanges: openRanges,
		whitelist:  wl,
		now:        time.Now,
	}
}

// Admit runs the checks and enqueues the job. On success the job is owned by
// the queue and the user's in-flight counter has been incremented; the
// dispatch worker decrements it when the job terminates.
func (c *Controller) Admit(job *model.Job) error {
	if job.GroupID != "" && len(c.whitelist) > 0 && !c.whitelist[job.GroupID] {
		return ErrNotWhitelisted
	}
	if !c.Open(c.now()) {
		return ErrClosed
	}
	if !c.registry.HasHealthy() {
		return ErrNoHealthyServer
	}
	if !c.counters.TryAcquire(job.UserID) {
		return ErrUserLimitExceeded
	}
	if !c.queue.TryPut(job) {
		c.counters.Release(job.UserID)
		return ErrQueueFull
	}

	logger.Info("job admitted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("user_id", job.UserID),
		zap.Int("queue_len", c.queue.Len()),
	)
	return nil
}

// Open reports whether the service accepts submissions at the given instant.
// No configured ranges means always open.
func (c *Controller) Open(at time.Time) bool {
	if len(c.openRanges) == 0 {
		return true
	}
	for _, r := range c.openRanges {
		if r.Contains(at) {
			return true
		}
	}
	return false
}
