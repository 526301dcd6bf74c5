// Package supervisor keeps exactly one dispatch worker running per healthy
// back-end server. Health transitions from the prober reconcile the worker
// set; a stopping worker gets a drain window to finish its in-flight job.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"comfygate/internal/admission"
	"comfygate/internal/model"
	"comfygate/internal/queue"
	"comfygate/internal/registry"
	"comfygate/pkg/logger"

	"go.uber.org/zap"
)

// WorkerFunc runs the dispatch loop for one server. It returns when stop is
// closed (after finishing the in-flight job) or when ctx is cancelled.
type WorkerFunc func(ctx context.Context, stop <-chan struct{}, s *model.Server)

// Supervisor the worker supervisor
type Supervisor struct {
	registry *registry.Registry
	queue    *queue.Queue
	counters *admission.UserCounters
	run      WorkerFunc

	drainTimeout time.Duration

	mu      sync.Mutex
	base    context.Context
	workers map[string]*worker // keyed by server id
	wg      sync.WaitGroup
}

type worker struct {
	stop   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a supervisor.
func New(reg *registry.Registry, q *queue.Queue, counters *admission.UserCounters, run WorkerFunc, drainTimeout time.Duration) *Supervisor {
	return &Supervisor{
		registry:     reg,
		queue:        q,
		counters:     counters,
		run:          run,
		drainTimeout: drainTimeout,
		workers:      make(map[string]*worker),
	}
}

// Start records the base context and spawns workers for the currently healthy
// servers.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	s.Reconcile()
}

// Reconcile aligns the worker set with the registry: healthy servers without
// a worker get one, workers on unhealthy servers are stopped. When the last
// healthy server goes away the pending queue is cancelled out so submitters
// are not left waiting on jobs nothing will run.
func (s *Supervisor) Reconcile() {
	s.mu.Lock()
	if s.base == nil {
		s.mu.Unlock()
		return
	}

	for _, srv := range s.registry.All() {
		w, running := s.workers[srv.ID]
		if running {
			// Reap workers that exited on their own, e.g. after noticing
			// their server went unhealthy mid-loop.
			select {
			case <-w.done:
				delete(s.workers, srv.ID)
				running = false
			default:
			}
		}
		healthy := s.registry.IsHealthy(srv)

		switch {
		case healthy && !running:
			s.startWorkerLocked(srv)
		case !healthy && running:
			s.stopWorkerLocked(srv.ID, srv.Name)
		}
	}
	s.mu.Unlock()

	if !s.registry.HasHealthy() {
		s.cancelPending("no healthy server remains")
	}
}

func (s *Supervisor) startWorkerLocked(srv *model.Server) {
	ctx, cancel := context.WithCancel(s.base)
	w := &worker{
		stop:   make(chan struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.workers[srv.ID] = w

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(w.done)
		defer cancel()
		logger.Info("worker started", zap.String("server", srv.Name))
		s.run(ctx, w.stop, srv)
		logger.Info("worker stopped", zap.String("server", srv.Name))
	}()
}

// stopWorkerLocked signals a graceful stop and arms the drain window: if the
// worker has not returned after drainTimeout its context is cancelled, which
// aborts the in-flight dispatch.
func (s *Supervisor) stopWorkerLocked(serverID, serverName string) {
	w := s.workers[serverID]
	delete(s.workers, serverID)
	close(w.stop)

	go func() {
		select {
		case <-w.done:
		case <-time.After(s.drainTimeout):
			logger.Warn("worker drain window expired, cancelling",
				zap.String("server", serverName),
			)
			w.cancel()
		}
	}()
}

// cancelPending drains the queue and delivers a cancelled outcome per job.
func (s *Supervisor) cancelPending(reason string) {
	jobs := s.queue.Drain()
	if len(jobs) == 0 {
		return
	}
	logger.Warn("cancelling pending jobs",
		zap.Int("count", len(jobs)),
		zap.String("reason", reason),
	)
	for _, job := range jobs {
		job.Deliver(model.Outcome{
			Status: model.OutcomeCancelled,
			Err:    errors.New(reason),
		})
		s.counters.Release(job.UserID)
	}
}

// Shutdown stops every worker, waits for them within the drain window and
// cancels whatever is still pending.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	for id := range s.workers {
		w := s.workers[id]
		delete(s.workers, id)
		close(w.stop)
		go func(w *worker) {
			select {
			case <-w.done:
			case <-time.After(s.drainTimeout):
				w.cancel()
			}
		}(w)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.cancelPending("service shutting down")
}

// WorkerCount is the number of running workers.
func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
