// Package registry holds the set of back-end servers and their dynamic state.
// All mutators are serialized on a single registry-wide mutex; the selection
// critical section covers the scan+claim only, never any I/O.
package registry

import (
	"fmt"
	"sync"
	"time"

	"comfygate/internal/model"
	"comfygate/pkg/config"
	"comfygate/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry the server registry
type Registry struct {
	mu            sync.Mutex
	servers       []*model.Server
	lastPollIndex int

	maxFailureCount int
	retryDelay      time.Duration
	failureCooldown time.Duration

	now func() time.Time // injectable clock for tests
}

// New creates a registry populated from configuration.
func New(backends []config.BackendConfig, dispatch config.DispatchConfig) *Registry {
	r := &Registry{
		lastPollIndex:   -1,
		maxFailureCount: dispatch.MaxFailureCount,
		retryDelay:      dispatch.RetryDelayDuration(),
		failureCooldown: dispatch.FailureCooldownDuration(),
		now:             time.Now,
	}
	for _, b := range backends {
		r.servers = append(r.servers, &model.Server{
			ID:   uuid.New().String(),
			Name: b.Name,
			URL:  b.URL,
		})
	}
	return r
}

// AddTemporary appends a server for the process lifetime only.
func (r *Registry) AddTemporary(name, url string) *model.Server {
	s := &model.Server{
		ID:        uuid.New().String(),
		Name:      name,
		URL:       url,
		Temporary: true,
	}

	r.mu.Lock()
	r.servers = append(r.servers, s)
	r.mu.Unlock()

	logger.Info("temporary server added",
		zap.String("name", name),
		zap.String("url", url),
	)
	return s
}

// All returns the servers. The slice is a copy; the pointed-to dynamic state
// must be read through registry methods.
func (r *Registry) All() []*model.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Server, len(r.servers))
	copy(out, r.servers)
	return out
}

// Snapshot returns immutable per-server status values.
func (r *Registry) Snapshot() []model.ServerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ServerStatus, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, model.ServerStatus{
			ID:            s.ID,
			Name:          s.Name,
			URL:           s.URL,
			Temporary:     s.Temporary,
			Healthy:       s.Healthy,
			Busy:          s.Busy,
			Failures:      s.Failures,
			CoolDownUntil: s.CoolDownUntil,
		})
	}
	return out
}

// HasHealthy reports whether at least one healthy server exists.
func (r *Registry) HasHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.servers {
		if s.Healthy {
			return true
		}
	}
	return false
}

// CountHealthy counts servers with healthy = true.
func (r *Registry) CountHealthy() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.servers {
		if s.Healthy {
			n++
		}
	}
	return n
}

// IsHealthy reads a server's healthy flag under the registry mutex.
func (r *Registry) IsHealthy(s *model.Server) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.Healthy
}

// ClaimAnyAvailable claims the next eligible server under round-robin
// fairness, atomically marking it busy. Returns nil when none is eligible.
// Never returns the same server to two callers concurrently.
func (r *Registry) ClaimAnyAvailable() *model.Server {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.servers)
	if n == 0 {
		return nil
	}

	now := r.now()
	for i := 1; i <= n; i++ {
		idx := (r.lastPollIndex + i) % n
		s := r.servers[idx]
		if s.Eligible(now) {
			s.Busy = true
			r.lastPollIndex = idx
			return s
		}
	}
	return nil
}

// Release clears the busy flag.
func (r *Registry) Release(s *model.Server) {
	r.mu.Lock()
	s.Busy = false
	r.mu.Unlock()
}

// MarkFailure increments the consecutive-failure counter. When the counter
// reaches max_failure_count the server is set unhealthy with a long cool-down;
// intermediate failures set a short cool-down but leave healthy = true.
// Returns true when the server just became unhealthy.
func (r *Registry) MarkFailure(s *model.Server) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.Failures++
	if s.Failures >= r.maxFailureCount {
		wasHealthy := s.Healthy
		s.Healthy = false
		s.FailedOut = true
		s.CoolDownUntil = r.now().Add(r.retryDelay)
		logger.Warn("server failed out",
			zap.String("server", s.Name),
			zap.Int("failures", s.Failures),
			zap.Time("cool_down_until", s.CoolDownUntil),
		)
		return wasHealthy
	}

	s.CoolDownUntil = r.now().Add(r.failureCooldown)
	logger.Warn("server failure recorded",
		zap.String("server", s.Name),
		zap.Int("failures", s.Failures),
	)
	return false
}

// ResetFailure clears the counter and cool-down. A server that was unhealthy
// because its failure counter tripped is restored to healthy.
func (r *Registry) ResetFailure(s *model.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.Failures = 0
	s.CoolDownUntil = time.Time{}
	if s.FailedOut {
		s.FailedOut = false
		s.Healthy = true
	}
}

// SetHealthy flips the healthy flag from a probe result. Returns true when the
// value changed. Probe-driven transitions clear the failed-out marker.
func (r *Registry) SetHealthy(s *model.Server, healthy bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Healthy == healthy {
		return false
	}
	s.Healthy = healthy
	s.FailedOut = false
	return true
}

// DueForProbe returns the servers whose cool-down has elapsed at the given
// instant. Identity fields of the returned servers may be read without the
// mutex; dynamic state must still go through registry methods.
func (r *Registry) DueForProbe(now time.Time) []*model.Server {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*model.Server
	for _, s := range r.servers {
		if s.CoolDownUntil.IsZero() || !now.Before(s.CoolDownUntil) {
			due = append(due, s)
		}
	}
	return due
}

// Find looks a server up by id or name.
func (r *Registry) Find(idOrName string) (*model.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.servers {
		if s.ID == idOrName || s.Name == idOrName {
			return s, nil
		}
	}
	return nil, fmt.Errorf("server not found: %s", idOrName)
}
