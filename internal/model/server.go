package model

import "time"

// Server is one back-end render service. The identity fields are immutable;
// the dynamic state is guarded by the registry mutex.
type Server struct {
	ID        string
	Name      string
	URL       string
	Temporary bool // appended at runtime, never persisted

	Healthy       bool
	Busy          bool
	Failures      int       // consecutive job-attempt failures
	CoolDownUntil time.Time // zero means no cool-down
	FailedOut     bool      // unhealthy because the failure counter tripped, not a probe
}

// Eligible reports whether the server can be claimed at the given instant.
func (s *Server) Eligible(now time.Time) bool {
	return s.Healthy && !s.Busy && (s.CoolDownUntil.IsZero() || !now.Before(s.CoolDownUntil))
}

// ServerStatus is an immutable snapshot for listing and the HTTP adapter.
type ServerStatus struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Temporary     bool      `json:"temporary,omitempty"`
	Healthy       bool      `json:"healthy"`
	Busy          bool      `json:"busy"`
	Failures      int       `json:"failures"`
	CoolDownUntil time.Time `json:"cool_down_until,omitempty"`
}
