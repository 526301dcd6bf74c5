package admission

import (
	"sync"
)

// UserCounters tracks in-flight jobs per user under a single mutex. A job is
// in flight from admission until its terminal outcome is delivered.
type UserCounters struct {
	mu    sync.Mutex
	limit int
	count map[string]int
}

// NewUserCounters creates the counter set with the per-user cap.
func NewUserCounters(limit int) *UserCounters {
	return &UserCounters{
		limit: limit,
		count: make(map[string]int),
	}
}

// TryAcquire increments the user's counter unless the cap is reached.
func (c *UserCounters) TryAcquire(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count[userID] >= c.limit {
		return false
	}
	c.count[userID]++
	return true
}

// Release decrements the user's counter. Zero entries are deleted so the map
// does not grow with the user population.
func (c *UserCounters) Release(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count[userID] <= 1 {
		delete(c.count, userID)
		return
	}
	c.count[userID]--
}

// InFlight reads a user's current counter.
func (c *UserCounters) InFlight(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count[userID]
}
