package admission

import (
	"testing"
	"time"

	"comfygate/internal/model"
	"comfygate/internal/queue"
	"comfygate/internal/registry"
	"comfygate/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSetup(t *testing.T, queueCap, userLimit int, healthy bool) (*Controller, *registry.Registry, *queue.Queue, *UserCounters) {
	t.Helper()
	reg := registry.New([]config.BackendConfig{{Name: "a", URL: "http://a"}}, config.DefaultDispatchConfig())
	if healthy {
		for _, s := range reg.All() {
			reg.SetHealthy(s, true)
		}
	}
	q := queue.New(queueCap)
	counters := NewUserCounters(userLimit)
	c := New(reg, q, counters, nil, nil)
	return c, reg, q, counters
}

func job(id, userID, groupID string) *model.Job {
	j := model.NewJob(id, model.JobKindTxt2Img, userID)
	j.GroupID = groupID
	return j
}

func TestAdmitSuccess(t *testing.T) {
	c, _, q, counters := testSetup(t, 2, 2, true)

	err := c.Admit(job("1", "alice", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, counters.InFlight("alice"))
}

func TestAdmitRejectsWithoutHealthyServer(t *testing.T) {
	c, _, q, counters := testSetup(t, 2, 2, false)

	err := c.Admit(job("1", "alice", ""))
	assert.ErrorIs(t, err, ErrNoHealthyServer)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, counters.InFlight("alice"))
}

func TestAdmitEnforcesUserLimit(t *testing.T) {
	c, _, _, _ := testSetup(t, 10, 2, true)

	require.NoError(t, c.Admit(job("1", "alice", "")))
	require.NoError(t, c.Admit(job("2", "alice", "")))
	assert.ErrorIs(t, c.Admit(job("3", "alice", "")), ErrUserLimitExceeded)

	// Another user is unaffected.
	assert.NoError(t, c.Admit(job("4", "bob", "")))
}

func TestAdmitQueueFullRollsBackCounter(t *testing.T) {
	c, _, _, counters := testSetup(t, 1, 5, true)

	require.NoError(t, c.Admit(job("1", "alice", "")))
	err := c.Admit(job("2", "alice", ""))
	assert.ErrorIs(t, err, ErrQueueFull)

	// The failed admission must not leak a counter slot.
	assert.Equal(t, 1, counters.InFlight("alice"))
}

func TestAdmitWhitelist(t *testing.T) {
	reg := registry.New([]config.BackendConfig{{Name: "a", URL: "http://a"}}, config.DefaultDispatchConfig())
	for _, s := range reg.All() {
		reg.SetHealthy(s, true)
	}
	c := New(reg, queue.New(5), NewUserCounters(5), nil, []string{"group-1"})

	assert.NoError(t, c.Admit(job("1", "alice", "group-1")))
	assert.ErrorIs(t, c.Admit(job("2", "alice", "group-2")), ErrNotWhitelisted)

	// Direct submissions carry no group and bypass the whitelist.
	assert.NoError(t, c.Admit(job("3", "alice", "")))
}

func TestAdmitClosedOutsideOpenHours(t *testing.T) {
	reg := registry.New([]config.BackendConfig{{Name: "a", URL: "http://a"}}, config.DefaultDispatchConfig())
	for _, s := range reg.All() {
		reg.SetHealthy(s, true)
	}
	ranges, err := ParseTimeRanges([]string{"09:00-17:00"})
	require.NoError(t, err)

	c := New(reg, queue.New(5), NewUserCounters(5), ranges, nil)
	c.now = func() time.Time { return time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC) }

	assert.ErrorIs(t, c.Admit(job("1", "alice", "")), ErrClosed)

	c.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	assert.NoError(t, c.Admit(job("2", "alice", "")))
}

func TestUserCountersReleaseDeletesZeroEntries(t *testing.T) {
	counters := NewUserCounters(2)

	require.True(t, counters.TryAcquire("alice"))
	require.True(t, counters.TryAcquire("alice"))
	assert.False(t, counters.TryAcquire("alice"))

	counters.Release("alice")
	assert.Equal(t, 1, counters.InFlight("alice"))
	counters.Release("alice")
	assert.Equal(t, 0, counters.InFlight("alice"))

	// Releasing an unknown user must not underflow.
	counters.Release("alice")
	assert.True(t, counters.TryAcquire("alice"))
}
