package registry

import (
	"testing"
	"time"

	"comfygate/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	backends := make([]config.BackendConfig, 0, len(names))
	for _, n := range names {
		backends = append(backends, config.BackendConfig{Name: n, URL: "http://" + n})
	}
	return New(backends, config.DefaultDispatchConfig())
}

func TestNewServersStartUnhealthy(t *testing.T) {
	r := testRegistry(t, "a", "b")

	assert.False(t, r.HasHealthy())
	assert.Equal(t, 0, r.CountHealthy())
	assert.Nil(t, r.ClaimAnyAvailable())
}

func TestClaimAnyAvailableRoundRobin(t *testing.T) {
	r := testRegistry(t, "a", "b", "c")
	for _, s := range r.All() {
		r.SetHealthy(s, true)
	}

	var order []string
	for i := 0; i < 3; i++ {
		s := r.ClaimAnyAvailable()
		require.NotNil(t, s)
		order = append(order, s.Name)
		r.Release(s)
	}

	// Round-robin rotation, not repeated selection of the first server.
	assert.Equal(t, []string{"a", "b", "c"}, order)

	s := r.ClaimAnyAvailable()
	require.NotNil(t, s)
	assert.Equal(t, "a", s.Name)
}

func TestClaimAnyAvailableSkipsBusy(t *testing.T) {
	r := testRegistry(t, "a", "b")
	for _, s := range r.All() {
		r.SetHealthy(s, true)
	}

	first := r.ClaimAnyAvailable()
	require.NotNil(t, first)

	second := r.ClaimAnyAvailable()
	require.NotNil(t, second)
	assert.NotEqual(t, first.Name, second.Name)

	// Both busy now.
	assert.Nil(t, r.ClaimAnyAvailable())

	r.Release(first)
	third := r.ClaimAnyAvailable()
	require.NotNil(t, third)
	assert.Equal(t, first.Name, third.Name)
}

func TestMarkFailureThreshold(t *testing.T) {
	r := testRegistry(t, "a")
	s := r.All()[0]
	r.SetHealthy(s, true)

	// Two intermediate failures keep the server healthy.
	assert.False(t, r.MarkFailure(s))
	assert.False(t, r.MarkFailure(s))
	assert.True(t, r.HasHealthy())

	// Third consecutive failure trips the threshold.
	assert.True(t, r.MarkFailure(s))
	assert.False(t, r.HasHealthy())
	assert.True(t, s.FailedOut)
}

func TestMarkFailureCooldowns(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := testRegistry(t, "a")
	r.now = func() time.Time { return base }
	s := r.All()[0]
	r.SetHealthy(s, true)

	r.MarkFailure(s)
	// Intermediate failure: short cool-down, still healthy.
	assert.Equal(t, base.Add(10*time.Second), s.CoolDownUntil)
	assert.Nil(t, r.ClaimAnyAvailable())

	// Past the cool-down the server is claimable again.
	r.now = func() time.Time { return base.Add(11 * time.Second) }
	claimed := r.ClaimAnyAvailable()
	require.NotNil(t, claimed)
	r.Release(claimed)

	// Fail out: long cool-down.
	r.MarkFailure(s)
	r.MarkFailure(s)
	assert.Equal(t, base.Add(11*time.Second).Add(300*time.Second), s.CoolDownUntil)
}

func TestResetFailureRestoresFailedOutServer(t *testing.T) {
	r := testRegistry(t, "a")
	s := r.All()[0]
	r.SetHealthy(s, true)

	for i := 0; i < 3; i++ {
		r.MarkFailure(s)
	}
	require.False(t, r.IsHealthy(s))

	r.ResetFailure(s)
	assert.True(t, r.IsHealthy(s))
	assert.Equal(t, 0, s.Failures)
	assert.False(t, s.FailedOut)
	assert.True(t, s.CoolDownUntil.IsZero())
}

func TestResetFailureLeavesProbeUnhealthyAlone(t *testing.T) {
	r := testRegistry(t, "a")
	s := r.All()[0]

	// Unhealthy because the probe said so, not because failures tripped.
	r.SetHealthy(s, false)
	r.ResetFailure(s)
	assert.False(t, r.IsHealthy(s))
}

func TestSetHealthyReportsChange(t *testing.T) {
	r := testRegistry(t, "a")
	s := r.All()[0]

	assert.True(t, r.SetHealthy(s, true))
	assert.False(t, r.SetHealthy(s, true))
	assert.True(t, r.SetHealthy(s, false))
}

func TestDueForProbeRespectsCooldown(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := testRegistry(t, "a", "b")
	r.now = func() time.Time { return base }

	a := r.All()[0]
	r.SetHealthy(a, true)
	r.MarkFailure(a) // cool-down until base+10s

	due := r.DueForProbe(base)
	require.Len(t, due, 1)
	assert.Equal(t, "b", due[0].Name)

	due = r.DueForProbe(base.Add(10 * time.Second))
	assert.Len(t, due, 2)
}

func TestAddTemporaryAndFind(t *testing.T) {
	r := testRegistry(t, "a")
	s := r.AddTemporary("temp", "http://temp")

	assert.True(t, s.Temporary)
	assert.False(t, r.IsHealthy(s))

	found, err := r.Find("temp")
	require.NoError(t, err)
	assert.Equal(t, s.ID, found.ID)

	found, err = r.Find(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "temp", found.Name)

	_, err = r.Find("missing")
	assert.Error(t, err)
}
