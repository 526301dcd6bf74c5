package admission

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    TimeRange
		wantErr bool
	}{
		{
			name: "plain window",
			spec: "09:00-17:30",
			want: TimeRange{StartHour: 9, StartMin: 0, EndHour: 17, EndMin: 30},
		},
		{
			name: "wrapped window",
			spec: "22:00-06:00",
			want: TimeRange{StartHour: 22, EndHour: 6},
		},
		{
			name: "surrounding whitespace",
			spec: " 08:15 - 09:45 ",
			want: TimeRange{StartHour: 8, StartMin: 15, EndHour: 9, EndMin: 45},
		},
		{name: "missing dash", spec: "09:00", wantErr: true},
		{name: "hour out of bounds", spec: "25:00-26:00", wantErr: true},
		{name: "minute out of bounds", spec: "09:61-10:00", wantErr: true},
		{name: "garbage", spec: "soon-later", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeRange(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeRangeContains(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2026, 1, 1, h, m, 0, 0, time.UTC)
	}

	day := TimeRange{StartHour: 9, EndHour: 17}
	assert.True(t, day.Contains(at(9, 0)))
	assert.True(t, day.Contains(at(16, 59)))
	assert.True(t, day.Contains(at(17, 0))) // both bounds are inclusive
	assert.False(t, day.Contains(at(17, 1)))
	assert.False(t, day.Contains(at(8, 59)))

	night := TimeRange{StartHour: 22, EndHour: 6}
	assert.True(t, night.Contains(at(23, 30)))
	assert.True(t, night.Contains(at(2, 0)))
	assert.False(t, night.Contains(at(12, 0)))
	assert.True(t, night.Contains(at(22, 0)))
	assert.True(t, night.Contains(at(6, 0)))
	assert.False(t, night.Contains(at(6, 1)))
	assert.False(t, night.Contains(at(21, 59)))
}

func TestProperty_WrappedWindowComplement(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	// Both bounds are inclusive, so a window always contains its own
	// endpoints, wrapped or not.
	properties.Property("window contains its own endpoints", prop.ForAll(
		func(startMin, endMin int) bool {
			r := TimeRange{StartHour: startMin / 60, StartMin: startMin % 60,
				EndHour: endMin / 60, EndMin: endMin % 60}
			start := time.Date(2026, 1, 1, startMin/60, startMin%60, 0, 0, time.UTC)
			end := time.Date(2026, 1, 1, endMin/60, endMin%60, 0, 0, time.UTC)
			return r.Contains(start) && r.Contains(end)
		},
		gen.IntRange(0, 1439),
		gen.IntRange(0, 1439),
	))

	// A plain window and its reversal share exactly the two endpoint minutes;
	// every other minute belongs to one of the two.
	properties.Property("plain window and its reversal overlap only on endpoints", prop.ForAll(
		func(startMin, endMin, probe int) bool {
			if startMin == endMin {
				return true
			}
			plain := TimeRange{StartHour: min(startMin, endMin) / 60, StartMin: min(startMin, endMin) % 60,
				EndHour: max(startMin, endMin) / 60, EndMin: max(startMin, endMin) % 60}
			wrapped := TimeRange{StartHour: plain.EndHour, StartMin: plain.EndMin,
				EndHour: plain.StartHour, EndMin: plain.StartMin}

			at := time.Date(2026, 1, 1, probe/60, probe%60, 0, 0, time.UTC)
			if probe == startMin || probe == endMin {
				return plain.Contains(at) && wrapped.Contains(at)
			}
			return plain.Contains(at) != wrapped.Contains(at)
		},
		gen.IntRange(0, 1439),
		gen.IntRange(0, 1439),
		gen.IntRange(0, 1439),
	))

	properties.Property("round trip through String and ParseTimeRange", prop.ForAll(
		func(sh, sm, eh, em int) bool {
			r := TimeRange{StartHour: sh, StartMin: sm, EndHour: eh, EndMin: em}
			parsed, err := ParseTimeRange(r.String())
			return err == nil && parsed == r
		},
		gen.IntRange(0, 23),
		gen.IntRange(0, 59),
		gen.IntRange(0, 23),
		gen.IntRange(0, 59),
	))

	properties.TestingRun(t)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func ExampleTimeRange_String() {
	r := TimeRange{StartHour: 9, StartMin: 5, EndHour: 17, EndMin: 30}
	fmt.Println(r)
	// Output: 09:05-17:30
}
