package admission

import (
	"fmt"
	"strings"
	"time"
)

// TimeRange is a daily service window. When End is not after Start the window
// wraps midnight: 22:00-06:00 covers late evening through early morning.
type TimeRange struct {
	StartHour, StartMin int
	EndHour, EndMin     int
}

// ParseTimeRanges parses "HH:MM-HH:MM" specs.
func ParseTimeRanges(specs []string) ([]TimeRange, error) {
	var ranges []TimeRange
	for _, spec := range specs {
		r, err := ParseTimeRange(spec)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// ParseTimeRange parses a single "HH:MM-HH:MM" spec.
func ParseTimeRange(spec string) (TimeRange, error) {
	parts := strings.SplitN(strings.TrimSpace(spec), "-", 2)
	if len(parts) != 2 {
		return TimeRange{}, fmt.Errorf("invalid time range %q, want HH:MM-HH:MM", spec)
	}

	var r TimeRange
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%d:%d", &r.StartHour, &r.StartMin); err != nil {
		return TimeRange{}, fmt.Errorf("invalid time range start %q: %w", parts[0], err)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d:%d", &r.EndHour, &r.EndMin); err != nil {
		return TimeRange{}, fmt.Errorf("invalid time range end %q: %w", parts[1], err)
	}

	if r.StartHour < 0 || r.StartHour > 23 || r.EndHour < 0 || r.EndHour > 23 ||
		r.StartMin < 0 || r.StartMin > 59 || r.EndMin < 0 || r.EndMin > 59 {
		return TimeRange{}, fmt.Errorf("time range %q out of bounds", spec)
	}
	return r, nil
}

// Contains reports whether the instant falls inside the window, in the
// instant's own location.
func (r TimeRange) Contains(at time.Time) bool {
	minute := at.Hour()*60 + at.Minute()
	start := r.StartHour*60 + r.StartMin
	end := r.EndHour*60 + r.EndMin

	if start < end {
		return minute >= start && minute <= end
	}
	// Wrapped window, e.g. 22:00-06:00. Both bounds are inclusive.
	return minute >= start || minute <= end
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.StartHour, r.StartMin, r.EndHour, r.EndMin)
}
