package dashboard

import (
	"fmt"
	"strings"
	"time"

	"trading-journal/internal/records"
)

const day = 24 * time.Hour

// ResolveWindow maps a timeframe to a concrete window ending at now.
//
// Rolling windows are exact multiples of 24h, so 1W is always 168 hours
// regardless of DST or calendar boundaries. ALL starts at origin, or at now
// when origin is zero or later than now. CUSTOM requires custom and uses it
// verbatim.
func ResolveWindow(tf Timeframe, now time.Time, custom *DateRange, origin time.Time) (Window, error) {
	if days, ok := rollingDays[tf]; ok {
		return Window{Timeframe: tf, Start: now.Add(-time.Duration(days) * day), End: now}, nil
	}

	switch tf {
	case TimeframeAll:
		start := origin
		if start.IsZero() || start.After(now) {
			start = now
		}
		return Window{Timeframe: tf, Start: start, End: now}, nil

	case TimeframeCustom:
		if custom == nil || custom.Start.IsZero() || custom.End.IsZero() {
			return Window{}, &InvalidRangeError{Timeframe: string(tf), Reason: "customStartDate and customEndDate are required"}
		}
		if custom.Start.After(custom.End) {
			return Window{}, &InvalidRangeError{Timeframe: string(tf), Reason: "customStartDate is after customEndDate"}
		}
		return Window{Timeframe: tf, Start: custom.Start, End: custom.End}, nil
	}

	return Window{}, &InvalidRangeError{Timeframe: string(tf), Reason: "unknown timeframe"}
}

// ParseCustomRange parses the customStartDate/customEndDate query values.
// A calendar day (YYYY-MM-DD) as the end bound covers that whole day in loc.
// RFC3339 instants are used as given. Both values must be present together.
func ParseCustomRange(startStr, endStr string, loc *time.Location) (*DateRange, error) {
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)
	if startStr == "" && endStr == "" {
		return nil, nil
	}
	if startStr == "" || endStr == "" {
		return nil, &InvalidRangeError{Timeframe: string(TimeframeCustom), Reason: "customStartDate and customEndDate must be given together"}
	}

	start, _, err := parseBound(startStr, loc)
	if err != nil {
		return nil, &InvalidRangeError{Timeframe: string(TimeframeCustom), Reason: "customStartDate: " + err.Error()}
	}
	end, isDay, err := parseBound(endStr, loc)
	if err != nil {
		return nil, &InvalidRangeError{Timeframe: string(TimeframeCustom), Reason: "customEndDate: " + err.Error()}
	}
	if isDay {
		end = endOfDay(end)
	}
	return &DateRange{Start: start, End: end}, nil
}

func parseBound(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(records.DayLayout, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t, false, nil
}

// startOfDay truncates t to midnight in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endOfDay is the last instant of t's calendar day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}
