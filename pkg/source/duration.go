package source

import (
	"strconv"
	"strings"
)

// DurationRule accepts videos by their ISO-8601 duration.
type DurationRule struct {
	MaxMinutes int
	// AllowShort accepts durations without a minutes component (PT45S).
	AllowShort bool
}

// Accept reports whether the duration is short enough. Durations with a day
// or hour component are always rejected, as are durations whose minutes
// component exceeds MaxMinutes.
func (r DurationRule) Accept(iso string) bool {
	minutes, ok := minutesComponent(iso, r.AllowShort)
	if !ok {
		return false
	}
	return minutes <= r.MaxMinutes
}

// minutesComponent returns the M field of a PT duration. ok is false when the
// string carries days or hours, is malformed, or has no minutes (unless
// allowShort is set and only seconds are present).
func minutesComponent(iso string, allowShort bool) (int, bool) {
	rest, found := strings.CutPrefix(iso, "P")
	if !found {
		return 0, false
	}
	datePart, timePart, hasTime := strings.Cut(rest, "T")
	if !hasTime || datePart != "" {
		return 0, false
	}
	if strings.Contains(timePart, "H") {
		return 0, false
	}

	before, _, hasMinutes := strings.Cut(timePart, "M")
	if !hasMinutes {
		if allowShort && strings.HasSuffix(timePart, "S") {
			return 0, true
		}
		return 0, false
	}

	minutes, err := strconv.Atoi(before)
	if err != nil || minutes < 0 {
		return 0, false
	}
	return minutes, true
}
