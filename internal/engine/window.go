package engine

import "time"

// Window is a half-open-ish time range for aggregation. A zero Start means
// "all time": the range check is bypassed entirely, End included.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AllTime reports whether the window covers everything.
func (w Window) AllTime() bool { return w.Start.IsZero() }

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.AllTime() {
		return true
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// Time filter presets, matching the control panel's selector.
const (
	FilterDay      = "day"
	FilterWeek     = "week"
	FilterMonth    = "month"
	FilterLifetime = "lifetime"
)

// WindowForFilter maps a preset name onto a concrete Window. Day boundaries
// are local midnights; unknown names fall back to lifetime.
func WindowForFilter(filter string, now time.Time) Window {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch filter {
	case FilterDay:
		return Window{Start: midnight, End: now}
	case FilterWeek:
		return Window{Start: midnight.AddDate(0, 0, -7), End: now}
	case FilterMonth:
		return Window{Start: midnight.AddDate(0, 0, -30), End: now}
	default:
		return Window{End: now}
	}
}
