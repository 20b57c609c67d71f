// Package dataset holds the per-endpoint record sets produced during a sync
// cycle and the outer join that combines them into one wide row per day.
package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DayLayout is the calendar date format used by the wearable API and the store.
const DayLayout = "2006-01-02"

// ParseDay parses a calendar date. Timestamps are accepted and truncated to
// their date component.
func ParseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty day")
	}
	if t, err := time.Parse(DayLayout, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid day %q", value)
}

// Day truncates t to midnight UTC of its own calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// TrailingWindow returns the window of the given number of days ending on now's date.
func TrailingWindow(now time.Time, days int) Window {
	end := Day(now.UTC())
	if days < 1 {
		days = 1
	}
	return Window{Start: end.AddDate(0, 0, -days), End: end}
}

// Validate checks the window bounds.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.New("window start and end are required")
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("window end %s is before start %s", w.End.Format(DayLayout), w.Start.Format(DayLayout))
	}
	return nil
}

func (w Window) String() string {
	return w.Start.Format(DayLayout) + ".." + w.End.Format(DayLayout)
}

// Row is one flattened per-day object. Field names are dot-qualified for
// nested payload objects.
type Row struct {
	Day    time.Time
	Fields map[string]any
}

// Get returns the named field, or nil when absent.
func (r Row) Get(name string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}

// RecordSet is the flat, date-keyed table produced for one source endpoint.
type RecordSet struct {
	Endpoint string
	// Suffix is appended to field names that collide with earlier sets during
	// Merge. Empty means SuffixFor(Endpoint).
	Suffix string
	Rows   []Row
}

// SuffixFor derives the collision suffix from an endpoint name, so
// "daily_sleep" yields "sleep".
func SuffixFor(endpoint string) string {
	return strings.TrimPrefix(endpoint, "daily_")
}

func (s RecordSet) suffix() string {
	if s.Suffix != "" {
		return s.Suffix
	}
	return SuffixFor(s.Endpoint)
}

// Len returns the number of rows.
func (s RecordSet) Len() int { return len(s.Rows) }
