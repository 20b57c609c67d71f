// Package watermark derives the most recent source timestamp seen during a
// sync and persists it for "last synced" displays.
package watermark

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/wellness/internal/dataset"
)

// Layout is the human-readable format written to side storage.
const Layout = "2006-01-02 15:04:05"

// DefaultFields are the timestamp columns produced by merging the activity,
// sleep, and readiness collections.
var DefaultFields = []string{"timestamp", "timestamp_sleep", "timestamp_readiness"}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	Layout,
}

// Store persists a single watermark value.
type Store interface {
	Save(ctx context.Context, ts time.Time) error
	// Load returns false when no watermark has been written yet.
	Load(ctx context.Context) (time.Time, bool, error)
}

// PersistError reports a watermark that could not be written. Callers log it
// and carry on.
type PersistError struct {
	Location string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist watermark to %s: %v", e.Location, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Latest returns the maximum parseable timestamp found in the named fields
// across every merged row. Values that are absent or unparseable are skipped.
// The boolean is false when nothing parsed.
func Latest(m dataset.Merged, fields []string) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, row := range m.Rows {
		for _, field := range fields {
			ts, ok := Parse(row.Get(field))
			if !ok {
				continue
			}
			if !found || ts.After(latest) {
				latest = ts
				found = true
			}
		}
	}
	return latest, found
}

// Parse interprets v as a timestamp. Only strings are accepted.
func Parse(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Format renders ts in Layout, in UTC.
func Format(ts time.Time) string {
	return ts.UTC().Format(Layout)
}
