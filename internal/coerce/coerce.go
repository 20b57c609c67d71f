// Package coerce converts loosely typed payload values into the fixed-width
// numeric types stored in the trends table. Conversion never fails loudly: a
// value that cannot be represented becomes absent (nil).
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// DefaultMax is the upper clamp applied to integer columns without a tighter bound.
const DefaultMax int64 = 2_000_000_000

// missing holds the textual markers export files use for "no value".
var missing = map[string]struct{}{
	"":     {},
	"none": {},
	"null": {},
	"nan":  {},
	"nat":  {},
}

// Int floors v and clamps it to max. Absent, non-numeric and non-finite
// values yield nil.
func Int(v any, max int64) *int64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	floored := math.Floor(f)
	// float64(max) can round up to 2^63, so compare inclusively and never
	// convert a value at or above the int64 range.
	if floored >= float64(max) || floored >= math.MaxInt64 {
		out := max
		return &out
	}
	if floored < math.MinInt64 {
		return nil
	}
	out := int64(floored)
	return &out
}

// Float returns v as a float64, or nil when it cannot be parsed.
func Float(v any) *float64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// IsMissing reports whether v is an absent marker rather than a bad value.
func IsMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		_, ok := missing[strings.ToLower(strings.TrimSpace(t))]
		return ok
	case float64:
		return math.IsNaN(t)
	}
	return false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if IsMissing(s) {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		return 0, false
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// CoercionWarning records a present value that could not be converted.
type CoercionWarning struct {
	Field string
	Value any
}

func (w CoercionWarning) Error() string {
	return fmt.Sprintf("coercion warning: field %s: cannot use %v", w.Field, w.Value)
}

// Warnings collects non-fatal coercion failures for a single sync cycle.
// The zero value is ready to use.
type Warnings struct {
	mu    sync.Mutex
	items []CoercionWarning
}

// Add records a warning.
func (w *Warnings) Add(field string, value any) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.items = append(w.items, CoercionWarning{Field: field, Value: value})
	w.mu.Unlock()
}

// Len returns the number of recorded warnings.
func (w *Warnings) Len() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// Items returns a copy of the recorded warnings.
func (w *Warnings) Items() []CoercionWarning {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]CoercionWarning, len(w.items))
	copy(out, w.items)
	return out
}

// IntField coerces v and records a warning when a present value is dropped.
func (w *Warnings) IntField(field string, v any, max int64) *int64 {
	out := Int(v, max)
	if out == nil && !IsMissing(v) {
		w.Add(field, v)
	}
	return out
}

// FloatField coerces v and records a warning when a present value is dropped.
func (w *Warnings) FloatField(field string, v any) *float64 {
	out := Float(v)
	if out == nil && !IsMissing(v) {
		w.Add(field, v)
	}
	return out
}
