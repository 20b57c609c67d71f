package dataset

import (
	"sort"
	"time"
)

// Merged is the result of joining record sets on the day key.
type Merged struct {
	// Columns lists field names in first-seen order.
	Columns []string
	// Rows holds exactly one row per day, ordered by day.
	Rows []Row
	// Sources maps each column to the endpoint and field it came from.
	Sources map[string]Source
}

// Source identifies a field of one endpoint's payload.
type Source struct {
	Endpoint string
	Field    string
}

// HasColumn reports whether any input contributed the named column.
func (m Merged) HasColumn(name string) bool {
	_, ok := m.Sources[name]
	return ok
}

// Column returns the merged column name holding field of endpoint.
func (m Merged) Column(endpoint, field string) (string, bool) {
	for name, src := range m.Sources {
		if src.Endpoint == endpoint && src.Field == field {
			return name, true
		}
	}
	return "", false
}

// Merge performs a sequential full outer join of the sets on Day, left to
// right. Field names of the first set are kept as is. A later set's field
// whose name is already taken by an earlier set is renamed to
// name_<suffix>; its other fields keep their bare names. Days missing from a
// set simply lack that set's fields. Within one set, a repeated day
// overwrites earlier rows for that day.
func Merge(sets ...RecordSet) Merged {
	out := Merged{Sources: make(map[string]Source)}
	byDay := make(map[time.Time]map[string]any)

	for idx, set := range sets {
		rename := out.columnNames(set, idx == 0)

		for _, row := range set.Rows {
			day := Day(row.Day)
			fields, ok := byDay[day]
			if !ok {
				fields = make(map[string]any)
				byDay[day] = fields
			}
			for name, value := range row.Fields {
				fields[rename[name]] = value
			}
		}
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out.Rows = make([]Row, 0, len(days))
	for _, day := range days {
		out.Rows = append(out.Rows, Row{Day: day, Fields: byDay[day]})
	}
	return out
}

// columnNames resolves the output name of every field in set and registers
// the new columns.
func (m *Merged) columnNames(set RecordSet, first bool) map[string]string {
	names := fieldNames(set)
	rename := make(map[string]string, len(names))
	suffix := set.suffix()

	for _, name := range names {
		target := name
		if !first {
			for m.HasColumn(target) {
				target = target + "_" + suffix
			}
		}
		rename[name] = target
	}
	for _, name := range names {
		target := rename[name]
		if !m.HasColumn(target) {
			m.Columns = append(m.Columns, target)
			m.Sources[target] = Source{Endpoint: set.Endpoint, Field: name}
		}
	}
	return rename
}

// fieldNames returns the union of field names across rows in a stable order:
// order of first appearance, with names inside one row sorted.
func fieldNames(set RecordSet) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, row := range set.Rows {
		rowNames := make([]string, 0, len(row.Fields))
		for name := range row.Fields {
			if _, ok := seen[name]; !ok {
				rowNames = append(rowNames, name)
			}
		}
		sort.Strings(rowNames)
		for _, name := range rowNames {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
