package domain

import (
	"example.com/wellness/internal/coerce"
	"example.com/wellness/internal/dataset"
)

// FieldMapping maps each stored column to the payload field it is read from.
// A Source with an empty Endpoint names a merged column directly.
type FieldMapping map[string]dataset.Source

// APIMapping reads the merged activity, sleep and readiness collections.
// Sleep duration columns carry the contributor values the API reports.
var APIMapping = FieldMapping{
	ColumnReadinessScore:         {Endpoint: "daily_readiness", Field: "score"},
	ColumnSleepScore:             {Endpoint: "daily_sleep", Field: "score"},
	ColumnActivityScore:          {Endpoint: "daily_activity", Field: "score"},
	ColumnSteps:                  {Endpoint: "daily_activity", Field: "steps"},
	ColumnSleepEfficiency:        {Endpoint: "daily_sleep", Field: "contributors.efficiency"},
	ColumnLowestRestingHeartRate: {Endpoint: "daily_readiness", Field: "contributors.resting_heart_rate"},
	ColumnTotalSleepDuration:     {Endpoint: "daily_sleep", Field: "contributors.total_sleep"},
	ColumnRemSleepDuration:       {Endpoint: "daily_sleep", Field: "contributors.rem_sleep"},
	ColumnLightSleepDuration:     {Endpoint: "daily_sleep", Field: "contributors.timing"},
	ColumnDeepSleepDuration:      {Endpoint: "daily_sleep", Field: "contributors.deep_sleep"},
	ColumnAverageHRV:             {Endpoint: "daily_readiness", Field: "contributors.hrv_balance"},
	ColumnTemperatureDeviation:   {Endpoint: "daily_readiness", Field: "temperature_deviation"},
	ColumnActivityBurn:           {Endpoint: "daily_activity", Field: "active_calories"},
}

// ColumnMapping reads files that already use the stored column names.
func ColumnMapping() FieldMapping {
	m := make(FieldMapping, len(Columns)-1)
	for _, col := range Columns[1:] {
		m[col] = dataset.Source{Field: col}
	}
	return m
}

// Upper bounds for integer columns. Values above are clamped.
const (
	MaxScore        int64 = 100
	MaxSteps        int64 = 200_000
	MaxHeartRate    int64 = 250
	MaxDuration           = coerce.DefaultMax
	MaxActivityBurn int64 = 20_000
	MaxEfficiency         = 100.0
)

// Normalize coerces every merged row into a DailyMetricRecord. Fields that
// cannot be represented become absent and are reported to w.
func Normalize(m dataset.Merged, mapping FieldMapping, w *coerce.Warnings) []DailyMetricRecord {
	columns := resolve(m, mapping)
	out := make([]DailyMetricRecord, 0, len(m.Rows))
	for _, row := range m.Rows {
		n := normalizer{row: row, columns: columns, w: w}
		out = append(out, DailyMetricRecord{
			Date:                   dataset.Day(row.Day),
			ReadinessScore:         n.integer(ColumnReadinessScore, MaxScore),
			SleepScore:             n.integer(ColumnSleepScore, MaxScore),
			ActivityScore:          n.integer(ColumnActivityScore, MaxScore),
			Steps:                  n.integer(ColumnSteps, MaxSteps),
			SleepEfficiency:        n.percentage(ColumnSleepEfficiency),
			LowestRestingHeartRate: n.integer(ColumnLowestRestingHeartRate, MaxHeartRate),
			TotalSleepDuration:     n.integer(ColumnTotalSleepDuration, MaxDuration),
			RemSleepDuration:       n.integer(ColumnRemSleepDuration, MaxDuration),
			LightSleepDuration:     n.integer(ColumnLightSleepDuration, MaxDuration),
			DeepSleepDuration:      n.integer(ColumnDeepSleepDuration, MaxDuration),
			AverageHRV:             n.float(ColumnAverageHRV),
			TemperatureDeviation:   n.float(ColumnTemperatureDeviation),
			ActivityBurn:           n.integer(ColumnActivityBurn, MaxActivityBurn),
		})
	}
	return out
}

// resolve maps each stored column to the merged column holding its value.
// Columns whose source is missing from the merge are left out.
func resolve(m dataset.Merged, mapping FieldMapping) map[string]string {
	out := make(map[string]string, len(mapping))
	for col, src := range mapping {
		if src.Endpoint == "" {
			out[col] = src.Field
			continue
		}
		if name, ok := m.Column(src.Endpoint, src.Field); ok {
			out[col] = name
		}
	}
	return out
}

type normalizer struct {
	row     dataset.Row
	columns map[string]string
	w       *coerce.Warnings
}

func (n normalizer) value(col string) (any, bool) {
	name, ok := n.columns[col]
	if !ok {
		return nil, false
	}
	return n.row.Get(name), true
}

func (n normalizer) integer(col string, max int64) *int64 {
	v, ok := n.value(col)
	if !ok {
		return nil
	}
	out := n.w.IntField(col, v, max)
	if out != nil && *out < 0 {
		n.w.Add(col, v)
		return nil
	}
	return out
}

func (n normalizer) float(col string) *float64 {
	v, ok := n.value(col)
	if !ok {
		return nil
	}
	return n.w.FloatField(col, v)
}

func (n normalizer) percentage(col string) *float64 {
	out := n.float(col)
	if out != nil && (*out < 0 || *out > MaxEfficiency) {
		v, _ := n.value(col)
		n.w.Add(col, v)
		return nil
	}
	return out
}
