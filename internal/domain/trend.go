package domain

import (
	"time"
)

// DailyMetricRecord is one calendar day of wellness metrics. Nil fields were
// not reported, or could not be represented, for that day.
type DailyMetricRecord struct {
	Date                   time.Time `json:"date"`
	ReadinessScore         *int64    `json:"readiness_score"`
	SleepScore             *int64    `json:"sleep_score"`
	ActivityScore          *int64    `json:"activity_score"`
	Steps                  *int64    `json:"steps"`
	SleepEfficiency        *float64  `json:"sleep_efficiency"`
	LowestRestingHeartRate *int64    `json:"lowest_resting_heart_rate"`
	TotalSleepDuration     *int64    `json:"total_sleep_duration"`
	RemSleepDuration       *int64    `json:"rem_sleep_duration"`
	LightSleepDuration     *int64    `json:"light_sleep_duration"`
	DeepSleepDuration      *int64    `json:"deep_sleep_duration"`
	AverageHRV             *float64  `json:"average_hrv"`
	TemperatureDeviation   *float64  `json:"temperature_deviation"`
	ActivityBurn           *int64    `json:"activity_burn"`
}

// Column names of the trends table, in storage order.
const (
	ColumnDate                   = "date"
	ColumnReadinessScore         = "readiness_score"
	ColumnSleepScore             = "sleep_score"
	ColumnActivityScore          = "activity_score"
	ColumnSteps                  = "steps"
	ColumnSleepEfficiency        = "sleep_efficiency"
	ColumnLowestRestingHeartRate = "lowest_resting_heart_rate"
	ColumnTotalSleepDuration     = "total_sleep_duration"
	ColumnRemSleepDuration       = "rem_sleep_duration"
	ColumnLightSleepDuration     = "light_sleep_duration"
	ColumnDeepSleepDuration      = "deep_sleep_duration"
	ColumnAverageHRV             = "average_hrv"
	ColumnTemperatureDeviation   = "temperature_deviation"
	ColumnActivityBurn           = "activity_burn"
)

// Columns lists every stored column, date first.
var Columns = []string{
	ColumnDate,
	ColumnReadinessScore,
	ColumnSleepScore,
	ColumnActivityScore,
	ColumnSteps,
	ColumnSleepEfficiency,
	ColumnLowestRestingHeartRate,
	ColumnTotalSleepDuration,
	ColumnRemSleepDuration,
	ColumnLightSleepDuration,
	ColumnDeepSleepDuration,
	ColumnAverageHRV,
	ColumnTemperatureDeviation,
	ColumnActivityBurn,
}

// Values returns the record's fields in Columns order. Absent fields are nil.
func (r DailyMetricRecord) Values() []any {
	return []any{
		r.Date,
		nullable(r.ReadinessScore),
		nullable(r.SleepScore),
		nullable(r.ActivityScore),
		nullable(r.Steps),
		nullable(r.SleepEfficiency),
		nullable(r.LowestRestingHeartRate),
		nullable(r.TotalSleepDuration),
		nullable(r.RemSleepDuration),
		nullable(r.LightSleepDuration),
		nullable(r.DeepSleepDuration),
		nullable(r.AverageHRV),
		nullable(r.TemperatureDeviation),
		nullable(r.ActivityBurn),
	}
}

// ScanTargets returns pointers to the record's fields in Columns order.
func (r *DailyMetricRecord) ScanTargets() []any {
	return []any{
		&r.Date,
		&r.ReadinessScore,
		&r.SleepScore,
		&r.ActivityScore,
		&r.Steps,
		&r.SleepEfficiency,
		&r.LowestRestingHeartRate,
		&r.TotalSleepDuration,
		&r.RemSleepDuration,
		&r.LightSleepDuration,
		&r.DeepSleepDuration,
		&r.AverageHRV,
		&r.TemperatureDeviation,
		&r.ActivityBurn,
	}
}

// Empty reports whether no metric is present.
func (r DailyMetricRecord) Empty() bool {
	for _, v := range r.Values()[1:] {
		if v != nil {
			return false
		}
	}
	return true
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
