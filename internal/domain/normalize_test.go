package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/coerce"
	"example.com/wellness/internal/dataset"
)

func june(day int) time.Time {
	return time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeActivityAndSleepForOneDay(t *testing.T) {
	activity := dataset.RecordSet{Endpoint: "daily_activity", Rows: []dataset.Row{
		{Day: june(1), Fields: map[string]any{"steps": 8500.0, "score": 70.0}},
	}}
	sleep := dataset.RecordSet{Endpoint: "daily_sleep", Rows: []dataset.Row{
		{Day: june(1), Fields: map[string]any{"score": 85.0, "contributors.efficiency": 90.5}},
	}}

	var warnings coerce.Warnings
	records := Normalize(dataset.Merge(activity, sleep), APIMapping, &warnings)

	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, june(1), rec.Date)
	require.Equal(t, int64(70), *rec.ActivityScore)
	require.Equal(t, int64(8500), *rec.Steps)
	require.Equal(t, int64(85), *rec.SleepScore)
	require.Equal(t, 90.5, *rec.SleepEfficiency)
	require.Nil(t, rec.ReadinessScore)
	require.Nil(t, rec.ActivityBurn)
	require.Zero(t, warnings.Len())
}

func TestNormalizeFullMappingAndBounds(t *testing.T) {
	activity := dataset.RecordSet{Endpoint: "daily_activity", Rows: []dataset.Row{
		{Day: june(2), Fields: map[string]any{"score": 140.0, "steps": 999999.0, "active_calories": "512.9", "timestamp": "2024-06-02T00:00:00+00:00"}},
	}}
	sleep := dataset.RecordSet{Endpoint: "daily_sleep", Rows: []dataset.Row{
		{Day: june(2), Fields: map[string]any{
			"score":                   -3.0,
			"contributors.efficiency": 120.0,
			"contributors.total_sleep": 27000.0,
			"contributors.rem_sleep":   5400.0,
			"contributors.timing":      nil,
			"contributors.deep_sleep":  "abc",
		}},
	}}
	readiness := dataset.RecordSet{Endpoint: "daily_readiness", Rows: []dataset.Row{
		{Day: june(2), Fields: map[string]any{
			"score":                           77.0,
			"temperature_deviation":           -0.25,
			"contributors.resting_heart_rate": 52.0,
			"contributors.hrv_balance":        "61",
		}},
	}}

	var warnings coerce.Warnings
	records := Normalize(dataset.Merge(activity, sleep, readiness), APIMapping, &warnings)
	require.Len(t, records, 1)
	rec := records[0]

	require.Equal(t, MaxScore, *rec.ActivityScore)
	require.Equal(t, MaxSteps, *rec.Steps)
	require.Equal(t, int64(512), *rec.ActivityBurn)
	require.Nil(t, rec.SleepScore, "negative score is absent")
	require.Nil(t, rec.SleepEfficiency, "efficiency above 100 is absent")
	require.Equal(t, int64(27000), *rec.TotalSleepDuration)
	require.Equal(t, int64(5400), *rec.RemSleepDuration)
	require.Nil(t, rec.LightSleepDuration)
	require.Nil(t, rec.DeepSleepDuration)
	require.Equal(t, int64(77), *rec.ReadinessScore)
	require.Equal(t, -0.25, *rec.TemperatureDeviation)
	require.Equal(t, int64(52), *rec.LowestRestingHeartRate)
	require.Equal(t, 61.0, *rec.AverageHRV)

	fields := map[string]bool{}
	for _, w := range warnings.Items() {
		fields[w.Field] = true
	}
	require.Equal(t, map[string]bool{
		ColumnSleepScore:        true,
		ColumnSleepEfficiency:   true,
		ColumnDeepSleepDuration: true,
	}, fields)
}

func TestNormalizeDoesNotMisattributeWhenActivityIsEmpty(t *testing.T) {
	activity := dataset.RecordSet{Endpoint: "daily_activity"}
	sleep := dataset.RecordSet{Endpoint: "daily_sleep", Rows: []dataset.Row{
		{Day: june(3), Fields: map[string]any{"score": 81.0}},
	}}

	records := Normalize(dataset.Merge(activity, sleep), APIMapping, nil)
	require.Len(t, records, 1)
	require.Nil(t, records[0].ActivityScore)
	require.Equal(t, int64(81), *records[0].SleepScore)
}

func TestNormalizeColumnMapping(t *testing.T) {
	export := dataset.RecordSet{Endpoint: "export", Rows: []dataset.Row{
		{Day: june(4), Fields: map[string]any{"steps": "1200", "sleep_score": "None", "average_hrv": "45.5"}},
	}}

	var warnings coerce.Warnings
	records := Normalize(dataset.Merge(export), ColumnMapping(), &warnings)
	require.Len(t, records, 1)
	require.Equal(t, int64(1200), *records[0].Steps)
	require.Nil(t, records[0].SleepScore)
	require.Equal(t, 45.5, *records[0].AverageHRV)
	require.Zero(t, warnings.Len())
}

func TestRecordValuesAndEmpty(t *testing.T) {
	steps := int64(10)
	rec := DailyMetricRecord{Date: june(1), Steps: &steps}
	values := rec.Values()
	require.Len(t, values, len(Columns))
	require.Equal(t, june(1), values[0])
	require.Equal(t, int64(10), values[4])
	require.Nil(t, values[1])
	require.False(t, rec.Empty())
	require.True(t, DailyMetricRecord{Date: june(1)}.Empty())
	require.Len(t, rec.ScanTargets(), len(Columns))
}
