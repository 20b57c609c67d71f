package domain

// Workout is a suggested training type for the day.
type Workout string

const (
	WorkoutRest     Workout = "Rest"
	WorkoutCardio   Workout = "Cardio"
	WorkoutYoga     Workout = "Yoga"
	WorkoutStrength Workout = "Strength"
)

// Signals are the inputs to Recommend.
type Signals struct {
	Steps      int64   `json:"steps"`
	HeartRate  int64   `json:"heart_rate"`
	SleepHours float64 `json:"sleep_hours"`
	// Stress is a 1-5 self-reported level; 0 means unknown.
	Stress int `json:"stress_level"`
}

// Recommend applies the rules in order: rest when stressed or short on
// sleep, cardio on active low-heart-rate days, yoga when the heart rate is
// high, strength otherwise.
func Recommend(s Signals) Workout {
	switch {
	case s.Stress >= 4 || s.SleepHours < 6:
		return WorkoutRest
	case s.Steps > 8000 && s.HeartRate < 90:
		return WorkoutCardio
	case s.HeartRate > 100:
		return WorkoutYoga
	default:
		return WorkoutStrength
	}
}

// SignalsFromRecord derives signals from a stored day. Sleep duration is
// read as seconds. The boolean is false when steps, heart rate or sleep
// duration is missing.
func SignalsFromRecord(r DailyMetricRecord) (Signals, bool) {
	if r.Steps == nil || r.LowestRestingHeartRate == nil || r.TotalSleepDuration == nil {
		return Signals{}, false
	}
	return Signals{
		Steps:      *r.Steps,
		HeartRate:  *r.LowestRestingHeartRate,
		SleepHours: float64(*r.TotalSleepDuration) / 3600,
	}, true
}
