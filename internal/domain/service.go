// Package domain defines the daily wellness record, its normalization from
// merged payloads, and the read-side workflows served to dashboards.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTrendNotFound is returned when no record exists for the requested day.
	ErrTrendNotFound = errors.New("trend not found")
	// ErrInsufficientSignals is returned when a day lacks the metrics a recommendation needs.
	ErrInsufficientSignals = errors.New("insufficient signals for recommendation")
)

// TrendReader captures read access to the committed generation.
type TrendReader interface {
	ListTrends(ctx context.Context, from, to time.Time) ([]DailyMetricRecord, error)
	GetTrend(ctx context.Context, day time.Time) (*DailyMetricRecord, error)
	LatestTrend(ctx context.Context) (*DailyMetricRecord, error)
}

// Service serves trend reads.
type Service struct {
	repo TrendReader
}

// NewService constructs a Service.
func NewService(repo TrendReader) *Service {
	return &Service{repo: repo}
}

// Trends lists records between from and to inclusive, ordered by date.
func (s *Service) Trends(ctx context.Context, from, to time.Time) ([]DailyMetricRecord, error) {
	return s.repo.ListTrends(ctx, from, to)
}

// Latest returns the most recent record.
func (s *Service) Latest(ctx context.Context) (*DailyMetricRecord, error) {
	rec, err := s.repo.LatestTrend(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTrendNotFound
	}
	return rec, nil
}

// RecommendationInput overrides signals the stored record cannot provide.
type RecommendationInput struct {
	Day        time.Time
	Stress     int
	SleepHours *float64
}

// Recommendation is a workout suggestion with the signals it was based on.
type Recommendation struct {
	Day     time.Time `json:"date"`
	Workout Workout   `json:"workout"`
	Signals Signals   `json:"signals"`
}

// Recommend derives a workout suggestion for one stored day.
func (s *Service) Recommend(ctx context.Context, input RecommendationInput) (*Recommendation, error) {
	rec, err := s.repo.GetTrend(ctx, input.Day)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTrendNotFound
	}
	day := *rec
	if input.SleepHours != nil && day.TotalSleepDuration == nil {
		seconds := int64(*input.SleepHours * 3600)
		day.TotalSleepDuration = &seconds
	}
	signals, ok := SignalsFromRecord(day)
	if !ok {
		return nil, ErrInsufficientSignals
	}
	if input.SleepHours != nil {
		signals.SleepHours = *input.SleepHours
	}
	signals.Stress = input.Stress
	return &Recommendation{Day: day.Date, Workout: Recommend(signals), Signals: signals}, nil
}
