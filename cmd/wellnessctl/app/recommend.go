package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/wellness/internal/dataset"
	"example.com/wellness/internal/domain"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Suggest a workout for a stored day",
	Args:  cobra.NoArgs,
	RunE:  runRecommend,
}

func init() {
	recommendCmd.Flags().String("date", "", "Day to evaluate (YYYY-MM-DD, default latest)")
	recommendCmd.Flags().Int("stress", 0, "Self-reported stress level 1-5 (0 = unknown)")
	recommendCmd.Flags().Float64("sleep-hours", -1, "Hours slept, used when the day has no sleep duration")
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	date, err := cmd.Flags().GetString("date")
	if err != nil {
		return fmt.Errorf("failed to get date flag: %w", err)
	}
	stress, err := cmd.Flags().GetInt("stress")
	if err != nil {
		return fmt.Errorf("failed to get stress flag: %w", err)
	}
	if stress < 0 || stress > 5 {
		return fmt.Errorf("--stress must be between 0 and 5")
	}
	sleepHours, err := cmd.Flags().GetFloat64("sleep-hours")
	if err != nil {
		return fmt.Errorf("failed to get sleep-hours flag: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.close()

	input := domain.RecommendationInput{Stress: stress}
	if sleepHours >= 0 {
		input.SleepHours = &sleepHours
	}
	if date == "" {
		latest, err := s.pipeline.Service.Latest(ctx)
		if err != nil {
			return err
		}
		input.Day = latest.Date
	} else if input.Day, err = dataset.ParseDay(date); err != nil {
		return fmt.Errorf("invalid --date: %w", err)
	}

	rec, err := s.pipeline.Service.Recommend(ctx, input)
	if err != nil {
		return err
	}
	out := printer{out: cmd.OutOrStdout()}
	out.ok("%s: %s", rec.Day.Format(dataset.DayLayout), rec.Workout)
	out.field("steps", rec.Signals.Steps)
	out.field("heart rate", rec.Signals.HeartRate)
	out.field("sleep hours", fmt.Sprintf("%.1f", rec.Signals.SleepHours))
	if rec.Signals.Stress > 0 {
		out.field("stress", rec.Signals.Stress)
	}
	return nil
}
