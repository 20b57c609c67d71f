package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"example.com/wellness/internal/consumer"
	"example.com/wellness/internal/outbox"
	"example.com/wellness/internal/watermark"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watermark, table size, recent runs and DLQ backlog",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntP("runs", "n", 5, "Number of recent runs to list")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("runs")
	if err != nil {
		return fmt.Errorf("failed to get runs flag: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.close()

	out := printer{out: cmd.OutOrStdout()}

	ts, ok, err := s.pipeline.Orchestrator.Watermark(ctx)
	var errs []error
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("load watermark: %w", err))
	case ok:
		out.field("last sync", watermark.Format(ts))
	default:
		out.field("last sync", "never")
	}

	rows, err := s.pipeline.Repository.Count(ctx, s.cfg.TrendsTable)
	if err != nil {
		errs = append(errs, fmt.Errorf("count %s: %w", s.cfg.TrendsTable, err))
	} else {
		out.field("rows", fmt.Sprintf("%d in %s", rows, s.cfg.TrendsTable))
	}

	backlog, err := outbox.NewDLQManager(s.pipeline.Pool, s.cfg.DLQMaxRetries, s.cfg.DLQBaseDelay, s.logger).Backlog(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("dlq backlog: %w", err))
	} else if backlog > 0 {
		out.warn("%d events waiting in the dead letter queue", backlog)
	} else {
		out.field("dlq backlog", 0)
	}

	runs, err := consumer.NewPersistenceHandler(s.pipeline.Pool).Recent(ctx, limit)
	if err != nil {
		errs = append(errs, fmt.Errorf("recent runs: %w", err))
	} else if len(runs) == 0 {
		out.note("no completed runs recorded")
	} else {
		out.field("recent runs", "")
		for _, run := range runs {
			out.note("%s  %-8s %5d rows  %s", run.CompletedAt.Format(watermark.Layout), run.Trigger, run.Rows, run.RunID)
		}
	}

	return errors.Join(errs...)
}
