package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/wellness/internal/outbox"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay the outbox dead letter queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Requeue due dead letter entries onto the outbox",
	Long: `Requeue dead letter entries whose retry time has passed. Entries that have
exhausted their retries are quarantined instead.`,
	Args: cobra.NoArgs,
	RunE: runDLQReplay,
}

func init() {
	dlqReplayCmd.Flags().Int("batch", 50, "Maximum entries to process")
	dlqCmd.AddCommand(dlqReplayCmd)
}

func runDLQReplay(cmd *cobra.Command, _ []string) error {
	batch, err := cmd.Flags().GetInt("batch")
	if err != nil {
		return fmt.Errorf("failed to get batch flag: %w", err)
	}
	if batch <= 0 {
		return fmt.Errorf("--batch must be positive")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.close()

	manager := outbox.NewDLQManager(s.pipeline.Pool, s.cfg.DLQMaxRetries, s.cfg.DLQBaseDelay, s.logger.Named("dlq"))
	replayed, err := manager.RunOnce(ctx, batch)
	if err != nil {
		return fmt.Errorf("replay dlq: %w", err)
	}
	backlog, err := manager.Backlog(ctx)
	if err != nil {
		return fmt.Errorf("dlq backlog: %w", err)
	}

	out := printer{out: cmd.OutOrStdout()}
	out.ok("requeued %d entries", replayed)
	if backlog > 0 {
		out.warn("%d entries remain in the dead letter queue", backlog)
	}
	return nil
}
