package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/wellness/internal/dataset"
	"example.com/wellness/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch, merge and replace the trends table",
	Long: `Fetch every configured endpoint for the window, merge the collections by day
and replace the trends table in one transaction. Without --start and --end the
trailing window from configuration is used.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("start", "", "First day of the window (YYYY-MM-DD)")
	syncCmd.Flags().String("end", "", "Last day of the window (YYYY-MM-DD)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	start, err := cmd.Flags().GetString("start")
	if err != nil {
		return fmt.Errorf("failed to get start flag: %w", err)
	}
	end, err := cmd.Flags().GetString("end")
	if err != nil {
		return fmt.Errorf("failed to get end flag: %w", err)
	}
	window, err := parseWindow(start, end)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.pipeline.Orchestrator.Run(ctx, syncer.Request{Window: window, Trigger: syncer.TriggerManual})
	if err != nil {
		return err
	}
	printer{out: cmd.OutOrStdout()}.result(result)
	return nil
}

// parseWindow returns nil when both bounds are empty.
func parseWindow(start, end string) (*dataset.Window, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("--start and --end must be given together")
	}
	from, err := dataset.ParseDay(start)
	if err != nil {
		return nil, fmt.Errorf("invalid --start: %w", err)
	}
	to, err := dataset.ParseDay(end)
	if err != nil {
		return nil, fmt.Errorf("invalid --end: %w", err)
	}
	window := dataset.Window{Start: from, End: to}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	return &window, nil
}
