package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/wellness/internal/dataset"
	"example.com/wellness/internal/exporter"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the trends table to a CSV or XLSX file",
	Long: `Write the committed generation to a file. The format follows the extension:
.csv or .xlsx. Use --from and --to to limit the date range.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("from", "", "First day to export (YYYY-MM-DD)")
	exportCmd.Flags().String("to", "", "Last day to export (YYYY-MM-DD)")
}

func runExport(cmd *cobra.Command, args []string) error {
	from, err := dayFlag(cmd, "from")
	if err != nil {
		return err
	}
	to, err := dayFlag(cmd, "to")
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("--to must not be before --from")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.close()

	records, err := s.pipeline.Service.Trends(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list trends: %w", err)
	}
	if err := exporter.WriteFile(args[0], records); err != nil {
		return err
	}
	printer{out: cmd.OutOrStdout()}.ok("exported %d rows from %s to %s", len(records), s.cfg.TrendsTable, args[0])
	return nil
}

// dayFlag parses an optional YYYY-MM-DD flag; empty yields the zero time.
func dayFlag(cmd *cobra.Command, name string) (time.Time, error) {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	if value == "" {
		return time.Time{}, nil
	}
	day, err := dataset.ParseDay(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return day, nil
}
