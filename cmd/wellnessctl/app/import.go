package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/wellness/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the trends table from a CSV or XLSX export",
	Long: `Load a previously exported CSV or XLSX file and replace the trends table with
its rows. Cells reading None, nan or null are stored as null. Rows without a
parseable date are skipped and reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	parsed, err := importer.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	out := printer{out: cmd.OutOrStdout()}
	for _, skipped := range parsed.Skipped {
		out.warn("skipped %s", skipped)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.pipeline.Orchestrator.Import(ctx, parsed.Set)
	if err != nil {
		return err
	}
	out.result(result)
	return nil
}
