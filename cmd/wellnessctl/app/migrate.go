package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	wiring "example.com/wellness/internal/app"
	"example.com/wellness/internal/logging"
	"example.com/wellness/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply every embedded migration that has not been recorded yet. Applying is
idempotent; running it against an up-to-date database changes nothing.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, "console", "wellnessctl")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	pool, err := wiring.ConnectPostgres(ctx, cfg.PostgresURL, cfg.DBConnectTimeout, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := migrations.Up(ctx, pool)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Debug("migrations finished", zap.Strings("applied", applied))

	out := printer{out: cmd.OutOrStdout()}
	if len(applied) == 0 {
		out.ok("schema is up to date")
		return nil
	}
	out.ok("applied %d migrations: %s", len(applied), strings.Join(applied, ", "))
	return nil
}
