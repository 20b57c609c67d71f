// Package app provides the commands of the wellness operator CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	wiring "example.com/wellness/internal/app"
	"example.com/wellness/internal/config"
	"example.com/wellness/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "wellnessctl",
	Short:         "Operate the Oura wellness sync pipeline",
	Long:          `wellnessctl runs syncs, imports and exports trend data, applies migrations and inspects pipeline state.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"table":     "trends_table",
	"database":  "postgres_url",
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().String("config", "", "Path to a configuration file (overrides WELLNESS_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("table", "", "Trends table to read and write")
	rootCmd.PersistentFlags().String("database", "", "Postgres connection URL")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(dlqCmd)

	return rootCmd
}

// loadConfig reads the config file named by --config and layers changed
// persistent flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	v, err := config.NewWithFile(path)
	if err != nil {
		return config.Config{}, err
	}
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return config.Config{}, fmt.Errorf("bind %s flag: %w", flag, err)
		}
	}
	return config.FromViper(v)
}

// session is the state shared by commands that talk to the database.
type session struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *wiring.Pipeline
}

// openSession loads configuration, builds a console logger on stderr and
// wires the pipeline. The caller must call close.
func openSession(ctx context.Context, cmd *cobra.Command, migrate bool) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, "console", "wellnessctl")
	if err != nil {
		return nil, err
	}
	pipeline, err := wiring.NewPipeline(ctx, cfg, logger, wiring.Options{Migrate: migrate})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, pipeline: pipeline}, nil
}

func (s *session) close() {
	if err := s.pipeline.Close(); err != nil {
		s.logger.Warn("close pipeline", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
