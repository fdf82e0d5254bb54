// Package cmd implements the krsdf command line: the queue worker and the
// operator commands around it.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/config"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/logger"
)

var (
	cfg *config.Config
	log logger.Logger

	logLevel string

	rootCmd = &cobra.Command{
		Use:           "krsdf",
		Short:         "Crawler and ingestion worker for the KRS financial documents portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if log, err = logger.New(logger.Config{Level: cfg.LogLevel}); err != nil {
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(
		workerCommand(),
		enqueueCommand(),
		listCommand(),
		statusCommand(),
		storedCommand(),
		exportCommand(),
		migrateCommand(),
	)
}
