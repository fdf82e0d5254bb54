package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/cobra"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/logger"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/repositories"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/services"
)

func enqueueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <company-id> <identity>...",
		Short: "Register a scrape job for the given document identities and queue it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireQueue(); err != nil {
				return err
			}
			ctx := cmd.Context()
			repo, err := openRepository()
			if err != nil {
				return err
			}
			awsCfg, err := loadAWSConfig(ctx)
			if err != nil {
				return err
			}
			dispatch := services.NewDispatchService(
				repo,
				newLiveness(),
				repositories.NewSQSClient(sqs.NewFromConfig(awsCfg)),
				cfg.InputQueueURL,
				log,
			)
			job, err := dispatch.Submit(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			return nil
		},
	}
}

func listCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "list <company-id>",
		Short: "List every document the registry holds for a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateCompanyID(args[0]); err != nil {
				return err
			}
			repo, err := openRepository()
			if err != nil {
				return err
			}
			docs, err := services.NewListingService(newPortalClient(), repo).ListDocuments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderListing(cmd.OutOrStdout(), docs)
		},
	}
	c.Flags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")
	return c
}

func statusCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the per-document status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository()
			if err != nil {
				return err
			}
			records, err := services.NewStatusService(repo, newLiveness(), log).JobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderStatuses(cmd.OutOrStdout(), records)
		},
	}
	c.Flags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")
	return c
}

func storedCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "stored <company-id>",
		Short: "List the documents of a company that are stored locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateCompanyID(args[0]); err != nil {
				return err
			}
			repo, err := openRepository()
			if err != nil {
				return err
			}
			docs, err := repo.StoredDocuments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderStored(cmd.OutOrStdout(), docs)
		},
	}
	c.Flags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")
	return c
}

func exportCommand() *cobra.Command {
	var out string
	c := &cobra.Command{
		Use:   "export <identity>...",
		Short: "Write stored documents into a zip archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := domain.ParseIdentities(args)
			if err != nil {
				return err
			}
			repo, err := openRepository()
			if err != nil {
				return err
			}
			f, err := os.CreateTemp(filepath.Dir(out), ".krsdf-export-*.zip")
			if err != nil {
				return fmt.Errorf("failed to create archive: %w", err)
			}
			defer os.Remove(f.Name())
			if err := services.NewExportService(repo).WriteArchive(cmd.Context(), f, ids); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}
			if err := os.Rename(f.Name(), out); err != nil {
				return fmt.Errorf("failed to move archive to %s: %w", out, err)
			}
			log.Info("archive written", logger.String("path", out), logger.Int("documents", len(ids)))
			return nil
		},
	}
	c.Flags().StringVarP(&out, "out", "o", "documents.zip", "archive path")
	return c
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the document and status tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepository()
			if err != nil {
				return err
			}
			if err := repo.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			log.Info("migration complete")
			return nil
		},
	}
}
