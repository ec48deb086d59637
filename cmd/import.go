package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"skuflow/src/core/ingest"
	"skuflow/src/core/webhook"
	"skuflow/src/infrastructure/job"
	"skuflow/src/log"
	"skuflow/src/storage/postgres/productctrl"
	"skuflow/src/storage/postgres/webhookctrl"
)

var importFile string

// importCmd runs one ingest synchronously against the configured database.
// It uses the same worker as the server, so row handling, counts and webhook
// notifications behave identically to an uploaded file.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a local catalog file",
	Long: `Import a CSV or XLSX catalog file from the local filesystem without
going through the HTTP API. Progress is shown on the terminal and registered
webhook subscribers are notified when the import finishes.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Path to the catalog file")
	importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	defer log.Sync()
	ctx := context.Background()

	data, err := os.ReadFile(importFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", importFile, err)
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	defer sqlDB.Close()

	productService, err := productctrl.NewProductService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize product service: %w", err)
	}
	webhookService, err := webhookctrl.NewWebhookService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook service: %w", err)
	}

	registry := job.NewMemoryRegistry()
	taskID, err := registry.Create(ctx)
	if err != nil {
		return err
	}

	worker := ingest.NewWorker(productService, registry, nil, viper.GetInt("ingest.progress_interval"))

	var bar *progressbar.ProgressBar
	worker.OnProgress = func(current, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "importing")
		}
		_ = bar.Set(current)
	}

	if err := worker.Run(ctx, taskID, filepath.Base(importFile), data); err != nil {
		return err
	}

	final, err := registry.Get(ctx, taskID)
	if err != nil {
		return err
	}

	if final.Status == job.StatusFailure {
		if final.Result != nil {
			return fmt.Errorf("import failed: %s", final.Result.Error)
		}
		return fmt.Errorf("import failed")
	}

	if final.Result != nil {
		fmt.Printf("\n%s\n", final.Result.Summary)
	}

	dispatcher := webhook.NewDispatcher(webhookService, webhookConfig())
	if err := dispatcher.Dispatch(ctx, webhook.NewUploadCompletedEvent(final)); err != nil {
		return fmt.Errorf("failed to dispatch webhooks: %w", err)
	}

	return nil
}
