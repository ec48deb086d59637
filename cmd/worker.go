package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"skuflow/src/core/ingest"
	"skuflow/src/core/webhook"
	"skuflow/src/infrastructure/job"
	"skuflow/src/log"
	"skuflow/src/storage/minioctrl"
	"skuflow/src/storage/postgres/productctrl"
	"skuflow/src/storage/postgres/webhookctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a background ingest worker",
	Long: `The worker command consumes queued uploads from RabbitMQ, writes
products to the catalog, and dispatches webhook notifications. It requires
the amqp transport; job state is shared with the API server through
PostgreSQL.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if viper.GetBool("log.development") {
		log.SetDevelopment()
	}
	defer log.Sync()

	db, err := openDatabase()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	defer sqlDB.Close()

	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize minio service: %w", err)
	}
	bucket := viper.GetString("minio.uploads_bucket")

	productService, err := productctrl.NewProductService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize product service: %w", err)
	}
	webhookService, err := webhookctrl.NewWebhookService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook service: %w", err)
	}
	registry, err := job.NewPostgresRegistry(db)
	if err != nil {
		return err
	}

	wmLogger := watermill.NewStdLogger(false, false)

	publisher, err := newAMQPPublisher(wmLogger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	subscriber, err := newAMQPSubscriber(wmLogger)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	worker := ingest.NewWorker(productService, registry, publisher, viper.GetInt("ingest.progress_interval"))
	ingestService := ingest.NewService(minioService, bucket, registry, publisher, worker)
	dispatcher := webhook.NewDispatcher(webhookService, webhookConfig())

	router, err := newPipelineRouter(wmLogger, subscriber, ingestService, dispatcher)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "pipeline router stopped")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("shutting down worker")
	cancel()
	if err := router.Close(); err != nil {
		log.Error(err, "failed to close pipeline router")
	}
	log.Info("worker stopped")

	return nil
}
