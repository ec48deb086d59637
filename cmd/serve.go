package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "skuflow/handler/http"
	"skuflow/src/core/ingest"
	"skuflow/src/core/webhook"
	"skuflow/src/infrastructure/job"
	"skuflow/src/log"
	"skuflow/src/storage/minioctrl"
	"skuflow/src/storage/postgres/productctrl"
	"skuflow/src/storage/postgres/webhookctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog import server",
	Long: `The serve command starts the HTTP API and, with the default gochannel
transport, the in-process ingest pipeline. With the amqp transport the server
only publishes upload jobs; run "skuflow worker" separately to process them.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
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
	if err := minioService.EnsureBucketExists(context.Background(), bucket); err != nil {
		return err
	}

	productService, err := productctrl.NewProductService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize product service: %w", err)
	}
	webhookService, err := webhookctrl.NewWebhookService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook service: %w", err)
	}

	wmLogger := watermill.NewStdLogger(false, false)

	var (
		publisher  message.Publisher
		subscriber message.Subscriber
		registry   job.Registry
		runRouter  bool
	)
	switch transport := viper.GetString("queue.transport"); transport {
	case "amqp":
		// Jobs are consumed by separate worker processes; job state must
		// live in the shared database so status polls see their progress.
		publisher, err = newAMQPPublisher(wmLogger)
		if err != nil {
			return err
		}
		registry, err = job.NewPostgresRegistry(db)
		if err != nil {
			return err
		}
	case "gochannel":
		pubsub := newGoChannelPubSub(wmLogger)
		defer pubsub.Close()
		publisher = pubsub
		subscriber = pubsub
		registry = job.NewMemoryRegistry()
		runRouter = true
	default:
		return fmt.Errorf("unknown queue transport %q", transport)
	}

	worker := ingest.NewWorker(productService, registry, publisher, viper.GetInt("ingest.progress_interval"))
	ingestService := ingest.NewService(minioService, bucket, registry, publisher, worker)
	dispatcher := webhook.NewDispatcher(webhookService, webhookConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var router *message.Router
	if runRouter {
		router, err = newPipelineRouter(wmLogger, subscriber, ingestService, dispatcher)
		if err != nil {
			return err
		}
		go func() {
			if err := router.Run(ctx); err != nil {
				log.Error(err, "pipeline router stopped")
			}
		}()
		// The gochannel transport drops messages published before its
		// subscriptions exist, which would leave accepted uploads stuck in
		// PENDING. Hold the HTTP server until the router is consuming.
		<-router.Running()
	}

	go sweepJobs(ctx, registry)

	// Setup gin router
	hdlr := httpHdlr.NewHandler(productService, webhookService, registry, ingestService)
	r := gin.Default()
	hdlr.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "failed to start server")
			os.Exit(1)
		}
	}()
	log.Info("server started", "port", viper.GetString("server.port"))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		timeout = 5 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	cancel()
	if router != nil {
		if err := router.Close(); err != nil {
			log.Error(err, "failed to close pipeline router")
		}
	}

	log.Info("server exited")
	return nil
}

// newPipelineRouter wires the two bus consumers: the upload processor and
// the webhook dispatcher.
func newPipelineRouter(
	logger watermill.LoggerAdapter,
	subscriber message.Subscriber,
	ingestService *ingest.Service,
	dispatcher *webhook.Dispatcher,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	router.AddNoPublisherHandler(
		"upload_processor",
		ingest.TopicUploadJobs,
		subscriber,
		ingestService.ProcessUploadMessage,
	)
	router.AddNoPublisherHandler(
		"webhook_dispatcher",
		ingest.TopicUploadEvents,
		subscriber,
		dispatcher.HandleMessage,
	)

	return router, nil
}

// sweepJobs drops terminal jobs older than the retention window.
func sweepJobs(ctx context.Context, registry job.Registry) {
	retention := viper.GetDuration("jobs.retention")
	interval := viper.GetDuration("jobs.sweep_interval")
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := registry.Prune(ctx, retention)
			if err != nil {
				log.Error(err, "job sweep failed")
				continue
			}
			if pruned > 0 {
				log.Info("pruned finished jobs", "count", pruned)
			}
		}
	}
}
