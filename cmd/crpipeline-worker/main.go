package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/common"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/httpclient"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/jobs/executor"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/jobs/resolver"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/ocr"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/queue"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/services/pdf"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/storage/blob"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/storage/postgres"
)

var version = "0.1.0"

var (
	configFile  string
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "crpipeline-worker",
	Short: "Analysis job worker for the crPipeline document platform",
	Long: `crpipeline-worker consumes analysis job ids from the Redis jobs
list and runs each job's pipeline stages (ocr, parse, ai, report),
recording stage artifacts in blob storage and Postgres.

Configuration comes from an optional TOML file plus environment
variables; SIGHUP re-reads the configured env file and reapplies the
worker concurrency without interrupting running jobs.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("crpipeline-worker version %s\n", version)
			return nil
		}
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "crpipeline.toml", "configuration file path (missing file is ignored)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	config, err := common.LoadConfig(configFile)
	if err != nil {
		arbor.NewLogger().Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	logger := common.InitLogger(config)
	logger.Info().
		Str("version", version).
		Str("environment", config.Environment).
		Msg("Starting crpipeline-worker")

	store, err := postgres.NewStore(config.Database.URL)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to Postgres")
		return err
	}
	defer store.Close()

	blobs, err := blob.NewStore(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize blob storage")
		return err
	}

	redisClient, err := queue.NewClient(config.Queue.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to Redis")
		return err
	}
	defer redisClient.Close()

	env := resolver.EnvFromConfig(config)
	recorder := executor.NewArtifactRecorder(store, blobs, logger)

	jobExecutor := executor.NewJobExecutor(store, blobs, recorder, logger)
	jobExecutor.RegisterStageExecutor(executor.NewOCRStageExecutor(
		ocr.NewLocalEngine(config.OCR.ToolPath, logger),
		httpclient.NewOCRClient(logger),
		recorder, env, logger,
	))
	jobExecutor.RegisterStageExecutor(executor.NewParseStageExecutor(recorder, logger))
	jobExecutor.RegisterStageExecutor(executor.NewAIStageExecutor(
		httpclient.NewAIClient(logger),
		recorder, env, logger,
	))
	jobExecutor.RegisterStageExecutor(executor.NewReportStageExecutor(
		pdf.NewService(logger),
		recorder, logger,
	))

	consumer := queue.NewConsumer(
		redisClient,
		config.Queue.JobsKey,
		jobExecutor,
		config.Worker.Concurrency,
		config.Worker.ProcessOneJob,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Worker.MetricsPort > 0 {
		health := startHealthServer(config.Worker.MetricsPort, logger)
		defer health.Shutdown(context.Background())
	}

	go handleSignals(cancel, config, consumer, logger)

	return consumer.Run(ctx)
}

// handleSignals cancels the consumer on SIGINT/SIGTERM and reloads the
// env file on SIGHUP. In-flight jobs are never interrupted either way.
func handleSignals(cancel context.CancelFunc, config *common.Config, consumer *queue.Consumer, logger arbor.ILogger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range signals {
		if sig == syscall.SIGHUP {
			reloaded, err := config.ReloadEnv()
			if err != nil {
				logger.Warn().Err(err).Msg("Env reload failed, keeping current configuration")
				continue
			}
			consumer.SetConcurrency(reloaded.Worker.Concurrency)
			logger.Info().Msg("Configuration reloaded")
			continue
		}

		logger.Info().Str("signal", sig.String()).Msg("Shutting down, waiting for in-flight jobs")
		cancel()
		return
	}
}

// startHealthServer exposes a liveness endpoint for the orchestrator.
func startHealthServer(port int, logger arbor.ILogger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("Health endpoint stopped")
		}
	}()

	logger.Info().Int("port", port).Msg("Health endpoint listening")
	return server
}
