// Command ingestor runs the faculty ingestion pipeline: it polls the
// ingestion_jobs table for queued work and drives each job through the
// harvester, bibliographic client, and embedding provider.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/faculty-harvest/internal/biblio"
	"github.com/lueurxax/faculty-harvest/internal/config"
	"github.com/lueurxax/faculty-harvest/internal/db"
	"github.com/lueurxax/faculty-harvest/internal/embeddings"
	"github.com/lueurxax/faculty-harvest/internal/harvester"
	"github.com/lueurxax/faculty-harvest/internal/httpclient"
	"github.com/lueurxax/faculty-harvest/internal/observability"
	"github.com/lueurxax/faculty-harvest/internal/orchestrator"
	"github.com/lueurxax/faculty-harvest/internal/render"
	"github.com/lueurxax/faculty-harvest/internal/worker"
)

const (
	jobPollInterval = 2 * time.Second
	workerName      = "ingestor"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "faculty-harvest").Logger()

	var enqueueUniversity, enqueueURL string

	flag.StringVar(&enqueueUniversity, "enqueue-university", "", "if set (with -enqueue-url), enqueue one job and exit")
	flag.StringVar(&enqueueURL, "enqueue-url", "", "directory URL to harvest for -enqueue-university")
	flag.Parse()

	if err := run(enqueueUniversity, enqueueURL, &logger); err != nil {
		logger.Fatal().Err(err).Msg("ingestor exited with error")
	}
}

func run(enqueueUniversity, enqueueURL string, logger *zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	o := buildOrchestrator(database, *cfg, logger)

	if enqueueUniversity != "" && enqueueURL != "" {
		jobID, err := o.EnqueueIngest(ctx, enqueueUniversity, enqueueURL)
		if err != nil {
			return err
		}

		logger.Info().Str("job_id", jobID).Str("university", enqueueUniversity).Msg("enqueued ingestion job")

		return nil
	}

	healthSrv := observability.NewServer(database, cfg.HealthPort, logger)

	go func() {
		if err := healthSrv.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("health server stopped")
		}
	}()

	return worker.Loop(ctx, worker.Config{
		Name:         workerName,
		PollInterval: jobPollInterval,
		Logger:       logger,
		Process: func(ctx context.Context) error {
			return pollAndIngest(ctx, database, o, logger)
		},
	})
}

// pollAndIngest claims the oldest queued job, if any, and runs it to
// completion (per component design, "completion" means every professor
// task has been dispatched, not that every embedding has finished).
func pollAndIngest(ctx context.Context, database *db.DB, o *orchestrator.Orchestrator, logger *zerolog.Logger) error {
	job, ok, err := database.ClaimQueuedJob(ctx)
	if err != nil {
		return err
	}

	if !ok {
		return nil
	}

	logger.Info().Str("job_id", job.ID).Str("university", job.University).Msg("claimed ingestion job")

	if err := o.IngestRoster(ctx, job.University, job.DirectoryURL, job.ID); err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("ingest roster failed")
	}

	return nil
}

func buildOrchestrator(database *db.DB, cfg config.Config, logger *zerolog.Logger) *orchestrator.Orchestrator {
	httpClient, err := httpclient.New(httpclient.Config{
		Timeout:         cfg.HTTPTimeout,
		RequestsPerSec:  cfg.HTTPRatePerSec,
		UserAgent:       cfg.HTTPUserAgent,
		MaxRedirects:    cfg.HTTPMaxRedirects,
		FollowRedirects: true,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http client")
	}

	renderer := render.New(render.Config{
		Enabled: cfg.BrowserEnabled,
		Timeout: cfg.BrowserTimeout,
	})

	h := harvester.New(httpClient, renderer, harvester.Config{
		MaxTraversalPages: cfg.MaxTraversalPages,
	}, logger)

	biblioClient := biblio.New(httpClient, biblio.Config{
		BaseURL:   cfg.BiblioBaseURL,
		APIKey:    cfg.BiblioAPIKey,
		MaxPapers: cfg.BiblioMaxPapers,
	}, logger)

	embedder := embeddings.NewClient(embeddings.Config{
		OpenAIAPIKey:         cfg.OpenAIAPIKey,
		OpenAIModel:          cfg.OpenAIModel,
		OpenAIDimensions:     cfg.EmbeddingDimensions,
		CohereAPIKey:         cfg.CohereAPIKey,
		ProviderOrder:        cfg.EmbeddingProvider,
		TargetDimensions:     cfg.EmbeddingDimensions,
		CircuitBreakerConfig: embeddings.DefaultCircuitBreakerConfig(),
	}, logger)

	registry, ok := embedder.(*embeddings.Registry)
	if !ok {
		logger.Fatal().Msg("embedding client does not expose provider metadata")
	}

	return orchestrator.New(database, h, biblioClient, registry, orchestrator.Config{
		WorkerCount:      cfg.WorkerCount,
		DeepEmailScrape:  cfg.DeepEmailScrape,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryInitialWait: cfg.RetryInitialWait,
	}, logger)
}
