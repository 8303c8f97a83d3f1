package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmrzaf/tablegen/internal/api"
	"github.com/mmrzaf/tablegen/internal/app"
	"github.com/mmrzaf/tablegen/internal/config"
	"github.com/mmrzaf/tablegen/internal/generators"
	"github.com/mmrzaf/tablegen/internal/infra/repos/jobs"
	"github.com/mmrzaf/tablegen/internal/infra/repos/requests"
	"github.com/mmrzaf/tablegen/internal/llm"
	"github.com/mmrzaf/tablegen/internal/logging"
	"github.com/mmrzaf/tablegen/internal/registry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	flag.StringVar(&cfg.RequestsDir, "requests-dir", cfg.RequestsDir, "Stored requests directory")
	flag.StringVar(&cfg.JobStore, "store", cfg.JobStore, "Job store (memory|sqlite|postgres|redis)")
	flag.StringVar(&cfg.DBDSN, "db", cfg.DBDSN, "Job store path or DSN")
	flag.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the redis job store")
	flag.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "Bind address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent generation jobs")
	flag.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Pending job queue capacity")
	flag.Parse()

	logger := logging.NewLogger(cfg.LogLevel).WithComponent("api_main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobRepo, err := jobs.Open(ctx, cfg)
	if err != nil {
		logger.Errorw("startup.failed", map[string]any{"error": err.Error(), "stage": "init_job_store", "store": cfg.JobStore})
		os.Exit(1)
	}
	defer jobRepo.Close()

	var client generators.CompletionClient
	if cfg.OpenAIKey != "" {
		client = llm.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.LLMTimeout)
	} else {
		logger.Warnw("startup.llm_disabled", map[string]any{"reason": "OPENAI_API_KEY not set"})
	}

	genRegistry := registry.DefaultGeneratorRegistry(client)
	pool := app.NewWorkerPool(cfg.Workers, cfg.QueueSize)
	jobService := app.NewJobService(jobRepo, genRegistry, pool, logger, app.JobServiceOptions{
		DefaultLocale: cfg.DefaultLocale,
	})

	handler := api.NewHandler(jobService, requests.NewFileRepository(cfg.RequestsDir), genRegistry)
	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.NewRouter(handler, logger.WithComponent("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("startup.listening", map[string]any{
			"bind":    cfg.BindAddr,
			"store":   cfg.JobStore,
			"workers": cfg.Workers,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("startup.failed", map[string]any{"error": err.Error(), "stage": "listen"})
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Infow("shutdown.started", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("shutdown.http_failed", map[string]any{"error": err.Error()})
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("shutdown.workers_interrupted", map[string]any{"error": err.Error()})
	}
	logger.Infow("shutdown.completed", nil)
}
