package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthdoc/internal/agent"
	"healthdoc/internal/config"
	"healthdoc/internal/database"
	"healthdoc/internal/database/migration"
	"healthdoc/internal/http/handler"
	"healthdoc/internal/http/middleware"
	"healthdoc/internal/llm"
	"healthdoc/internal/ocr"
	appotel "healthdoc/internal/otel"
	"healthdoc/internal/pipeline"
	"healthdoc/internal/repository/postgres"
	"healthdoc/internal/service"
	"healthdoc/internal/storage"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := appotel.Init(ctx, log)
	if err != nil {
		log.Error("startup.tracing_failed", "error", err)
		os.Exit(1)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Error("startup.database_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migration.Run(ctx, db, log); err != nil {
		log.Error("startup.migration_failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewMinIO(ctx, storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	}, log)
	if err != nil {
		log.Error("startup.storage_failed", "error", err)
		os.Exit(1)
	}

	llmClient, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, log)
	if err != nil {
		log.Error("startup.llm_failed", "error", err)
		os.Exit(1)
	}

	textExtractor, err := ocr.NewMistral(ocr.Config{
		BaseURL: cfg.OCR.BaseURL,
		APIKey:  cfg.OCR.APIKey,
		Model:   cfg.OCR.Model,
		Timeout: cfg.OCR.Timeout,
	}, log)
	if err != nil {
		log.Error("startup.ocr_failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.NewDocumentRepository(db)
	extractor := agent.NewExtractor(llmClient, agent.ExtractorConfig{
		Tolerance:     cfg.Pipeline.Tolerance,
		MinRangeRatio: cfg.Pipeline.MinRangeRatio,
	}, log)
	insight := agent.NewInsight(llmClient, log)
	broker := pipeline.NewBroker()

	orchestrator := pipeline.NewOrchestrator(repo, textExtractor, extractor, insight, broker, cfg.OCR.Timeout, log)
	queue := pipeline.NewQueue(orchestrator, log,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithJobTimeout(cfg.Pipeline.JobTimeout),
	)

	svc := service.NewDocumentService(store, repo, queue, service.Config{}, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    32 * 1024 * 1024,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Error("startup.metrics_failed", "error", err)
		os.Exit(1)
	}

	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(otelfiber.Middleware())
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handler.RegisterRoutes(app, db, svc, broker)

	go func() {
		addr := cfg.AppHost + ":" + cfg.AppPort
		log.Info("server.listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Error("server.stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server.shutdown_failed", "error", err)
	}
	queue.Shutdown()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing.shutdown_failed", "error", err)
	}
	log.Info("server.stopped")
}
