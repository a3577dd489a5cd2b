// Package pipeline drives a stored document through text extraction,
// structured analysis, insight generation, and persistence, checkpointing
// progress after every transition so clients can follow along and a crashed
// run leaves an accurate trail.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"healthdoc/internal/common"
	"healthdoc/internal/model"
	"healthdoc/internal/ocr"
	"healthdoc/internal/repository"
)

var (
	ErrQueueClosed = errors.New("pipeline queue is shut down")
	ErrQueueFull   = errors.New("pipeline queue is full")
)

var (
	documentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthdoc_documents_processed_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthdoc_stage_duration_seconds",
		Help:    "Wall time spent per pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})
)

// DataExtractor turns raw text into classified structured data.
type DataExtractor interface {
	Extract(ctx context.Context, rawText string) (*model.AnalyzedHealthData, error)
}

// InsightGenerator produces the narrative layer for analyzed data.
type InsightGenerator interface {
	Generate(ctx context.Context, data *model.AnalyzedHealthData) (*model.Insights, error)
}

// Orchestrator runs the document pipeline. It implements Runner.
type Orchestrator struct {
	repo        repository.DocumentRepository
	text        ocr.TextExtractor
	extractor   DataExtractor
	insight     InsightGenerator
	events      *Broker
	log         *slog.Logger
	callTimeout time.Duration
}

func NewOrchestrator(
	repo repository.DocumentRepository,
	text ocr.TextExtractor,
	extractor DataExtractor,
	insight InsightGenerator,
	events *Broker,
	callTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if callTimeout <= 0 {
		callTimeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		repo:        repo,
		text:        text,
		extractor:   extractor,
		insight:     insight,
		events:      events,
		log:         logger,
		callTimeout: callTimeout,
	}
}

// Run executes the full pipeline for one document. Stage failures mark the
// document as errored and are returned; an insight failure alone does not
// fail the run, the document completes without a narrative.
func (o *Orchestrator) Run(ctx context.Context, job Job) error {
	o.log.Info("pipeline.start", "document_id", job.DocumentID, "filename", job.Filename)

	// Text extraction.
	if err := o.checkpoint(ctx, job.DocumentID, model.StageExtractingText); err != nil {
		return err
	}
	rawText, err := o.extractText(ctx, job)
	if err != nil {
		return o.fail(ctx, job.DocumentID, model.StageExtractingText, err)
	}
	if err := o.repo.UpdateRawText(ctx, job.DocumentID, rawText); err != nil {
		// The text is an audit artifact; analysis proceeds without it.
		o.log.Warn("pipeline.raw_text.save_failed", "document_id", job.DocumentID, "error", err)
	}

	// Structured analysis.
	if err := o.checkpoint(ctx, job.DocumentID, model.StageAnalyzingData); err != nil {
		return err
	}
	analysis, err := o.analyze(ctx, rawText)
	if err != nil {
		return o.fail(ctx, job.DocumentID, model.StageAnalyzingData, err)
	}

	insights := o.generateInsights(ctx, job.DocumentID, analysis)

	// Persistence.
	if err := o.checkpoint(ctx, job.DocumentID, model.StageSavingResults); err != nil {
		return err
	}
	if err := o.repo.SaveAnalysis(ctx, job.DocumentID, analysis, insights, insights.Markdown()); err != nil {
		return o.fail(ctx, job.DocumentID, model.StageSavingResults, err)
	}

	if err := o.repo.MarkComplete(ctx, job.DocumentID); err != nil {
		return o.fail(ctx, job.DocumentID, model.StageSavingResults, err)
	}
	o.events.Publish(Event{
		DocumentID: job.DocumentID,
		Stage:      model.StageComplete,
		Progress:   model.StageProgress[model.StageComplete],
		Status:     model.StatusComplete,
	})
	documentsProcessed.WithLabelValues("complete").Inc()
	o.log.Info("pipeline.done", "document_id", job.DocumentID, "markers", len(analysis.Markers))
	return nil
}

func (o *Orchestrator) extractText(ctx context.Context, job Job) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	defer observeStage(model.StageExtractingText, time.Now())
	return o.text.ExtractText(tctx, job.FileURL)
}

func (o *Orchestrator) analyze(ctx context.Context, rawText string) (*model.AnalyzedHealthData, error) {
	tctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	defer observeStage(model.StageAnalyzingData, time.Now())
	return o.extractor.Extract(tctx, rawText)
}

// generateInsights is best-effort: any failure degrades to a nil narrative.
func (o *Orchestrator) generateInsights(ctx context.Context, documentID string, analysis *model.AnalyzedHealthData) *model.Insights {
	tctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	insights, err := o.insight.Generate(tctx, analysis)
	if err != nil {
		o.log.Warn("pipeline.insight.degraded", "document_id", documentID, "error", err)
		documentsProcessed.WithLabelValues("insight_degraded").Inc()
		return nil
	}
	return insights
}

// checkpoint persists the stage transition, then announces it. A checkpoint
// that cannot be persisted fails the run: the stored state must never lag
// behind what subscribers were told.
func (o *Orchestrator) checkpoint(ctx context.Context, documentID string, stage model.Stage) error {
	progress := model.StageProgress[stage]
	if err := o.repo.UpdateStage(ctx, documentID, stage, progress); err != nil {
		return o.fail(ctx, documentID, stage, common.WrapError(err, "persist checkpoint"))
	}
	o.events.Publish(Event{
		DocumentID: documentID,
		Stage:      stage,
		Progress:   progress,
		Status:     model.StatusProcessing,
	})
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, documentID string, stage model.Stage, err error) error {
	o.log.Error("pipeline.stage.failed", "document_id", documentID, "stage", stage, "error", err)
	if merr := o.repo.MarkError(ctx, documentID, err.Error()); merr != nil {
		o.log.Error("pipeline.mark_error.failed", "document_id", documentID, "error", merr)
	}
	o.events.Publish(Event{
		DocumentID: documentID,
		Stage:      stage,
		Progress:   model.StageProgress[stage],
		Status:     model.StatusError,
		Error:      err.Error(),
	})
	documentsProcessed.WithLabelValues("error").Inc()
	return err
}

func observeStage(stage model.Stage, start time.Time) {
	stageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
