// Package agent holds the two language-model collaborators: the structured
// data extractor and the insight generator. Both talk through llm.Client so
// tests can swap the model out.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"healthdoc/internal/classify"
	"healthdoc/internal/common"
	"healthdoc/internal/llm"
	"healthdoc/internal/model"
)

const extractionSystemPrompt = `You are a medical data extraction assistant. You receive the raw text of a health document (lab report, blood panel, prescription, or similar) and return a single JSON object with exactly this structure:

{
  "markers": [
    {"marker": "<name>", "value": "<value as printed>", "unit": "<unit or empty>", "reference_range": "<range as printed or empty>"}
  ],
  "document_type": "<short description, e.g. Blood Test Report>",
  "test_date": "<date in YYYY-MM-DD if present, else empty>",
  "summary": "<one paragraph overview>",
  "key_findings": ["<finding>"],
  "recommendations": ["<general wellness suggestion>"],
  "disclaimer": "<standard medical disclaimer>"
}

Rules:
- Copy marker names, values, units and reference ranges exactly as they appear. Do not invent markers that are not in the text.
- If the document contains no measurable markers, return an empty markers array.
- Respond with the JSON object only, no surrounding prose.`

// ExtractorConfig tunes classification and quality reporting.
type ExtractorConfig struct {
	// Tolerance is the borderline band passed to the range classifier.
	Tolerance float64
	// MinRangeRatio is the fraction of markers that must carry a parseable
	// reference range before a low-coverage warning is logged.
	MinRangeRatio float64
}

// Extractor turns raw document text into classified structured data.
type Extractor struct {
	client        llm.Client
	tolerance     float64
	minRangeRatio float64
	log           *slog.Logger
}

func NewExtractor(client llm.Client, cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = classify.DefaultTolerance
	}
	if cfg.MinRangeRatio <= 0 {
		cfg.MinRangeRatio = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:        client,
		tolerance:     cfg.Tolerance,
		minRangeRatio: cfg.MinRangeRatio,
		log:           logger,
	}
}

// extractionResponse mirrors the full object the model returns. The
// narrative fields ride along in the same completion but are superseded by
// the insight generator and never surfaced.
type extractionResponse struct {
	Markers         []json.RawMessage `json:"markers"`
	DocumentType    string            `json:"document_type"`
	TestDate        string            `json:"test_date"`
	Summary         string            `json:"summary"`
	KeyFindings     []string          `json:"key_findings"`
	Recommendations []string          `json:"recommendations"`
	Disclaimer      string            `json:"disclaimer"`
}

type rawMarker struct {
	Name           string `json:"marker"`
	Value          any    `json:"value"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"reference_range"`
}

// Extract asks the model for structured data, validates the envelope,
// classifies every accepted marker, and reports range coverage. Individual
// malformed markers are dropped; a missing marker collection is fatal.
func (e *Extractor) Extract(ctx context.Context, rawText string) (*model.AnalyzedHealthData, error) {
	rid := uuid.New().String()
	start := time.Now()
	e.log.Info("agent.extract.start", "req_id", rid, "text_len", len(rawText))

	content, err := e.client.Complete(ctx, llm.CompletionRequest{
		System:   extractionSystemPrompt,
		User:     "Extract the structured data from this document text:\n\n" + rawText,
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var resp extractionResponse
	if err := llm.ParseOrFail(content, &resp); err != nil {
		return nil, err
	}
	if resp.Markers == nil {
		return nil, fmt.Errorf("%w: response has no marker collection", common.ErrInvalidStructure)
	}

	markers := make([]model.HealthMarker, 0, len(resp.Markers))
	withRange := 0
	for i, raw := range resp.Markers {
		var rm rawMarker
		if err := json.Unmarshal(raw, &rm); err != nil {
			e.log.Warn("agent.extract.marker_dropped", "req_id", rid, "index", i, "error", err)
			continue
		}
		value, ok := coerceValue(rm.Value)
		if rm.Name == "" || !ok {
			e.log.Warn("agent.extract.marker_dropped", "req_id", rid, "index", i, "reason", "missing name or value")
			continue
		}
		if strings.TrimSpace(rm.ReferenceRange) != "" {
			withRange++
		}
		markers = append(markers, model.HealthMarker{
			Name:           rm.Name,
			Value:          value,
			Unit:           rm.Unit,
			ReferenceRange: rm.ReferenceRange,
			Severity:       classify.ClassifyWith(value, rm.ReferenceRange, e.tolerance),
		})
	}

	if n := len(markers); n > 0 {
		ratio := float64(withRange) / float64(n)
		if ratio < e.minRangeRatio {
			e.log.Warn("agent.extract.low_range_coverage", "req_id", rid, "markers", n, "with_range", withRange, "ratio", ratio)
		}
	}

	data := &model.AnalyzedHealthData{
		Markers:      markers,
		DocumentType: resp.DocumentType,
		TestDate:     normalizeTestDate(resp.TestDate),
	}

	e.log.Info("agent.extract.done", "req_id", rid, "markers", len(markers), "dropped", len(resp.Markers)-len(markers), "elapsed_ms", time.Since(start).Milliseconds())
	return data, nil
}

// coerceValue accepts the string and numeric encodings models produce for
// marker values and renders them as the canonical string form.
func coerceValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return "", false
		}
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

// normalizeTestDate canonicalizes dates to YYYY-MM-DD where the format is
// recognized; anything else passes through untouched.
func normalizeTestDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "unknown") {
		return ""
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s
	}
	for _, layout := range []string{"01/02/2006", "02 Jan 2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
