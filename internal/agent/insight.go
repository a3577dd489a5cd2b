package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"healthdoc/internal/llm"
	"healthdoc/internal/model"
)

const insightSystemPrompt = `You are a health information assistant. You receive a list of health markers that fall outside their normal reference ranges and return a single JSON object:

{
  "summary": "<plain-language overview of what the results show>",
  "key_findings": ["<specific observation about one marker>"],
  "recommendations": ["<general lifestyle or follow-up suggestion>"],
  "disclaimer": "<standard medical disclaimer>"
}

Rules:
- Explain in plain language a patient can understand. Never diagnose.
- Recommendations must be general wellness guidance, not treatment advice.
- Respond with the JSON object only, no surrounding prose.`

// Insight generates the narrative layer from classified markers.
type Insight struct {
	client llm.Client
	log    *slog.Logger
}

func NewInsight(client llm.Client, logger *slog.Logger) *Insight {
	if logger == nil {
		logger = slog.Default()
	}
	return &Insight{client: client, log: logger}
}

// Generate produces insights for the analyzed data. When every classified
// marker is within range it short-circuits with a canned all-normal result
// and never calls the model.
func (a *Insight) Generate(ctx context.Context, data *model.AnalyzedHealthData) (*model.Insights, error) {
	rid := uuid.New().String()
	start := time.Now()

	if data == nil || len(data.Markers) == 0 {
		return &model.Insights{
			Summary:         "No measurable health markers were identified in this document.",
			KeyFindings:     []string{"The document did not contain marker values that could be analyzed."},
			Recommendations: []string{"If you expected results here, check that the uploaded file is a readable lab report."},
			Disclaimer:      model.Disclaimer,
		}, nil
	}

	abnormal := abnormalMarkers(data.Markers)
	if len(abnormal) == 0 {
		a.log.Info("agent.insight.all_normal", "req_id", rid, "markers", len(data.Markers))
		return &model.Insights{
			Summary:         "All analyzed health markers are within their normal reference ranges.",
			KeyFindings:     []string{"No markers outside normal ranges were detected."},
			Recommendations: []string{"Maintain your current health routine.", "Continue regular check-ups as advised by your healthcare provider."},
			Disclaimer:      model.Disclaimer,
		}, nil
	}

	a.log.Info("agent.insight.start", "req_id", rid, "abnormal", len(abnormal), "markers", len(data.Markers))

	content, err := a.client.Complete(ctx, llm.CompletionRequest{
		System:   insightSystemPrompt,
		User:     buildInsightContext(data, abnormal),
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var ins model.Insights
	if err := llm.ParseOrFail(content, &ins); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ins.Disclaimer) == "" {
		ins.Disclaimer = model.Disclaimer
	}

	a.log.Info("agent.insight.done", "req_id", rid, "findings", len(ins.KeyFindings), "elapsed_ms", time.Since(start).Milliseconds())
	return &ins, nil
}

func abnormalMarkers(markers []model.HealthMarker) []model.HealthMarker {
	out := make([]model.HealthMarker, 0, len(markers))
	for _, m := range markers {
		if m.Severity != model.SeverityNormal && m.Severity != model.SeverityUnknown {
			out = append(out, m)
		}
	}
	return out
}

func buildInsightContext(data *model.AnalyzedHealthData, abnormal []model.HealthMarker) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s\n", data.DocumentType)
	if data.TestDate != "" {
		fmt.Fprintf(&b, "Test date: %s\n", data.TestDate)
	}
	fmt.Fprintf(&b, "Total markers analyzed: %d\n\nMarkers outside normal ranges:\n", len(data.Markers))
	for _, m := range abnormal {
		fmt.Fprintf(&b, "- %s: %s %s (reference range %s, classified %s)\n",
			m.Name, m.Value, m.Unit, m.ReferenceRange, m.Severity)
	}
	return b.String()
}
