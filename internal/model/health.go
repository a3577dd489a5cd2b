package model

import "strings"

// Severity is the verdict for a marker value relative to its reference range.
type Severity string

const (
	SeverityNormal         Severity = "normal"
	SeverityBorderlineLow  Severity = "borderline_low"
	SeverityBorderlineHigh Severity = "borderline_high"
	SeverityAbnormalLow    Severity = "abnormal_low"
	SeverityAbnormalHigh   Severity = "abnormal_high"
	SeverityUnknown        Severity = "unknown"
)

// HealthMarker is a single named clinical measurement. Value and
// ReferenceRange keep the exact formatting extracted from the source
// document; Severity is derived once at classification time and the
// marker is immutable afterwards.
type HealthMarker struct {
	Name           string   `json:"marker"`
	Value          string   `json:"value"`
	Unit           string   `json:"unit,omitempty"`
	ReferenceRange string   `json:"reference_range,omitempty"`
	Severity       Severity `json:"severity"`
}

// AnalyzedHealthData is the structured payload recovered from a document.
type AnalyzedHealthData struct {
	Markers      []HealthMarker `json:"markers"`
	DocumentType string         `json:"document_type"`
	TestDate     string         `json:"test_date,omitempty"`
}

// Disclaimer is appended to every generated insight verbatim.
const Disclaimer = "This analysis is for educational purposes only. It is not a substitute for professional medical advice, diagnosis, or treatment. Always consult a qualified healthcare provider with any questions you may have regarding a medical condition."

// Insights is the narrative layer generated from classified markers.
// Its absence does not invalidate an otherwise complete document.
type Insights struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
	Disclaimer      string   `json:"disclaimer"`
}

// Markdown renders the insights as the display text stored alongside the
// structured payload. Empty sections are omitted.
func (i *Insights) Markdown() string {
	if i == nil {
		return ""
	}
	var b strings.Builder
	if i.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(i.Summary)
		b.WriteString("\n")
	}
	if len(i.KeyFindings) > 0 {
		b.WriteString("\n## Key Findings\n\n")
		for _, f := range i.KeyFindings {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	if len(i.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for _, r := range i.Recommendations {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	if i.Disclaimer != "" {
		b.WriteString("\n---\n\n*")
		b.WriteString(i.Disclaimer)
		b.WriteString("*\n")
	}
	return b.String()
}
