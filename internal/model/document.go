package model

import "time"

// Status is the coarse lifecycle state of a document.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further pipeline activity can occur.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Stage is the fine-grained pipeline position of a document.
type Stage string

const (
	StageQueued         Stage = "queued"
	StageExtractingText Stage = "extracting_text"
	StageAnalyzingData  Stage = "analyzing_data"
	StageSavingResults  Stage = "saving_results"
	StageComplete       Stage = "complete"
)

// StageProgress maps each stage to the progress checkpoint persisted on entry.
var StageProgress = map[Stage]int{
	StageQueued:         0,
	StageExtractingText: 10,
	StageAnalyzingData:  50,
	StageSavingResults:  90,
	StageComplete:       100,
}

// Document represents an uploaded health document and its analysis state.
// This is a pure domain model with no database-specific dependencies or tags.
type Document struct {
	ID           string              `json:"id"`
	Filename     string              `json:"filename"`
	StoragePath  string              `json:"storage_path"`
	PublicURL    string              `json:"public_url,omitempty"`
	Status       Status              `json:"status"`
	Stage        Stage               `json:"processing_stage"`
	Progress     int                 `json:"progress"`
	RawText      string              `json:"raw_text,omitempty"`
	Analysis     *AnalyzedHealthData `json:"analysis,omitempty"`
	Insights     *Insights           `json:"insights,omitempty"`
	InsightText  string              `json:"insight_text,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	UploadedAt   time.Time           `json:"uploaded_at"`
	ProcessedAt  *time.Time          `json:"processed_at,omitempty"`
}
