package repository

import (
	"context"

	"healthdoc/internal/model"
)

// PageQuery bounds a listing request.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is one page of items plus the unpaged total.
type PageResult[T any] struct {
	Items []T
	Total int
}

// DocumentRepository persists documents, their pipeline checkpoints, and
// the analysis results produced for them.
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)
	FindByID(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// UpdateStage records a pipeline checkpoint: stage and progress move
	// forward together and the document enters the processing state.
	UpdateStage(ctx context.Context, id string, stage model.Stage, progress int) error
	UpdateRawText(ctx context.Context, id, rawText string) error
	SaveAnalysis(ctx context.Context, id string, data *model.AnalyzedHealthData, insights *model.Insights, insightText string) error
	MarkComplete(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, message string) error

	DeleteAnalysis(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
