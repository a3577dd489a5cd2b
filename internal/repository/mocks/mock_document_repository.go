package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"healthdoc/internal/model"
	"healthdoc/internal/repository"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Document]), args.Error(1)
}

func (m *MockDocumentRepository) UpdateStage(ctx context.Context, id string, stage model.Stage, progress int) error {
	args := m.Called(ctx, id, stage, progress)
	return args.Error(0)
}

func (m *MockDocumentRepository) UpdateRawText(ctx context.Context, id, rawText string) error {
	args := m.Called(ctx, id, rawText)
	return args.Error(0)
}

func (m *MockDocumentRepository) SaveAnalysis(ctx context.Context, id string, data *model.AnalyzedHealthData, insights *model.Insights, insightText string) error {
	args := m.Called(ctx, id, data, insights, insightText)
	return args.Error(0)
}

func (m *MockDocumentRepository) MarkComplete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentRepository) MarkError(ctx context.Context, id, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

func (m *MockDocumentRepository) DeleteAnalysis(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
