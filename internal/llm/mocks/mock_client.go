package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"healthdoc/internal/llm"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
