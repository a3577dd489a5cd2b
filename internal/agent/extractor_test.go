package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"healthdoc/internal/common"
	"healthdoc/internal/llm"
	"healthdoc/internal/llm/mocks"
	"healthdoc/internal/model"
)

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("classifies extracted markers", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.CompletionRequest) bool {
			return req.JSONMode && req.System != ""
		})).Return(`{
			"markers": [
				{"marker": "Hemoglobin", "value": "14.5", "unit": "g/dL", "reference_range": "13.5 - 17.5"},
				{"marker": "Creatinine", "value": 1.4, "unit": "mg/dL", "reference_range": "0.70 - 1.30"},
				{"marker": "HbA1c", "value": "5.4", "unit": "%", "reference_range": ""}
			],
			"document_type": "Blood Test Report",
			"test_date": "03/15/2024"
		}`, nil)

		e := NewExtractor(cl, ExtractorConfig{}, nil)
		data, err := e.Extract(ctx, "raw report text")
		assert.NoError(t, err)
		assert.Len(t, data.Markers, 3)

		assert.Equal(t, model.SeverityNormal, data.Markers[0].Severity)
		assert.Equal(t, model.SeverityAbnormalHigh, data.Markers[1].Severity)
		assert.Equal(t, "1.4", data.Markers[1].Value)
		assert.Equal(t, model.SeverityUnknown, data.Markers[2].Severity)

		assert.Equal(t, "Blood Test Report", data.DocumentType)
		assert.Equal(t, "2024-03-15", data.TestDate)
		cl.AssertExpectations(t)
	})

	t.Run("drops malformed markers, keeps the rest", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.Anything).Return(`{
			"markers": [
				{"marker": "Hemoglobin", "value": "14.5", "reference_range": "13.5 - 17.5"},
				{"marker": "", "value": "9"},
				{"marker": "Glucose"},
				"not an object"
			],
			"document_type": "Lab Panel"
		}`, nil)

		e := NewExtractor(cl, ExtractorConfig{}, nil)
		data, err := e.Extract(ctx, "text")
		assert.NoError(t, err)
		assert.Len(t, data.Markers, 1)
		assert.Equal(t, "Hemoglobin", data.Markers[0].Name)
	})

	t.Run("empty marker list is valid", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.Anything).Return(`{"markers": [], "document_type": "Prescription"}`, nil)

		e := NewExtractor(cl, ExtractorConfig{}, nil)
		data, err := e.Extract(ctx, "text")
		assert.NoError(t, err)
		assert.Empty(t, data.Markers)
		assert.Equal(t, "Prescription", data.DocumentType)
	})

	t.Run("missing marker collection is invalid structure", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.Anything).Return(`{"document_type": "Blood Test Report"}`, nil)

		e := NewExtractor(cl, ExtractorConfig{}, nil)
		_, err := e.Extract(ctx, "text")
		assert.True(t, errors.Is(err, common.ErrInvalidStructure))
	})

	t.Run("unparseable response is malformed", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.Anything).Return(`{"markers": [`, nil)

		e := NewExtractor(cl, ExtractorConfig{}, nil)
		_, err := e.Extract(ctx, "text")
		assert.True(t, errors.Is(err, common.ErrMalformedResponse))
	})

	t.Run("transport errors pass through", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.Anything).Return("", common.ErrTransport)

		e := NewExtractor(cl, ExtractorConfig{}, nil)
		_, err := e.Extract(ctx, "text")
		assert.True(t, errors.Is(err, common.ErrTransport))
	})
}

func TestNormalizeTestDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-15", "2024-03-15"},
		{"03/15/2024", "2024-03-15"},
		{"15 Mar 2024", "2024-03-15"},
		{"March 15, 2024", "2024-03-15"},
		{"null", ""},
		{"", ""},
		{"sometime last spring", "sometime last spring"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeTestDate(tt.in), "input %q", tt.in)
	}
}
