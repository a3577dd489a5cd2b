package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"healthdoc/internal/common"
	"healthdoc/internal/llm"
	"healthdoc/internal/llm/mocks"
	"healthdoc/internal/model"
)

func TestInsight_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("all-normal short-circuits without a model call", func(t *testing.T) {
		cl := new(mocks.MockClient)

		a := NewInsight(cl, nil)
		ins, err := a.Generate(ctx, &model.AnalyzedHealthData{
			Markers: []model.HealthMarker{
				{Name: "Hemoglobin", Severity: model.SeverityNormal},
				{Name: "HbA1c", Severity: model.SeverityUnknown},
			},
		})
		assert.NoError(t, err)
		assert.Contains(t, ins.Summary, "within their normal reference ranges")
		assert.Equal(t, model.Disclaimer, ins.Disclaimer)
		cl.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("no markers yields a canned result", func(t *testing.T) {
		cl := new(mocks.MockClient)

		a := NewInsight(cl, nil)
		ins, err := a.Generate(ctx, &model.AnalyzedHealthData{DocumentType: "Prescription"})
		assert.NoError(t, err)
		assert.Contains(t, ins.Summary, "No measurable health markers")
		cl.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("abnormal markers go to the model", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.CompletionRequest) bool {
			return req.JSONMode &&
				strings.Contains(req.User, "Creatinine") &&
				!strings.Contains(req.User, "- Hemoglobin")
		})).Return(`{
			"summary": "Your creatinine is elevated.",
			"key_findings": ["Creatinine above the reference range"],
			"recommendations": ["Stay hydrated"],
			"disclaimer": "Talk to a doctor."
		}`, nil)

		a := NewInsight(cl, nil)
		ins, err := a.Generate(ctx, &model.AnalyzedHealthData{
			DocumentType: "Blood Test Report",
			Markers: []model.HealthMarker{
				{Name: "Hemoglobin", Value: "14.5", Severity: model.SeverityNormal},
				{Name: "Creatinine", Value: "1.4", Unit: "mg/dL", ReferenceRange: "0.70 - 1.30", Severity: model.SeverityAbnormalHigh},
			},
		})
		assert.NoError(t, err)
		assert.Equal(t, "Your creatinine is elevated.", ins.Summary)
		assert.Equal(t, "Talk to a doctor.", ins.Disclaimer)
		cl.AssertExpectations(t)
	})

	t.Run("missing disclaimer is filled in", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.Anything).Return(`{"summary": "s", "key_findings": [], "recommendations": []}`, nil)

		a := NewInsight(cl, nil)
		ins, err := a.Generate(ctx, &model.AnalyzedHealthData{
			Markers: []model.HealthMarker{{Name: "TSH", Severity: model.SeverityBorderlineHigh}},
		})
		assert.NoError(t, err)
		assert.Equal(t, model.Disclaimer, ins.Disclaimer)
	})

	t.Run("model failures surface to the caller", func(t *testing.T) {
		cl := new(mocks.MockClient)
		cl.On("Complete", mock.Anything, mock.Anything).Return("", common.ErrTransport)

		a := NewInsight(cl, nil)
		_, err := a.Generate(ctx, &model.AnalyzedHealthData{
			Markers: []model.HealthMarker{{Name: "TSH", Severity: model.SeverityAbnormalLow}},
		})
		assert.True(t, errors.Is(err, common.ErrTransport))
	})
}
