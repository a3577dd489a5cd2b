package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"healthdoc/internal/model"
	"healthdoc/internal/repository"
)

func newMockRepo(t *testing.T) (repository.DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	return NewDocumentRepository(db), mock, func() { db.Close() }
}

func documentRows(doc model.Document) *sqlmock.Rows {
	var processedAt any
	if doc.ProcessedAt != nil {
		processedAt = *doc.ProcessedAt
	}
	return sqlmock.NewRows([]string{
		"id", "filename", "storage_path", "public_url", "status", "processing_stage",
		"progress", "raw_text", "error_message", "uploaded_at", "processed_at",
	}).AddRow(
		doc.ID, doc.Filename, doc.StoragePath, doc.PublicURL, string(doc.Status), string(doc.Stage),
		doc.Progress, doc.RawText, doc.ErrorMessage, doc.UploadedAt, processedAt,
	)
}

func TestDocumentRepository_Create(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	now := time.Now()
	doc := &model.Document{
		ID:          "doc-1",
		Filename:    "report.pdf",
		StoragePath: "documents/doc-1.pdf",
		PublicURL:   "https://store/doc-1.pdf",
		Status:      model.StatusQueued,
		Stage:       model.StageQueued,
		UploadedAt:  now,
	}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs(doc.ID, doc.Filename, doc.StoragePath, doc.PublicURL, doc.Status, doc.Stage, doc.Progress, doc.UploadedAt).
		WillReturnRows(documentRows(*doc))

	created, err := repo.Create(context.Background(), doc)
	assert.NoError(t, err)
	assert.Equal(t, "doc-1", created.ID)
	assert.Equal(t, model.StatusQueued, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_FindByID(t *testing.T) {
	t.Run("without analysis", func(t *testing.T) {
		repo, mock, closeDB := newMockRepo(t)
		defer closeDB()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, filename`)).
			WithArgs("doc-1").
			WillReturnRows(documentRows(model.Document{ID: "doc-1", Status: model.StatusQueued, Stage: model.StageQueued, UploadedAt: time.Now()}))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT structured_data, insights, insight_text FROM analysis_results`)).
			WithArgs("doc-1").
			WillReturnError(sql.ErrNoRows)

		doc, err := repo.FindByID(context.Background(), "doc-1")
		assert.NoError(t, err)
		assert.Nil(t, doc.Analysis)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with analysis", func(t *testing.T) {
		repo, mock, closeDB := newMockRepo(t)
		defer closeDB()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, filename`)).
			WithArgs("doc-1").
			WillReturnRows(documentRows(model.Document{ID: "doc-1", Status: model.StatusComplete, Stage: model.StageComplete, Progress: 100, UploadedAt: time.Now()}))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT structured_data, insights, insight_text FROM analysis_results`)).
			WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows([]string{"structured_data", "insights", "insight_text"}).
				AddRow(
					[]byte(`{"markers":[{"marker":"Hemoglobin","value":"14.5","severity":"normal"}],"document_type":"Blood Test Report"}`),
					[]byte(`{"summary":"All good.","key_findings":[],"recommendations":[],"disclaimer":"d"}`),
					"## Summary\n\nAll good.",
				))

		doc, err := repo.FindByID(context.Background(), "doc-1")
		assert.NoError(t, err)
		assert.NotNil(t, doc.Analysis)
		assert.Len(t, doc.Analysis.Markers, 1)
		assert.Equal(t, "Blood Test Report", doc.Analysis.DocumentType)
		assert.Equal(t, "All good.", doc.Insights.Summary)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, closeDB := newMockRepo(t)
		defer closeDB()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, filename`)).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByID(context.Background(), "missing")
		assert.True(t, errors.Is(err, sql.ErrNoRows))
	})
}

func TestDocumentRepository_List(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM documents`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	rows := documentRows(model.Document{ID: "doc-2", Status: model.StatusQueued, Stage: model.StageQueued, UploadedAt: time.Now()})
	rows.AddRow("doc-1", "a.pdf", "documents/a.pdf", "", "complete", "complete", 100, "", "", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, filename`)).
		WithArgs(10, 0).
		WillReturnRows(rows)

	page, err := repo.List(context.Background(), repository.PageQuery{Limit: 10, Offset: 0})
	assert.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "doc-2", page.Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_UpdateStage(t *testing.T) {
	t.Run("processing stages set processing status", func(t *testing.T) {
		repo, mock, closeDB := newMockRepo(t)
		defer closeDB()

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents`)).
			WithArgs("doc-1", model.StatusProcessing, model.StageExtractingText, 10).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateStage(context.Background(), "doc-1", model.StageExtractingText, 10)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("queued stage sets queued status", func(t *testing.T) {
		repo, mock, closeDB := newMockRepo(t)
		defer closeDB()

		// A requeued document must not read processing/queued.
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents`)).
			WithArgs("doc-1", model.StatusQueued, model.StageQueued, 0).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateStage(context.Background(), "doc-1", model.StageQueued, 0)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDocumentRepository_SaveAnalysis(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	data := &model.AnalyzedHealthData{
		Markers: []model.HealthMarker{
			{Name: "Hemoglobin", Value: "14.5", Unit: "g/dL", ReferenceRange: "13.5 - 17.5", Severity: model.SeverityNormal},
			{Name: "Creatinine", Value: "1.4", Unit: "mg/dL", ReferenceRange: "0.70 - 1.30", Severity: model.SeverityAbnormalHigh},
		},
		DocumentType: "Blood Test Report",
	}
	ins := &model.Insights{Summary: "s", Disclaimer: "d"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO analysis_results`)).
		WithArgs(sqlmock.AnyArg(), "doc-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "rendered").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("an-1"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM health_markers WHERE analysis_id = $1`)).
		WithArgs("an-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO health_markers`)).
		WithArgs(sqlmock.AnyArg(), "an-1", "Hemoglobin", "14.5", "g/dL", "13.5 - 17.5", model.SeverityNormal).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO health_markers`)).
		WithArgs(sqlmock.AnyArg(), "an-1", "Creatinine", "1.4", "mg/dL", "0.70 - 1.30", model.SeverityAbnormalHigh).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveAnalysis(context.Background(), "doc-1", data, ins, "rendered")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_SaveAnalysis_RollsBackOnFailure(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO analysis_results`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.SaveAnalysis(context.Background(), "doc-1", &model.AnalyzedHealthData{}, nil, "")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_MarkComplete(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents`)).
		WithArgs("doc-1", model.StatusComplete, model.StageComplete).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkComplete(context.Background(), "doc-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_MarkError(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents`)).
		WithArgs("doc-1", model.StatusError, "ocr failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkError(context.Background(), "doc-1", "ocr failed"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_DeleteAnalysis(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM health_markers`)).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM analysis_results WHERE document_id = $1`)).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.DeleteAnalysis(context.Background(), "doc-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_Delete(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE id = $1`)).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Delete(context.Background(), "doc-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
