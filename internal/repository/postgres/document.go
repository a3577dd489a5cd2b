package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"healthdoc/internal/model"
	"healthdoc/internal/repository"
)

type documentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a PostgreSQL-backed DocumentRepository.
func NewDocumentRepository(db *sql.DB) repository.DocumentRepository {
	return &documentRepository{db: db}
}

const documentColumns = `id, filename, storage_path, public_url, status, processing_stage, progress, raw_text, error_message, uploaded_at, processed_at`

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	query := `
		INSERT INTO documents (id, filename, storage_path, public_url, status, processing_stage, progress, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + documentColumns

	row := r.db.QueryRowContext(ctx, query,
		doc.ID, doc.Filename, doc.StoragePath, doc.PublicURL,
		doc.Status, doc.Stage, doc.Progress, doc.UploadedAt,
	)
	created, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return created, nil
}

func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	if err := r.attachAnalysis(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepository) attachAnalysis(ctx context.Context, doc *model.Document) error {
	query := `SELECT structured_data, insights, insight_text FROM analysis_results WHERE document_id = $1`

	var (
		structured  []byte
		insights    []byte
		insightText sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, doc.ID).Scan(&structured, &insights, &insightText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find analysis: %w", err)
	}

	if len(structured) > 0 {
		var data model.AnalyzedHealthData
		if err := json.Unmarshal(structured, &data); err != nil {
			return fmt.Errorf("decode structured data: %w", err)
		}
		doc.Analysis = &data
	}
	if len(insights) > 0 {
		var ins model.Insights
		if err := json.Unmarshal(insights, &ins); err != nil {
			return fmt.Errorf("decode insights: %w", err)
		}
		doc.Insights = &ins
	}
	doc.InsightText = insightText.String
	return nil
}

func (r *documentRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY uploaded_at DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, pq.Limit, pq.Offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]model.Document, 0, pq.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

func (r *documentRepository) UpdateStage(ctx context.Context, id string, stage model.Stage, progress int) error {
	// Status follows the stage: a document reset to the queued stage is
	// queued again, everything past that is processing.
	status := model.StatusProcessing
	if stage == model.StageQueued {
		status = model.StatusQueued
	}

	query := `
		UPDATE documents
		SET status = $2, processing_stage = $3, progress = $4, error_message = ''
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, status, stage, progress); err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return nil
}

func (r *documentRepository) UpdateRawText(ctx context.Context, id, rawText string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE documents SET raw_text = $2 WHERE id = $1`, id, rawText); err != nil {
		return fmt.Errorf("update raw text: %w", err)
	}
	return nil
}

func (r *documentRepository) SaveAnalysis(ctx context.Context, id string, data *model.AnalyzedHealthData, insights *model.Insights, insightText string) error {
	structured, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode structured data: %w", err)
	}
	var insJSON any
	if insights != nil {
		bs, err := json.Marshal(insights)
		if err != nil {
			return fmt.Errorf("encode insights: %w", err)
		}
		insJSON = bs
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var analysisID string
	upsert := `
		INSERT INTO analysis_results (id, document_id, structured_data, insights, insight_text, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (document_id) DO UPDATE
		SET structured_data = EXCLUDED.structured_data,
		    insights = EXCLUDED.insights,
		    insight_text = EXCLUDED.insight_text
		RETURNING id`
	if err := tx.QueryRowContext(ctx, upsert, uuid.New().String(), id, structured, insJSON, insightText).Scan(&analysisID); err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM health_markers WHERE analysis_id = $1`, analysisID); err != nil {
		return fmt.Errorf("clear markers: %w", err)
	}

	insert := `
		INSERT INTO health_markers (id, analysis_id, marker, value, unit, reference_range, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, m := range data.Markers {
		if _, err := tx.ExecContext(ctx, insert, uuid.New().String(), analysisID, m.Name, m.Value, m.Unit, m.ReferenceRange, m.Severity); err != nil {
			return fmt.Errorf("insert marker: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit analysis: %w", err)
	}
	return nil
}

func (r *documentRepository) MarkComplete(ctx context.Context, id string) error {
	query := `
		UPDATE documents
		SET status = $2, processing_stage = $3, progress = 100, error_message = '', processed_at = now()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, model.StatusComplete, model.StageComplete); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	return nil
}

func (r *documentRepository) MarkError(ctx context.Context, id, message string) error {
	query := `UPDATE documents SET status = $2, error_message = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, model.StatusError, message); err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

func (r *documentRepository) DeleteAnalysis(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	markers := `
		DELETE FROM health_markers
		WHERE analysis_id IN (SELECT id FROM analysis_results WHERE document_id = $1)`
	if _, err := tx.ExecContext(ctx, markers, id); err != nil {
		return fmt.Errorf("delete markers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_results WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete analysis: %w", err)
	}
	return nil
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		doc         model.Document
		rawText     sql.NullString
		errMessage  sql.NullString
		processedAt sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.StoragePath, &doc.PublicURL,
		&doc.Status, &doc.Stage, &doc.Progress,
		&rawText, &errMessage, &doc.UploadedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.RawText = rawText.String
	doc.ErrorMessage = errMessage.String
	if processedAt.Valid {
		doc.ProcessedAt = &processedAt.Time
	}
	return &doc, nil
}
