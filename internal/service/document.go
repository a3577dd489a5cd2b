// Package service implements the application use cases around documents:
// accepting uploads, exposing state, retrying failed runs, and the
// multi-step deletion flow.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"healthdoc/internal/model"
	"healthdoc/internal/pipeline"
	"healthdoc/internal/repository"
	"healthdoc/internal/storage"
)

var (
	ErrIDRequired      = errors.New("document id is required")
	ErrNotFound        = errors.New("document not found")
	ErrReaderNil       = errors.New("file reader is nil")
	ErrFilenameMissing = errors.New("filename is required")
	ErrAlreadyComplete = errors.New("document already completed")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// DocumentListResult is one page of documents.
type DocumentListResult struct {
	Items  []model.Document `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// DocumentService exposes the document lifecycle to transport handlers.
type DocumentService interface {
	// Submit stores the file, persists a queued document, and hands it to
	// the pipeline. It returns as soon as the document is queued.
	Submit(ctx context.Context, r io.Reader, filename, contentType string, size int64) (*model.Document, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, limit, offset int) (*DocumentListResult, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *model.Document, error)
	Delete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) error
}

// Submitter is the pipeline intake the service enqueues work on.
type Submitter interface {
	Enqueue(ctx context.Context, job pipeline.Job) error
}

// Config tunes service behavior.
type Config struct {
	// DeleteAttempts and DeleteBackoff govern each step of the deletion flow.
	DeleteAttempts int
	DeleteBackoff  time.Duration
	// PresignTTL is the lifetime of the file URL handed to the OCR provider.
	PresignTTL time.Duration
}

type documentService struct {
	store          storage.Storage
	repo           repository.DocumentRepository
	queue          Submitter
	log            *slog.Logger
	deleteAttempts int
	deleteBackoff  time.Duration
	presignTTL     time.Duration
}

func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, queue Submitter, cfg Config, logger *slog.Logger) DocumentService {
	if cfg.DeleteAttempts <= 0 {
		cfg.DeleteAttempts = 3
	}
	if cfg.DeleteBackoff <= 0 {
		cfg.DeleteBackoff = time.Second
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &documentService{
		store:          store,
		repo:           repo,
		queue:          queue,
		log:            logger,
		deleteAttempts: cfg.DeleteAttempts,
		deleteBackoff:  cfg.DeleteBackoff,
		presignTTL:     cfg.PresignTTL,
	}
}

func (s *documentService) Submit(ctx context.Context, r io.Reader, filename, contentType string, size int64) (*model.Document, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if filename == "" {
		return nil, ErrFilenameMissing
	}

	id := uuid.New().String()
	key := "documents/" + id + filepath.Ext(filename)

	if _, err := s.store.Put(ctx, key, r, size, storage.PutOptions{
		ContentType:      contentType,
		OriginalFilename: filename,
	}); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	fileURL, err := s.store.PresignGet(ctx, key, s.presignTTL)
	if err != nil {
		s.rollbackUpload(ctx, key)
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	now := time.Now().UTC()
	doc, err := s.repo.Create(ctx, &model.Document{
		ID:          id,
		Filename:    filename,
		StoragePath: key,
		PublicURL:   fileURL,
		Status:      model.StatusQueued,
		Stage:       model.StageQueued,
		Progress:    model.StageProgress[model.StageQueued],
		UploadedAt:  now,
	})
	if err != nil {
		s.rollbackUpload(ctx, key)
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := s.queue.Enqueue(ctx, pipeline.Job{
		DocumentID:  doc.ID,
		FileURL:     fileURL,
		Filename:    filename,
		SubmittedAt: now,
	}); err != nil {
		if merr := s.repo.MarkError(ctx, doc.ID, "could not queue document for processing"); merr != nil {
			s.log.Error("service.submit.mark_error_failed", "document_id", doc.ID, "error", merr)
		}
		return nil, fmt.Errorf("enqueue document: %w", err)
	}

	s.log.Info("service.submit", "document_id", doc.ID, "filename", filename, "size", size)
	return doc, nil
}

// rollbackUpload removes an orphaned object after a failed submit.
func (s *documentService) rollbackUpload(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.Error("service.submit.rollback_failed", "key", key, "error", err)
	}
}

func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, limit, offset int) (*DocumentListResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	page, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return &DocumentListResult{Items: page.Items, Total: page.Total, Limit: limit, Offset: offset}, nil
}

func (s *documentService) Download(ctx context.Context, id string) (io.ReadCloser, *model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.store.Get(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch object: %w", err)
	}
	return rc, doc, nil
}

func (s *documentService) Retry(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == model.StatusComplete {
		return ErrAlreadyComplete
	}

	// Presigned URLs expire, so mint a fresh one for the new run.
	fileURL, err := s.store.PresignGet(ctx, doc.StoragePath, s.presignTTL)
	if err != nil {
		return fmt.Errorf("presign for retry: %w", err)
	}

	if err := s.repo.UpdateStage(ctx, id, model.StageQueued, model.StageProgress[model.StageQueued]); err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	if err := s.queue.Enqueue(ctx, pipeline.Job{
		DocumentID:  id,
		FileURL:     fileURL,
		Filename:    doc.Filename,
		SubmittedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("enqueue retry: %w", err)
	}

	s.log.Info("service.retry", "document_id", id, "previous_status", doc.Status)
	return nil
}
