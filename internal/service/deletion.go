package service

import (
	"context"
	"fmt"

	"healthdoc/internal/common"
	"healthdoc/internal/retry"
)

// Delete removes a document and everything attached to it. The steps run in
// dependency order, each with bounded retries: analysis rows first, then the
// stored file, then the document record. Failures in the first two steps are
// logged and tolerated so a wedged object store cannot make a document
// undeletable; only failure to remove the record itself is an error.
func (s *documentService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	s.log.Info("service.delete.start", "document_id", id)

	if err := retry.Do(ctx, s.deleteAttempts, s.deleteBackoff, func() error {
		return s.repo.DeleteAnalysis(ctx, id)
	}); err != nil {
		s.log.Warn("service.delete.analysis_orphaned", "document_id", id, "error", err)
	}

	if doc.StoragePath != "" {
		if err := retry.Do(ctx, s.deleteAttempts, s.deleteBackoff, func() error {
			return s.store.Delete(ctx, doc.StoragePath)
		}); err != nil {
			s.log.Warn("service.delete.object_orphaned", "document_id", id, "key", doc.StoragePath, "error", err)
		}
	}

	if err := retry.Do(ctx, s.deleteAttempts, s.deleteBackoff, func() error {
		return s.repo.Delete(ctx, id)
	}); err != nil {
		return fmt.Errorf("%w: document %s: %v", common.ErrDeletionFailure, id, err)
	}

	s.log.Info("service.delete.done", "document_id", id)
	return nil
}
