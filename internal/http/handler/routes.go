// Package handler wires the HTTP surface: document CRUD, retry, download,
// progress streaming, and health probes.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"healthdoc/internal/common"
	"healthdoc/internal/pipeline"
	"healthdoc/internal/service"
)

// RegisterRoutes mounts all application routes on app.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.DocumentService, broker *pipeline.Broker) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	docs := app.Group("/documents")
	docs.Post("/", UploadDocument(svc))
	docs.Get("/", ListDocuments(svc))
	docs.Get("/:id", GetDocument(svc))
	docs.Delete("/:id", DeleteDocument(svc))
	docs.Post("/:id/retry", RetryDocument(svc))
	docs.Get("/:id/file", DownloadDocument(svc))
	docs.Get("/:id/events", StreamDocumentEvents(svc, broker))
}

// HealthCheck reports readiness, including database connectivity.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := contextWithTimeout(c, 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "DB_UNAVAILABLE", "database is unreachable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

// LivenessProbe reports that the process is up.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

// UploadDocument accepts a multipart upload and queues it for analysis.
func UploadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "multipart field 'file' is required")
		}

		f, err := fileHeader.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_UNREADABLE", "could not read uploaded file")
		}
		defer f.Close()

		doc, err := svc.Submit(c.UserContext(), f, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), fileHeader.Size)
		if err != nil {
			if errors.Is(err, pipeline.ErrQueueFull) {
				return writeError(c, fiber.StatusServiceUnavailable, "QUEUE_FULL", "processing queue is full, try again later")
			}
			return writeError(c, fiber.StatusInternalServerError, "UPLOAD_FAILED", "could not accept document")
		}
		return c.Status(fiber.StatusAccepted).JSON(doc)
	}
}

// ListDocuments returns a page of documents, newest first.
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 0)
		offset := c.QueryInt("offset", 0)

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "LIST_FAILED", "could not list documents")
		}
		return c.JSON(res)
	}
}

// GetDocument returns one document with its analysis, if present.
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "document id must be a UUID")
		}

		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "GET_FAILED", "could not fetch document")
		}
		return c.JSON(doc)
	}
}

// DeleteDocument removes a document, its stored file, and its analysis.
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "document id must be a UUID")
		}

		if err := svc.Delete(c.UserContext(), id); err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			case errors.Is(err, common.ErrDeletionFailure):
				return writeError(c, fiber.StatusInternalServerError, "DELETION_FAILED", "document could not be fully deleted")
			default:
				return writeError(c, fiber.StatusInternalServerError, "DELETE_FAILED", "could not delete document")
			}
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// RetryDocument re-queues a document that is not yet complete.
func RetryDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "document id must be a UUID")
		}

		if err := svc.Retry(c.UserContext(), id); err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			case errors.Is(err, service.ErrAlreadyComplete):
				return writeError(c, fiber.StatusConflict, "ALREADY_COMPLETE", "document already completed")
			default:
				return writeError(c, fiber.StatusInternalServerError, "RETRY_FAILED", "could not retry document")
			}
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// DownloadDocument streams the original uploaded file.
func DownloadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "document id must be a UUID")
		}

		rc, doc, err := svc.Download(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "DOWNLOAD_FAILED", "could not fetch file")
		}

		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+doc.Filename+`"`)
		return c.SendStream(rc)
	}
}

func contextWithTimeout(c *fiber.Ctx, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), d)
}

func documentID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}
