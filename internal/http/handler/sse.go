package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"healthdoc/internal/pipeline"
	"healthdoc/internal/service"
)

const heartbeatInterval = 15 * time.Second

// StreamDocumentEvents streams pipeline progress for one document as
// server-sent events. The stream opens with a snapshot of current state and
// closes after the terminal event, so a subscriber who arrives late or
// after completion still gets a consistent picture.
func StreamDocumentEvents(svc service.DocumentService, broker *pipeline.Broker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "document id must be a UUID")
		}

		// Subscribe before the snapshot so no transition between snapshot
		// and subscription is lost.
		events, cancel := broker.Subscribe(id)

		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			cancel()
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "STREAM_FAILED", "could not open event stream")
		}

		snapshot := pipeline.Event{
			DocumentID: doc.ID,
			Stage:      doc.Stage,
			Progress:   doc.Progress,
			Status:     doc.Status,
			Error:      doc.ErrorMessage,
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cancel()

			if err := writeEvent(w, snapshot); err != nil {
				return
			}
			if snapshot.Status.Terminal() {
				return
			}

			heartbeat := time.NewTicker(heartbeatInterval)
			defer heartbeat.Stop()

			for {
				select {
				case ev, open := <-events:
					if !open {
						return
					}
					if err := writeEvent(w, ev); err != nil {
						return
					}
					if ev.Status.Terminal() {
						return
					}
				case <-heartbeat.C:
					// Comment lines keep intermediaries from closing an
					// idle connection.
					if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		}))
		return nil
	}
}

func writeEvent(w *bufio.Writer, ev pipeline.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}
