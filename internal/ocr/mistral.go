package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"healthdoc/internal/common"
)

// Config holds OCR provider connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type mistralExtractor struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewMistral creates a TextExtractor backed by the Mistral OCR endpoint.
func NewMistral(cfg Config, logger *slog.Logger) (TextExtractor, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ocr base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ocr api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &mistralExtractor{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: logger,
	}, nil
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

func (e *mistralExtractor) ExtractText(ctx context.Context, fileURL string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(ocrRequest{
		Model:    e.cfg.Model,
		Document: ocrDocument{Type: "document_url", DocumentURL: fileURL},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + "/v1/ocr"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	e.log.Info("ocr.request", "req_id", rid, "model", e.cfg.Model)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.log.Error("ocr.request_failed", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		e.log.Error("ocr.bad_status", "req_id", rid, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: ocr returned status %d", common.ErrTransport, resp.StatusCode)
	}

	var out ocrResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode ocr response: %v", common.ErrMalformedResponse, err)
	}
	if len(out.Pages) == 0 {
		return "", fmt.Errorf("%w: ocr response has no pages", common.ErrMalformedResponse)
	}

	parts := make([]string, 0, len(out.Pages))
	for _, p := range out.Pages {
		parts = append(parts, p.Markdown)
	}
	text := strings.TrimSpace(strings.Join(parts, "\n\n"))

	e.log.Info("ocr.response", "req_id", rid, "pages", len(out.Pages), "text_len", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}
