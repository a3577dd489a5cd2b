package llm

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

// CompletionRequest is a single round-trip to the language model: a fixed
// system instruction, user text, and a flag asking for structured output.
type CompletionRequest struct {
	System   string
	User     string
	JSONMode bool
}

// Client abstracts the chat-completions style language model collaborator.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config holds language model connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type chatClient struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Client talking to an OpenAI-compatible
// /chat/completions endpoint.
func NewClient(cfg Config, logger *slog.Logger) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &chatClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *chatClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := chatRequest{Model: c.cfg.Model}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})
	if req.JSONMode {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.log.Info("llm.request", "req_id", rid, "model", c.cfg.Model, "content_length", len(bs), "json_mode", req.JSONMode)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Error("llm.request_failed", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	c.log.Info("llm.response", "req_id", rid, "status", resp.StatusCode, "bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: llm returned status %d", common.ErrTransport, resp.StatusCode)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", &MalformedResponseError{Snippet: head(string(raw), snippetLen), Window: window(string(raw), offsetOf(err)), Err: err}
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", common.ErrMalformedResponse)
	}
	return cc.Choices[0].Message.Content, nil
}
