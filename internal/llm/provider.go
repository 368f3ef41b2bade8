// Package llm provides the chat-completion contract the answerer consumes:
// a single non-streaming request carrying a system prompt, a user prompt,
// deterministic temperature, and a hard token cap.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/reporag/internal/config"
	"github.com/Aman-CERP/reporag/internal/errors"
)

// DefaultTimeout is the per-call limit for LLM requests.
const DefaultTimeout = 60 * time.Second

// CompletionRequest is a single chat-completion request.
type CompletionRequest struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse contains the LLM response text.
type CompletionResponse struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
}

// Provider defines the interface for chat completion.
type Provider interface {
	// Complete produces a completion for the given request.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider identifier.
	Name() string
}

// ClientConfig holds configuration for the HTTP provider.
type ClientConfig struct {
	// BaseURL is the OpenAI-compatible API root.
	BaseURL string

	// DefaultModel is used when the request does not name one.
	DefaultModel string

	// Timeout bounds a single call.
	Timeout time.Duration
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
// The API key resolves lazily at first use.
type Client struct {
	cfg    ClientConfig
	client *http.Client

	initOnce sync.Once
	apiKey   string
	initErr  error
}

// NewClient creates an HTTP chat-completion client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "openai-compatible" }

func (c *Client) init() error {
	c.initOnce.Do(func() {
		c.apiKey, c.initErr = config.Secret(config.EnvLLMAPIKey)
	})
	return c.initErr
}

// Complete performs one non-streaming chat completion.
// Failures (timeout, quota, 5xx) surface as AnswerError; no partial text
// is ever returned.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := c.init(); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.User})

	payload := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
		"stream":      false,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New(errors.KindAnswer, "marshal request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.KindAnswer, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.KindAnswer, err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf(errors.KindAnswer, "completion failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.New(errors.KindAnswer, "decode response", err)
	}
	if len(result.Choices) == 0 {
		return nil, errors.Newf(errors.KindAnswer, "completion returned no choices")
	}

	return &CompletionResponse{
		Text:         result.Choices[0].Message.Content,
		Model:        result.Model,
		PromptTokens: result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}

// Verify interface implementation.
var _ Provider = (*Client)(nil)

// Mock is a test provider returning canned or scripted responses.
type Mock struct {
	// CompleteFunc overrides the default canned response.
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Name returns the provider identifier.
func (m *Mock) Name() string { return "mock" }

// Complete returns the scripted response or a deterministic echo.
func (m *Mock) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{
		Text:  fmt.Sprintf("[mock] answer to: %.60s", req.User),
		Model: "mock-model",
	}, nil
}

// Verify interface implementation.
var _ Provider = (*Mock)(nil)
