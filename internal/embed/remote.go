package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Aman-CERP/reporag/internal/config"
	"github.com/Aman-CERP/reporag/internal/errors"
)

// DefaultRequestTimeout is the per-request limit for embedding calls.
const DefaultRequestTimeout = 30 * time.Second

// RemoteConfig configures the remote embedder.
type RemoteConfig struct {
	// BaseURL is the embedding API root (OpenAI-compatible /embeddings).
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the expected vector dimension D.
	Dimensions int

	// Timeout is the per-request limit.
	Timeout time.Duration

	// InputCapChars truncates inputs before the request.
	InputCapChars int

	// Retry is the backoff policy for transient failures.
	Retry errors.RetryConfig
}

// DefaultRemoteConfig returns sensible defaults.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Model:         "text-embedding-004",
		Dimensions:    DefaultDimensions,
		Timeout:       DefaultRequestTimeout,
		InputCapChars: DefaultInputCapChars,
		Retry:         errors.DefaultRetryConfig(),
	}
}

// RemoteEmbedder calls an OpenAI-compatible embeddings endpoint.
// The API key is resolved lazily at first use; initialization is one-shot.
type RemoteEmbedder struct {
	cfg    RemoteConfig
	client *http.Client

	initOnce sync.Once
	apiKey   string
	initErr  error
}

// NewRemote creates a remote embedder. The first request pays the key
// resolution cost; a missing secret surfaces then, not at construction.
func NewRemote(cfg RemoteConfig) *RemoteEmbedder {
	def := DefaultRemoteConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InputCapChars <= 0 {
		cfg.InputCapChars = def.InputCapChars
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = def.Retry
	}
	return &RemoteEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// init resolves the API key once.
func (e *RemoteEmbedder) init() error {
	e.initOnce.Do(func() {
		e.apiKey, e.initErr = config.Secret(config.EnvEmbedAPIKey)
	})
	return e.initErr
}

// Embed generates an embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embeddingRequest is the /embeddings request body.
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse is the /embeddings response body.
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch generates embeddings for multiple texts. Transient failures
// (429, 5xx, network) are retried with full-jitter backoff; permanent
// failures surface as EmbedError.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := e.init(); err != nil {
		return nil, err
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncate(t, e.cfg.InputCapChars)
	}

	return errors.RetryWithResult(ctx, e.cfg.Retry, func() ([][]float32, error) {
		return e.request(ctx, input)
	})
}

// request performs one embeddings call.
func (e *RemoteEmbedder) request(ctx context.Context, input []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: input})
	if err != nil {
		return nil, errors.Permanent(errors.KindEmbed, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Permanent(errors.KindEmbed, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Transient(errors.KindEmbed, err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("embedding request failed with status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, errors.Transient(errors.KindEmbed, msg, nil)
		}
		return nil, errors.Permanent(errors.KindEmbed, msg, nil)
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Transient(errors.KindEmbed, "decode response", err)
	}
	if len(result.Data) != len(input) {
		return nil, errors.Permanent(errors.KindEmbed,
			fmt.Sprintf("embedding count mismatch: sent %d, got %d", len(input), len(result.Data)), nil)
	}

	// Responses may arrive unordered; the index field restores input order.
	vectors := make([][]float32, len(input))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, errors.Permanent(errors.KindEmbed, "embedding index out of range", nil)
		}
		if len(d.Embedding) != e.cfg.Dimensions {
			return nil, errors.Permanent(errors.KindEmbed,
				fmt.Sprintf("dimension mismatch: expected %d, got %d", e.cfg.Dimensions, len(d.Embedding)), nil)
		}
		vectors[d.Index] = normalizeVector(d.Embedding)
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *RemoteEmbedder) Dimensions() int { return e.cfg.Dimensions }

// ModelName returns the model identifier.
func (e *RemoteEmbedder) ModelName() string { return e.cfg.Model }

// Close releases resources.
func (e *RemoteEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// Verify interface implementation.
var _ Embedder = (*RemoteEmbedder)(nil)
