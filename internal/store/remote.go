package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/reporag/internal/config"
	"github.com/Aman-CERP/reporag/internal/errors"
)

// DefaultUpsertTimeout is the per-upsert request limit.
const DefaultUpsertTimeout = 15 * time.Second

// RemoteConfig configures the remote vector store client.
type RemoteConfig struct {
	// BaseURL is the index endpoint root.
	BaseURL string

	// IndexName selects the target index on multi-index deployments.
	IndexName string

	// UpsertTimeout bounds a single upsert request.
	UpsertTimeout time.Duration

	// QueryTimeout bounds a single query request.
	QueryTimeout time.Duration

	// Retry is the backoff policy for transient upsert failures.
	Retry errors.RetryConfig
}

// RemoteStore talks to an external ANN service with metadata pre-filtering.
// The wire protocol follows the common serverless vector DB shape:
// /vectors/upsert, /query, /vectors/fetch, /vectors/list,
// /vectors/delete, /describe_index_stats.
type RemoteStore struct {
	cfg    RemoteConfig
	client *http.Client

	initOnce sync.Once
	apiKey   string
	initErr  error
}

// NewRemote creates a remote store client. The API key resolves lazily.
func NewRemote(cfg RemoteConfig) *RemoteStore {
	if cfg.UpsertTimeout <= 0 {
		cfg.UpsertTimeout = DefaultUpsertTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = errors.DefaultRetryConfig()
	}
	return &RemoteStore{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (s *RemoteStore) init() error {
	s.initOnce.Do(func() {
		s.apiKey, s.initErr = config.Secret(config.EnvVectorStoreAPIKey)
	})
	return s.initErr
}

// do performs one JSON request and decodes the response into out (when
// non-nil). Transient statuses surface as retryable UpsertErrors.
func (s *RemoteStore) do(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	if err := s.init(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Permanent(errors.KindUpsert, "marshal request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(s.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return errors.Permanent(errors.KindUpsert, "create request", err)
	}
	req.Header.Set("Api-Key", s.apiKey)
	if s.cfg.IndexName != "" {
		req.Header.Set("X-Index-Name", s.cfg.IndexName)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Transient(errors.KindUpsert, err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return errors.Transient(errors.KindUpsert, msg, nil)
		}
		return errors.Permanent(errors.KindUpsert, msg, nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Transient(errors.KindUpsert, "decode response", err)
		}
	}
	return nil
}

// Upsert writes records under the namespace with retry on transient failures.
func (s *RemoteStore) Upsert(ctx context.Context, namespace string, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	body := map[string]any{
		"namespace": namespace,
		"vectors":   records,
	}
	return errors.Retry(ctx, s.cfg.Retry, func() error {
		return s.do(ctx, http.MethodPost, "/vectors/upsert", body, nil, s.cfg.UpsertTimeout)
	})
}

// Query returns the topK nearest records, pre-filtered server-side.
func (s *RemoteStore) Query(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]*QueryMatch, error) {
	body := map[string]any{
		"namespace":       namespace,
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	var out struct {
		Matches []*QueryMatch `json:"matches"`
	}
	if err := s.do(ctx, http.MethodPost, "/query", body, &out, s.cfg.QueryTimeout); err != nil {
		return nil, err
	}
	if out.Matches == nil {
		return []*QueryMatch{}, nil
	}
	return out.Matches, nil
}

// Fetch returns records by ID; missing IDs are omitted.
func (s *RemoteStore) Fetch(ctx context.Context, namespace string, ids []string) ([]*Record, error) {
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	q := url.Values{"namespace": {namespace}}
	for _, id := range ids {
		q.Add("ids", id)
	}

	var out struct {
		Vectors map[string]*Record `json:"vectors"`
	}
	if err := s.do(ctx, http.MethodGet, "/vectors/fetch?"+q.Encode(), nil, &out, s.cfg.QueryTimeout); err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := out.Vectors[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ListIDs enumerates all record IDs in the namespace, paging as needed.
func (s *RemoteStore) ListIDs(ctx context.Context, namespace string) ([]string, error) {
	var ids []string
	token := ""
	for {
		q := url.Values{"namespace": {namespace}, "limit": {"100"}}
		if token != "" {
			q.Set("paginationToken", token)
		}

		var out struct {
			Vectors []struct {
				ID string `json:"id"`
			} `json:"vectors"`
			Pagination struct {
				Next string `json:"next"`
			} `json:"pagination"`
		}
		if err := s.do(ctx, http.MethodGet, "/vectors/list?"+q.Encode(), nil, &out, s.cfg.QueryTimeout); err != nil {
			return nil, err
		}

		for _, v := range out.Vectors {
			ids = append(ids, v.ID)
		}
		if out.Pagination.Next == "" {
			return ids, nil
		}
		token = out.Pagination.Next
	}
}

// DeleteNamespace removes every record in the namespace.
func (s *RemoteStore) DeleteNamespace(ctx context.Context, namespace string) error {
	body := map[string]any{
		"namespace": namespace,
		"deleteAll": true,
	}
	return s.do(ctx, http.MethodPost, "/vectors/delete", body, nil, s.cfg.UpsertTimeout)
}

// Stats reports vector counts per namespace.
func (s *RemoteStore) Stats(ctx context.Context) (*IndexStats, error) {
	var out struct {
		Namespaces map[string]struct {
			VectorCount int `json:"vectorCount"`
		} `json:"namespaces"`
	}
	if err := s.do(ctx, http.MethodPost, "/describe_index_stats", map[string]any{}, &out, s.cfg.QueryTimeout); err != nil {
		return nil, err
	}

	stats := &IndexStats{Namespaces: make(map[string]int, len(out.Namespaces))}
	for name, ns := range out.Namespaces {
		stats.Namespaces[name] = ns.VectorCount
	}
	return stats, nil
}

// Close releases resources.
func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Verify interface implementation.
var _ VectorStore = (*RemoteStore)(nil)
