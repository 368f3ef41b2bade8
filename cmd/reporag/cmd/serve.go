package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/reporag/internal/answer"
	"github.com/Aman-CERP/reporag/internal/chunk"
	"github.com/Aman-CERP/reporag/internal/config"
	"github.com/Aman-CERP/reporag/internal/embed"
	"github.com/Aman-CERP/reporag/internal/errors"
	"github.com/Aman-CERP/reporag/internal/fetch"
	"github.com/Aman-CERP/reporag/internal/ingest"
	"github.com/Aman-CERP/reporag/internal/job"
	"github.com/Aman-CERP/reporag/internal/llm"
	"github.com/Aman-CERP/reporag/internal/logging"
	"github.com/Aman-CERP/reporag/internal/scanner"
	"github.com/Aman-CERP/reporag/internal/search"
	"github.com/Aman-CERP/reporag/internal/server"
	"github.com/Aman-CERP/reporag/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe assembles the full stack and serves until interrupted.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.SetupDefault(logging.Config{Level: cfg.LogLevel})

	vs := buildVectorStore(cfg)
	defer func() { _ = vs.Close() }()

	embedder := buildEmbedder(cfg)
	defer func() { _ = embedder.Close() }()

	corpus := search.NewCorpus(vs, store.DefaultLexicalConfig())
	defer func() { _ = corpus.Close() }()

	engine := search.NewEngine(search.Config{
		TopKDense:      cfg.Search.TopKDense,
		TopKSparse:     cfg.Search.TopKSparse,
		MinCandidates:  cfg.Search.MinCandidates,
		RRFConstant:    cfg.Search.RRFConstant,
		DenseWeight:    cfg.Search.DenseWeight,
		SparseWeight:   cfg.Search.SparseWeight,
		SelectivityMin: cfg.Search.SelectivityMin,
		SelectivityMax: cfg.Search.SelectivityMax,
	}, vs, embedder, corpus)

	answerer := answer.New(answer.Config{
		Model:         cfg.Answer.Model,
		ContextChunks: cfg.Answer.ContextChunks,
		ContextTokens: cfg.Answer.ContextTokens,
		MaxTokens:     cfg.Answer.MaxTokens,
		Temperature:   cfg.Answer.Temperature,
		CacheTTL:      cfg.Answer.CacheTTL,
	}, llm.NewClient(llm.ClientConfig{
		BaseURL:      cfg.Answer.BaseURL,
		DefaultModel: cfg.Answer.Model,
		Timeout:      cfg.Answer.Timeout,
	}))

	pipeline := ingest.New(ingest.Config{
		BatchSize:           cfg.Ingest.BatchSize,
		Concurrency:         cfg.Ingest.Concurrency,
		MaxConsecutiveSkips: cfg.Ingest.MaxConsecutiveSkips,
		JobTimeout:          cfg.Ingest.JobTimeout,
		GCBetweenBatches:    cfg.Ingest.GCBetweenBatches,
	},
		&fetch.Fetcher{Timeout: cfg.Fetch.Timeout},
		scanner.New(cfg.Scanner.MaxFileSize),
		chunk.New(chunk.Config{
			TargetTokens: cfg.Chunk.TargetTokens,
			MaxTokens:    cfg.Chunk.MaxTokens,
			OverlapChars: cfg.Chunk.OverlapChars,
			MinBytes:     cfg.Chunk.MinBytes,
		}),
		embedder, vs, corpus)

	jobs := job.New(pipeline)
	handler := server.New(jobs, engine, answerer)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Serve until SIGINT/SIGTERM, then drain.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", slog.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	jobs.Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildVectorStore selects the store backend.
func buildVectorStore(cfg *config.Config) store.VectorStore {
	if cfg.Store.Backend == "memory" {
		return store.NewMemoryStore(cfg.Embed.Dimensions)
	}
	return store.NewRemote(store.RemoteConfig{
		BaseURL:       cfg.Store.BaseURL,
		IndexName:     cfg.Store.IndexName,
		UpsertTimeout: cfg.Store.UpsertTimeout,
		Retry:         errors.DefaultRetryConfig(),
	})
}

// buildEmbedder selects the embedding backend. The remote embedder is
// wrapped in an LRU cache; without a base URL the deterministic static
// embedder serves local runs.
func buildEmbedder(cfg *config.Config) embed.Embedder {
	if cfg.Embed.BaseURL == "" {
		return embed.NewStatic(cfg.Embed.Dimensions)
	}
	return embed.NewCached(embed.NewRemote(embed.RemoteConfig{
		BaseURL:    cfg.Embed.BaseURL,
		Model:      cfg.Embed.Model,
		Dimensions: cfg.Embed.Dimensions,
		Timeout:    cfg.Embed.Timeout,
	}), cfg.Embed.CacheSize)
}
