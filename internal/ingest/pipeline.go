// Package ingest runs the ingestion pipeline: fetch a repository snapshot,
// scan and classify its files, chunk and enrich them, embed the chunks,
// and upsert them into the vector store under the repository namespace.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/reporag/internal/chunk"
	"github.com/Aman-CERP/reporag/internal/embed"
	"github.com/Aman-CERP/reporag/internal/errors"
	"github.com/Aman-CERP/reporag/internal/fetch"
	"github.com/Aman-CERP/reporag/internal/scanner"
	"github.com/Aman-CERP/reporag/internal/store"
)

// Pipeline defaults.
const (
	DefaultBatchSize           = 8
	MaxBatchSize               = 32
	DefaultConcurrency         = 4
	DefaultMaxConsecutiveSkips = 50
	DefaultJobTimeout          = 10 * time.Minute
)

// Progress stage boundaries on the 0-100 scale.
const (
	pctPrepared = 10
	pctCloned   = 30
	pctChunked  = 60
	pctDone     = 100
)

// ProgressFunc receives stage transitions and the 0-100 progress value.
type ProgressFunc func(stage string, pct int)

// Config configures the pipeline.
type Config struct {
	// BatchSize is the embedding/upsert micro-batch size B (1..32).
	BatchSize int

	// Concurrency bounds in-flight upserts (C).
	Concurrency int

	// MaxConsecutiveSkips aborts the job when exceeded.
	MaxConsecutiveSkips int

	// JobTimeout is the whole-job wall-clock limit.
	JobTimeout time.Duration

	// GCBetweenBatches requests a memory-release hint between micro-batches.
	GCBetweenBatches bool
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:           DefaultBatchSize,
		Concurrency:         DefaultConcurrency,
		MaxConsecutiveSkips: DefaultMaxConsecutiveSkips,
		JobTimeout:          DefaultJobTimeout,
		GCBetweenBatches:    true,
	}
}

// Summary is the terminal result of a successful ingestion.
type Summary struct {
	Repository   *Repository
	FileCount    int
	ChunkCount   int
	SkippedCount int
}

// Invalidator is notified when a namespace's corpus changed (the search
// engine drops its cached lexical index).
type Invalidator interface {
	Invalidate(namespace string)
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	cfg      Config
	fetcher  *fetch.Fetcher
	scanner  *scanner.Scanner
	chunker  *chunk.Chunker
	embedder embed.Embedder
	vs       store.VectorStore
	inval    Invalidator
}

// New creates a Pipeline. inval may be nil.
func New(cfg Config, fetcher *fetch.Fetcher, sc *scanner.Scanner, chunker *chunk.Chunker, embedder embed.Embedder, vs store.VectorStore, inval Invalidator) *Pipeline {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxConsecutiveSkips <= 0 {
		cfg.MaxConsecutiveSkips = DefaultMaxConsecutiveSkips
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &Pipeline{
		cfg:      cfg,
		fetcher:  fetcher,
		scanner:  sc,
		chunker:  chunker,
		embedder: embedder,
		vs:       vs,
		inval:    inval,
	}
}

// Run executes one full ingestion for repoURL. The namespace is cleared
// first so counts reflect exactly the acknowledged chunks; the snapshot
// directory is released on every exit path.
func (p *Pipeline) Run(ctx context.Context, repoURL string, progress ProgressFunc) (*Summary, error) {
	if progress == nil {
		progress = func(string, int) {}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	namespace := NamespaceForURL(repoURL)

	progress("Preparing index", 0)
	if err := p.vs.DeleteNamespace(ctx, namespace); err != nil {
		return nil, errors.Wrap(errors.KindIndex, err)
	}
	progress("Index cleared", pctPrepared)

	progress("Cloning repository", pctPrepared+5)
	snapshot, err := p.fetcher.Fetch(ctx, repoURL, "")
	if err != nil {
		return nil, err
	}
	defer snapshot.Release()
	progress("Repository cloned", pctCloned)

	progress("Processing files", pctCloned+5)
	files, err := p.scanner.Scan(ctx, snapshot.Dir)
	if err != nil {
		return nil, errors.Wrap(errors.KindIndex, err)
	}

	chunks := p.chunkAll(namespace, files, progress)
	progress("Files processed", pctChunked)

	indexed, skipped, err := p.indexChunks(ctx, namespace, chunks, progress)
	if err != nil {
		return nil, err
	}

	if p.inval != nil {
		p.inval.Invalidate(namespace)
	}

	repo := &Repository{
		ID:         namespace,
		URL:        repoURL,
		Revision:   snapshot.Revision,
		Namespace:  namespace,
		FileCount:  len(files),
		ChunkCount: indexed,
		IndexedAt:  time.Now().UTC(),
	}

	progress("Complete", pctDone)
	slog.Info("ingestion complete",
		slog.String("namespace", namespace),
		slog.Int("files", len(files)),
		slog.Int("chunks", indexed),
		slog.Int("skipped", skipped))

	return &Summary{
		Repository:   repo,
		FileCount:    len(files),
		ChunkCount:   indexed,
		SkippedCount: skipped,
	}, nil
}

// chunkAll splits every file, reporting per-file progress across the
// scanning/chunking band. Chunk order follows file enumeration order.
func (p *Pipeline) chunkAll(namespace string, files []*scanner.FileRecord, progress ProgressFunc) []*chunk.Chunk {
	var chunks []*chunk.Chunk
	for i, f := range files {
		chunks = append(chunks, p.chunker.Split(namespace, &chunk.File{
			Path:     f.Path,
			Language: f.Language,
			Category: string(f.Category),
			Depth:    f.Depth,
			Content:  f.Bytes,
		})...)

		if len(files) > 0 {
			pct := pctCloned + 5 + (pctChunked-pctCloned-5)*(i+1)/len(files)
			progress("Processing files", pct)
		}
	}
	return chunks
}

// indexChunks embeds and upserts chunks in micro-batches with bounded
// in-flight concurrency. Returns the acknowledged and skipped counts.
func (p *Pipeline) indexChunks(ctx context.Context, namespace string, chunks []*chunk.Chunk, progress ProgressFunc) (int, int, error) {
	total := len(chunks)
	if total == 0 {
		return 0, 0, nil
	}
	progress("Creating embeddings", pctChunked+5)

	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	var indexed, skipped, processed atomic.Int64
	var consecMu sync.Mutex
	consecutive := 0

	bumpSkips := func(n int) error {
		consecMu.Lock()
		defer consecMu.Unlock()
		consecutive += n
		if consecutive > p.cfg.MaxConsecutiveSkips {
			return errors.Newf(errors.KindIndex, "aborted after %d consecutive chunk failures", consecutive)
		}
		return nil
	}
	resetSkips := func() {
		consecMu.Lock()
		consecutive = 0
		consecMu.Unlock()
	}

	for start := 0; start < total; start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		records, batchSkipped := p.embedBatch(gctx, batch)
		skipped.Add(int64(batchSkipped))
		if batchSkipped > 0 {
			if err := bumpSkips(batchSkipped); err != nil {
				_ = g.Wait()
				return int(indexed.Load()), int(skipped.Load()), err
			}
		}

		if len(records) > 0 {
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			recs := records
			n := len(batch)
			g.Go(func() error {
				defer sem.Release(1)
				if err := p.vs.Upsert(gctx, namespace, recs); err != nil {
					if errors.IsRetryable(err) || errors.IsKind(err, errors.KindCancelled) {
						return err // transient retries exhausted, or shutdown
					}
					skipped.Add(int64(len(recs)))
					slog.Warn("upsert rejected batch, skipping",
						slog.String("namespace", namespace),
						slog.Int("chunks", len(recs)),
						slog.String("error", err.Error()))
					if err := bumpSkips(len(recs)); err != nil {
						return err
					}
				} else {
					indexed.Add(int64(len(recs)))
					resetSkips()
				}

				done := processed.Add(int64(n))
				progress("Indexing vectors", pctChunked+5+int(float64(pctDone-pctChunked-5)*float64(done)/float64(total)))
				return nil
			})
		} else {
			processed.Add(int64(len(batch)))
		}

		if p.cfg.GCBetweenBatches {
			runtime.GC()
		}
	}

	if err := g.Wait(); err != nil {
		if errors.KindOf(err) == errors.KindCancelled {
			return int(indexed.Load()), int(skipped.Load()), errors.Wrap(errors.KindCancelled, err)
		}
		return int(indexed.Load()), int(skipped.Load()), errors.Wrap(errors.KindIndex, err)
	}
	if err := ctx.Err(); err != nil {
		return int(indexed.Load()), int(skipped.Load()), errors.Wrap(errors.KindCancelled, err)
	}

	return int(indexed.Load()), int(skipped.Load()), nil
}

// embedBatch embeds a micro-batch, isolating failures: a failed batch is
// retried chunk by chunk so one bad chunk cannot sink its neighbors.
// Chunks whose vectors contain NaNs are skipped.
func (p *Pipeline) embedBatch(ctx context.Context, batch []*chunk.Chunk) ([]*store.Record, int) {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if len(batch) == 1 {
			slog.Warn("embedding failed, skipping chunk",
				slog.String("path", batch[0].Path),
				slog.String("error", err.Error()))
			return nil, 1
		}
		// Isolate the failing chunk(s).
		var records []*store.Record
		skipped := 0
		for _, ch := range batch {
			sub, s := p.embedBatch(ctx, []*chunk.Chunk{ch})
			records = append(records, sub...)
			skipped += s
		}
		return records, skipped
	}

	records := make([]*store.Record, 0, len(batch))
	skipped := 0
	for i, ch := range batch {
		if hasInvalidVector(vectors[i]) {
			slog.Warn("embedding produced invalid vector, skipping chunk", slog.String("path", ch.Path))
			skipped++
			continue
		}
		records = append(records, &store.Record{
			ID:       ch.ID,
			Vector:   vectors[i],
			Metadata: store.MetadataFromChunk(ch),
		})
	}
	return records, skipped
}

// hasInvalidVector reports NaN/Inf components or an empty vector.
func hasInvalidVector(v []float32) bool {
	if len(v) == 0 {
		return true
	}
	for _, x := range v {
		if x != x { // NaN
			return true
		}
		if x > 3.4e38 || x < -3.4e38 {
			return true
		}
	}
	return false
}

// String summarizes the summary for logs.
func (s *Summary) String() string {
	return fmt.Sprintf("files=%d chunks=%d skipped=%d", s.FileCount, s.ChunkCount, s.SkippedCount)
}
