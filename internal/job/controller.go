// Package job serializes ingestion behind a single-request, poll-based
// contract: at most one job runs at a time, progress snapshots are cheap
// copies, and every run reaches a terminal state even on panics.
package job

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Aman-CERP/reporag/internal/errors"
	"github.com/Aman-CERP/reporag/internal/ingest"
)

// Result is the terminal outcome of a successful job.
type Result struct {
	Success      bool `json:"success"`
	FileCount    int  `json:"fileCount"`
	ChunkCount   int  `json:"chunkCount"`
	SkippedCount int  `json:"skippedCount"`
}

// Error is the terminal outcome of a failed job. StackDigest identifies
// the failure site without leaking stack traces to clients.
type Error struct {
	Kind        errors.Kind `json:"kind"`
	Message     string      `json:"message"`
	StackDigest string      `json:"stackDigest,omitempty"`
}

// Snapshot is an immutable copy of the job state.
type Snapshot struct {
	InProgress bool      `json:"in_progress"`
	RepoURL    string    `json:"repo_url,omitempty"`
	Progress   int       `json:"progress"`
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Result     *Result   `json:"result,omitempty"`
	Error      *Error    `json:"error,omitempty"`
}

// Runner executes one ingestion and reports progress.
type Runner interface {
	Run(ctx context.Context, repoURL string, progress ingest.ProgressFunc) (*ingest.Summary, error)
}

// Controller owns the process-wide job state.
type Controller struct {
	runner Runner

	mu         sync.Mutex
	inProgress bool
	repoURL    string
	progress   int
	stage      string
	startedAt  time.Time
	result     *Result
	lastErr    *Error
	cancel     context.CancelFunc
}

// New creates a Controller over the given runner.
func New(runner Runner) *Controller {
	return &Controller{runner: runner}
}

// Start transitions to running and schedules the pipeline asynchronously.
// Returns ConflictError while a job is in progress; the prior transcript
// is cleared on a successful transition.
func (c *Controller) Start(ctx context.Context, repoURL string) error {
	c.mu.Lock()
	if c.inProgress {
		c.mu.Unlock()
		return errors.Newf(errors.KindConflict, "indexing in progress for %s", c.repoURL)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.inProgress = true
	c.repoURL = repoURL
	c.progress = 0
	c.stage = "Starting"
	c.startedAt = time.Now().UTC()
	c.result = nil
	c.lastErr = nil
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx, repoURL)
	return nil
}

// Progress returns the current immutable snapshot of job state.
func (c *Controller) Progress() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		InProgress: c.inProgress,
		RepoURL:    c.repoURL,
		Progress:   c.progress,
		Stage:      c.stage,
		StartedAt:  c.startedAt,
		Result:     c.result,
		Error:      c.lastErr,
	}
}

// Cancel propagates cancellation into the running pipeline, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run executes the pipeline body off the caller's goroutine. The guard
// guarantees a terminal state: inProgress never survives a failure,
// including panics.
func (c *Controller) run(ctx context.Context, repoURL string) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			slog.Error("ingestion panicked",
				slog.String("repo_url", repoURL),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(stack)))
			c.finishError(&Error{
				Kind:        errors.KindInternal,
				Message:     fmt.Sprint(r),
				StackDigest: stackDigest(stack),
			})
		}
	}()

	summary, err := c.runner.Run(ctx, repoURL, c.updateProgress)
	if err != nil {
		slog.Error("ingestion failed",
			slog.String("repo_url", repoURL),
			slog.String("kind", string(errors.KindOf(err))),
			slog.String("error", err.Error()))
		c.finishError(&Error{
			Kind:    errors.KindOf(err),
			Message: err.Error(),
		})
		return
	}

	c.finishSuccess(&Result{
		Success:      true,
		FileCount:    summary.FileCount,
		ChunkCount:   summary.ChunkCount,
		SkippedCount: summary.SkippedCount,
	})
}

// updateProgress records a stage transition. Progress is clamped to be
// monotone non-decreasing within a job: concurrent upserts may report
// completions out of order.
func (c *Controller) updateProgress(stage string, pct int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inProgress {
		return
	}
	c.stage = stage
	if pct > c.progress {
		if pct > 100 {
			pct = 100
		}
		c.progress = pct
	}
}

// finishSuccess marks the job terminal with a result.
func (c *Controller) finishSuccess(result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress = false
	c.progress = 100
	c.stage = "Complete"
	c.result = result
	c.cancel = nil
}

// finishError marks the job terminal with an error.
func (c *Controller) finishError(jobErr *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress = false
	c.stage = "Error"
	c.lastErr = jobErr
	c.cancel = nil
}

// stackDigest hashes a stack trace into a short stable identifier.
func stackDigest(stack []byte) string {
	sum := sha256.Sum256(stack)
	return hex.EncodeToString(sum[:8])
}
