// Package fetch acquires a local snapshot of a Git repository.
// Snapshots are shallow (single revision, no history) and transient:
// Release must be called when the pipeline terminates.
package fetch

import (
	"context"
	"log/slog"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/Aman-CERP/reporag/internal/errors"
)

// DefaultTimeout is the wall-clock limit for a clone.
const DefaultTimeout = 120 * time.Second

// Snapshot is a read-only local checkout of a repository revision.
type Snapshot struct {
	// URL is the repository URL as requested.
	URL string

	// Dir is the local root of the checkout.
	Dir string

	// Revision is the resolved commit hash.
	Revision string
}

// Release removes the local checkout. Safe to call more than once.
func (s *Snapshot) Release() {
	if s.Dir == "" {
		return
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		slog.Warn("snapshot cleanup failed",
			slog.String("dir", s.Dir),
			slog.String("error", err.Error()))
	}
	s.Dir = ""
}

// Fetcher clones repositories into temporary directories.
type Fetcher struct {
	// Timeout bounds a single clone. Zero means DefaultTimeout.
	Timeout time.Duration
}

// New creates a Fetcher with the default timeout.
func New() *Fetcher {
	return &Fetcher{Timeout: DefaultTimeout}
}

// Fetch clones repoURL at revision into a fresh temp directory.
// An empty revision means the default branch tip. The directory is removed
// on failure; on success the caller owns it via Snapshot.Release.
func (f *Fetcher) Fetch(ctx context.Context, repoURL, revision string) (*Snapshot, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "reporag-")
	if err != nil {
		return nil, errors.Wrap(errors.KindFetch, err)
	}

	opts := &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if revision != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(revision)
	}

	slog.Info("cloning repository", slog.String("url", repoURL))

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil && revision != "" {
		// The revision may be a tag rather than a branch.
		_ = os.RemoveAll(dir)
		if dir, err = os.MkdirTemp("", "reporag-"); err != nil {
			return nil, errors.Wrap(errors.KindFetch, err)
		}
		opts.ReferenceName = plumbing.NewTagReferenceName(revision)
		repo, err = git.PlainCloneContext(ctx, dir, false, opts)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, errors.Wrap(errors.KindFetch, err)
	}

	head, err := repo.Head()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, errors.Wrap(errors.KindFetch, err)
	}

	slog.Info("repository cloned",
		slog.String("url", repoURL),
		slog.String("revision", head.Hash().String()))

	return &Snapshot{
		URL:      repoURL,
		Dir:      dir,
		Revision: head.Hash().String(),
	}, nil
}
