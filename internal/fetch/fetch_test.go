package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reporag/internal/errors"
)

// initLocalRepo creates a git repository with one commit and returns its path.
func initLocalRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.py")
	require.NoError(t, err)

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir
}

func TestFetchLocalRepository(t *testing.T) {
	src := initLocalRepo(t)

	f := New()
	snapshot, err := f.Fetch(context.Background(), src, "")
	require.NoError(t, err)
	defer snapshot.Release()

	assert.NotEmpty(t, snapshot.Revision)
	assert.FileExists(t, filepath.Join(snapshot.Dir, "main.py"))
}

func TestFetchUnreachableRepo(t *testing.T) {
	f := New()
	f.Timeout = 5 * time.Second

	_, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), "")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindFetch))
}

func TestReleaseRemovesSnapshot(t *testing.T) {
	src := initLocalRepo(t)

	snapshot, err := New().Fetch(context.Background(), src, "")
	require.NoError(t, err)

	dir := snapshot.Dir
	snapshot.Release()
	snapshot.Release() // second call is a no-op

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchMissingRevision(t *testing.T) {
	src := initLocalRepo(t)

	_, err := New().Fetch(context.Background(), src, "no-such-branch")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindFetch))
}
