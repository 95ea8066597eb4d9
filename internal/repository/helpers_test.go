package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/gitteh/internal/jobs"
)

func testSignature() *object.Signature {
	return &object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0)}
}

// newFixture creates a repository whose index and HEAD commit hold files
// file0.txt .. file<n-1>.txt.
func newFixture(t *testing.T, files int) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for i := range files {
		addFile(t, dir, wt, i)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{Author: testSignature()})
	require.NoError(t, err)
	return dir
}

func addFile(t *testing.T, dir string, wt *git.Worktree, i int) {
	t.Helper()
	name := fmt.Sprintf("file%d.txt", i)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(fmt.Sprintf("content %d\n", i)), 0o600))
	_, err := wt.Add(name)
	require.NoError(t, err)
}

// addOutOfBand stages another file through a separate go-git handle, the way
// another process would.
func addOutOfBand(t *testing.T, dir string, i int) {
	t.Helper()
	other, err := git.PlainOpen(dir)
	require.NoError(t, err)
	wt, err := other.Worktree()
	require.NoError(t, err)
	addFile(t, dir, wt, i)
}

type testHost struct {
	loop  *jobs.Loop
	sched *jobs.Scheduler
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	loop := jobs.NewLoop()
	sched := jobs.NewScheduler(loop, jobs.WithWorkers(4))
	sched.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})
	return &testHost{loop: loop, sched: sched}
}

// drain runs completions on the calling goroutine until no job is outstanding.
func (h *testHost) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.loop.RunUntilIdle(ctx))
}

func (h *testHost) open(t *testing.T, dir string, opts ...Option) *Repository {
	t.Helper()
	repo, err := Open(h.sched, dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// overlapObserver records the peak number of goroutines inside the lock.
type overlapObserver struct {
	active   atomic.Int32
	peak     atomic.Int32
	acquired atomic.Int64
}

func (o *overlapObserver) OnAcquire() {
	o.acquired.Add(1)
	n := o.active.Add(1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (o *overlapObserver) OnRelease() { o.active.Add(-1) }
