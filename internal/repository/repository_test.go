package repository

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/gitteh/internal/cache"
	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

func headID(t *testing.T, repo *Repository) string {
	t.Helper()
	head, err := repo.Reference("HEAD")
	require.NoError(t, err)
	direct, err := head.Resolve()
	require.NoError(t, err)
	return direct.Target()
}

func TestOpen_Errors(t *testing.T) {
	h := newTestHost(t)

	_, err := Open(h.sched, "")
	assert.True(t, gerrors.IsInvalidArgument(err))

	_, err = Open(h.sched, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, gerrors.IsNotFound(err), "got %v", err)
}

func TestOpenAsync(t *testing.T) {
	h := newTestHost(t)
	dir := newFixture(t, 2)

	var got *Repository
	calls := 0
	require.NoError(t, OpenAsync(h.sched, dir, func(r *Repository, err error) {
		calls++
		require.NoError(t, err)
		got = r
	}))
	h.drain(t)

	require.Equal(t, 1, calls)
	require.NotNil(t, got)
	defer func() { _ = got.Close() }()
	assert.Equal(t, dir, got.Path())
	assert.False(t, got.Bare())
	assert.Equal(t, filepath.Join(dir, ".git", "index"), got.IndexPath())

	var missingErr error
	require.NoError(t, OpenAsync(h.sched, filepath.Join(dir, "nope"), func(r *Repository, err error) {
		assert.Nil(t, r)
		missingErr = err
	}))
	h.drain(t)
	assert.True(t, gerrors.IsNotFound(missingErr))
}

func TestInit_BareAndReinit(t *testing.T) {
	h := newTestHost(t)
	dir := t.TempDir()

	repo, err := Init(h.sched, dir, true)
	require.NoError(t, err)
	assert.True(t, repo.Bare())
	assert.Equal(t, filepath.Join(dir, "index"), repo.IndexPath())

	ix, err := repo.Index()
	require.NoError(t, err)
	assert.Zero(t, ix.EntryCount())
	require.NoError(t, repo.Close())

	again, err := Init(h.sched, dir, true)
	require.NoError(t, err)
	require.NoError(t, again.Close())

	var asyncRepo *Repository
	require.NoError(t, InitAsync(h.sched, t.TempDir(), false, func(r *Repository, err error) {
		require.NoError(t, err)
		asyncRepo = r
	}))
	h.drain(t)
	require.NotNil(t, asyncRepo)
	assert.False(t, asyncRepo.Bare())
	require.NoError(t, asyncRepo.Close())
}

// Scenario A: synchronous entry lookups on a five entry index.
func TestIndex_SyncEntries(t *testing.T) {
	h := newTestHost(t)
	repo := h.open(t, newFixture(t, 5))

	ix, err := repo.Index()
	require.NoError(t, err)
	require.Equal(t, 5, ix.EntryCount())

	w0, err := ix.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, "file0.txt", w0.Path())
	assert.Same(t, ix, w0.Index())

	again, err := ix.Entry(0)
	require.NoError(t, err)
	assert.Same(t, w0, again)

	w4, err := ix.Entry(4)
	require.NoError(t, err)
	assert.Equal(t, "file4.txt", w4.Path())
	assert.NotSame(t, w0, w4)

	for _, i := range []int{5, -1, 100} {
		_, err := ix.Entry(i)
		require.Error(t, err, "entry %d", i)
		assert.True(t, gerrors.IsNotFound(err), "entry %d: %v", i, err)
	}

	same, err := repo.Index()
	require.NoError(t, err)
	assert.Same(t, ix, same)
}

// Scenario B: an asynchronous lookup returns at once and completes on the loop.
func TestIndex_AsyncEntry(t *testing.T) {
	h := newTestHost(t)
	repo := h.open(t, newFixture(t, 5))

	ix, err := repo.Index()
	require.NoError(t, err)
	w0, err := ix.Entry(0)
	require.NoError(t, err)

	var (
		calls int
		got   *IndexEntry
		gotEr error
	)
	err = ix.EntryAsync(0, func(e *IndexEntry, err error) {
		calls++
		got, gotEr = e, err
	})
	require.NoError(t, err)
	assert.Zero(t, calls, "completion must not run before the loop delivers it")

	h.drain(t)
	require.Equal(t, 1, calls)
	require.NoError(t, gotEr)
	assert.Same(t, w0, got)
}

// Scenario C: overlapping lookups observe the count of the initial load.
func TestIndex_OverlappingAsyncSnapshot(t *testing.T) {
	h := newTestHost(t)
	dir := newFixture(t, 5)
	repo := h.open(t, dir)

	var ix *Index
	require.NoError(t, repo.IndexAsync(func(i *Index, err error) {
		require.NoError(t, err)
		ix = i
	}))
	h.drain(t)
	require.NotNil(t, ix)

	counts := make(map[string]int)
	record := func(e *IndexEntry, err error) {
		require.NoError(t, err)
		counts[e.Path()] = e.Index().EntryCount()
	}
	require.NoError(t, ix.EntryAsync(1, record))
	require.NoError(t, ix.EntryAsync(3, record))

	addOutOfBand(t, dir, 5)
	h.drain(t)

	assert.Equal(t, map[string]int{"file1.txt": 5, "file3.txt": 5}, counts)
	assert.Equal(t, 5, ix.EntryCount())

	_, err := ix.Entry(5)
	assert.True(t, gerrors.IsNotFound(err))
}

func TestIndex_FindEntry(t *testing.T) {
	h := newTestHost(t)
	repo := h.open(t, newFixture(t, 3))

	ix, err := repo.Index()
	require.NoError(t, err)

	e, err := ix.FindEntry("file2.txt")
	require.NoError(t, err)
	byPos, err := ix.Entry(2)
	require.NoError(t, err)
	assert.Same(t, byPos, e)
	assert.Len(t, e.ID(), 40)

	_, err = ix.FindEntry("missing.txt")
	assert.True(t, gerrors.IsNotFound(err))

	_, err = ix.FindEntry("")
	assert.True(t, gerrors.IsInvalidArgument(err))

	var asyncErr error
	require.NoError(t, ix.FindEntryAsync("missing.txt", func(_ *IndexEntry, err error) { asyncErr = err }))
	h.drain(t)
	assert.True(t, gerrors.IsNotFound(asyncErr))
}

func TestRefreshIndex_FreshSnapshot(t *testing.T) {
	h := newTestHost(t)
	dir := newFixture(t, 5)
	repo := h.open(t, dir)

	old, err := repo.Index()
	require.NoError(t, err)
	oldEntry, err := old.Entry(0)
	require.NoError(t, err)

	addOutOfBand(t, dir, 5)
	assert.True(t, repo.RefreshIndex())
	assert.False(t, repo.RefreshIndex())

	fresh, err := repo.Index()
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.Equal(t, 6, fresh.EntryCount())

	assert.True(t, old.Live())
	assert.Equal(t, 5, old.EntryCount())
	again, err := old.Entry(0)
	require.NoError(t, err)
	assert.Same(t, oldEntry, again)

	freshEntry, err := fresh.Entry(0)
	require.NoError(t, err)
	assert.NotSame(t, oldEntry, freshEntry)
	assert.Equal(t, oldEntry.Path(), freshEntry.Path())

	require.NoError(t, repo.Close())
	assert.Equal(t, cache.Stale, old.State())
	assert.Equal(t, cache.Stale, fresh.State())
}

func TestClose_StaleAfterTeardown(t *testing.T) {
	h := newTestHost(t)
	repo := h.open(t, newFixture(t, 5))

	head := headID(t, repo)
	commit, err := repo.Commit(head)
	require.NoError(t, err)
	tree, err := commit.Tree()
	require.NoError(t, err)
	ix, err := repo.Index()
	require.NoError(t, err)
	entry, err := ix.Entry(0)
	require.NoError(t, err)
	ref, err := repo.Reference("HEAD")
	require.NoError(t, err)
	walker, err := repo.CreateWalker()
	require.NoError(t, err)
	require.NoError(t, walker.Push(head))

	require.Positive(t, repo.Dependents())
	require.NoError(t, repo.Close())
	assert.True(t, repo.Closed())
	assert.Zero(t, repo.Dependents())

	for _, p := range []interface{ State() cache.State }{commit, tree, ix, entry, ref, walker} {
		assert.Equal(t, cache.Stale, p.State())
	}

	stale := func(err error) { t.Helper(); assert.True(t, gerrors.IsStale(err), "got %v", err) }

	_, err = commit.Tree()
	stale(err)
	_, err = commit.Parent(0)
	stale(err)
	_, err = tree.Entry(0)
	stale(err)
	_, err = ix.Entry(0)
	stale(err)
	_, err = ref.Resolve()
	stale(err)
	stale(ref.Delete())
	_, err = walker.Next()
	stale(err)
	stale(walker.Push(head))
	_, err = repo.Commit(head)
	stale(err)
	_, err = repo.Index()
	stale(err)

	var asyncErr error
	require.NoError(t, ix.EntryAsync(0, func(_ *IndexEntry, err error) { asyncErr = err }))
	h.drain(t)
	stale(asyncErr)

	// Host references dropped after teardown release nothing twice.
	entry.Release()
	commit.Release()
	assert.Zero(t, repo.Dependents())

	assert.NoError(t, repo.Close())
}

func TestAsync_InvalidArgumentIsSynchronous(t *testing.T) {
	h := newTestHost(t)
	repo := h.open(t, newFixture(t, 1))
	head := headID(t, repo)

	called := false
	done := func(*Commit, error) { called = true }

	err := repo.CommitAsync("not-a-hash", done)
	assert.True(t, gerrors.IsInvalidArgument(err))

	err = repo.CommitAsync(head, nil)
	assert.True(t, gerrors.IsInvalidArgument(err))

	err = repo.IndexAsync(nil)
	assert.True(t, gerrors.IsInvalidArgument(err))

	err = repo.CreateOidReferenceAsync("badname", head, false, func(*Reference, error) { called = true })
	assert.True(t, gerrors.IsInvalidArgument(err))

	err = repo.CreateRawObjectAsync("ofs-delta", nil, func(*RawObject, error) { called = true })
	assert.True(t, gerrors.IsInvalidArgument(err))

	h.drain(t)
	assert.False(t, called)

	mem, err := OpenMemory(nil)
	require.NoError(t, err)
	defer func() { _ = mem.Close() }()
	err = mem.IndexAsync(func(*Index, error) {})
	assert.True(t, gerrors.IsInvalidArgument(err), "a session without a scheduler cannot run async work")
}

func TestPin_KeepsProxyUntilCompletion(t *testing.T) {
	h := newTestHost(t)
	repo := h.open(t, newFixture(t, 2))

	commit, err := repo.Commit(headID(t, repo))
	require.NoError(t, err)

	var tree *Tree
	require.NoError(t, commit.TreeAsync(func(tr *Tree, err error) {
		require.NoError(t, err)
		assert.True(t, commit.Live(), "pinned target must be live during completion")
		tree = tr
	}))
	commit.Release()
	assert.True(t, commit.Live())
	assert.Equal(t, 1, commit.Refs())

	h.drain(t)
	require.NotNil(t, tree)
	assert.Equal(t, 2, tree.EntryCount())
	assert.Equal(t, cache.Released, commit.State())
	assert.Zero(t, repo.Pins())
}

func TestLookupFailure_LeavesNoDependents(t *testing.T) {
	h := newTestHost(t)
	repo := h.open(t, newFixture(t, 1))

	before := repo.Dependents()
	_, err := repo.Commit("0123456789012345678901234567890123456789")
	require.Error(t, err)
	assert.True(t, gerrors.IsNotFound(err))
	assert.Equal(t, before, repo.Dependents())

	var asyncErr error
	require.NoError(t, repo.TreeAsync("0123456789012345678901234567890123456789", func(tr *Tree, err error) {
		assert.Nil(t, tr)
		asyncErr = err
	}))
	h.drain(t)
	assert.True(t, gerrors.IsNotFound(asyncErr))
	assert.Equal(t, before, repo.Dependents())
}

func TestNativeCalls_NeverOverlap(t *testing.T) {
	h := newTestHost(t)
	obs := &overlapObserver{}
	repo := h.open(t, newFixture(t, 5), WithLockObserver(obs))
	head := headID(t, repo)

	const goroutines = 16
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				c, err := repo.Commit(head)
				if assert.NoError(t, err) {
					_, err = c.Tree()
					assert.NoError(t, err)
				}
				_, err = repo.Exists(head)
				assert.NoError(t, err)
			}
		}()
	}

	completions := 0
	for range 50 {
		require.NoError(t, repo.ExistsAsync(head, func(ok bool, err error) {
			assert.NoError(t, err)
			assert.True(t, ok)
			completions++
		}))
	}
	wg.Wait()
	h.drain(t)

	assert.Equal(t, 50, completions)
	assert.Equal(t, int32(1), obs.peak.Load(), "native calls overlapped")
	assert.Greater(t, obs.acquired.Load(), int64(goroutines*20))
}
