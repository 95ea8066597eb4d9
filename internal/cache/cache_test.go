package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

type fakeProxy struct {
	Object
	handle string
	size   int
}

type fakeNative struct {
	frees atomic.Int32
}

func (n *fakeNative) construct(handle string) func() *fakeProxy {
	return func() *fakeProxy { return &fakeProxy{handle: handle} }
}

func (n *fakeNative) init(size int) func(*fakeProxy) error {
	return func(p *fakeProxy) error {
		p.size = size
		p.OnRelease(func() { n.frees.Add(1) })
		return nil
	}
}

func TestResolve_IdentityStability(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}

	first, err := c.Resolve("a", n.construct("a"), n.init(5))
	require.NoError(t, err)
	second, err := c.Resolve("a", n.construct("a"), n.init(99))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 5, second.size, "initializer must not rerun for a resident handle")
	assert.Equal(t, 2, first.Refs())
	assert.Equal(t, Live, first.State())

	other, err := c.Resolve("b", n.construct("b"), n.init(1))
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, c.Len())
}

func TestResolve_ConcurrentLookupsShareOneProxy(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}
	var constructed atomic.Int32

	const workers = 64
	results := make([]*fakeProxy, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Resolve("shared", func() *fakeProxy {
				constructed.Add(1)
				return &fakeProxy{handle: "shared"}
			}, n.init(1))
			assert.NoError(t, err)
			results[i] = p
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), constructed.Load())
	for _, p := range results {
		assert.Same(t, results[0], p)
	}
	assert.Equal(t, workers, results[0].Refs())
}

func TestResolve_InitFailureLeavesNoRegistration(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}
	boom := errors.New("native open failed")

	var discarded *fakeProxy
	p, err := c.Resolve("a", n.construct("a"), func(p *fakeProxy) error {
		discarded = p
		p.OnRelease(func() { n.frees.Add(1) })
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, p)
	assert.Zero(t, c.Len())
	assert.Equal(t, int32(1), n.frees.Load(), "partial native resource must be released")
	assert.False(t, discarded.Live())

	// A later resolve builds a fresh proxy.
	again, err := c.Resolve("a", n.construct("a"), n.init(2))
	require.NoError(t, err)
	assert.NotSame(t, discarded, again)
	assert.Equal(t, 2, again.size)
}

func TestRelease_FreesOnceAtZero(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}

	p, err := c.Resolve("a", n.construct("a"), n.init(1))
	require.NoError(t, err)
	_, err = c.Resolve("a", n.construct("a"), n.init(1))
	require.NoError(t, err)

	p.Release()
	assert.True(t, p.Live())
	assert.Zero(t, n.frees.Load())

	p.Release()
	assert.Equal(t, Released, p.State())
	assert.Equal(t, int32(1), n.frees.Load())
	assert.Zero(t, c.Len())

	// Extra releases never free twice.
	p.Release()
	assert.Equal(t, int32(1), n.frees.Load())

	err = p.Check()
	require.Error(t, err)
	assert.True(t, gerrors.IsStale(err))
}

func TestPin_KeepsProxyAliveAfterHostRelease(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}

	p, err := c.Resolve("a", n.construct("a"), n.init(1))
	require.NoError(t, err)

	p.Ref() // job pin
	p.Release()
	assert.True(t, p.Live(), "pinned proxy must survive the host dropping it")

	p.Unref() // job completion
	assert.False(t, p.Live())
	assert.Equal(t, int32(1), n.frees.Load())
}

func TestInvalidateAll_MarksStale(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}

	a, err := c.Resolve("a", n.construct("a"), n.init(1))
	require.NoError(t, err)
	b, err := c.Resolve("b", n.construct("b"), n.init(1))
	require.NoError(t, err)

	assert.Equal(t, 2, c.InvalidateAll())
	assert.Equal(t, Stale, a.State())
	assert.Equal(t, Stale, b.State())
	assert.Equal(t, int32(2), n.frees.Load())
	assert.True(t, gerrors.IsStale(a.Check()))

	// Releasing a stale proxy does not free again.
	a.Release()
	assert.Equal(t, int32(2), n.frees.Load())

	_, err = c.Resolve("c", n.construct("c"), n.init(1))
	assert.True(t, gerrors.IsStale(err))
}

func TestInvalidate_SingleEntry(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}

	old, err := c.Resolve("ref", n.construct("ref"), n.init(1))
	require.NoError(t, err)
	assert.True(t, c.Invalidate("ref"))
	assert.False(t, c.Invalidate("ref"))
	assert.Equal(t, Stale, old.State())

	fresh, err := c.Resolve("ref", n.construct("ref"), n.init(2))
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.True(t, fresh.Live())
}

func TestReplace_AlwaysFresh(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}

	old, err := c.Resolve("ref", n.construct("ref"), n.init(1))
	require.NoError(t, err)
	fresh, err := c.Replace("ref", n.construct("ref"), n.init(2))
	require.NoError(t, err)

	assert.NotSame(t, old, fresh)
	assert.Equal(t, Stale, old.State())
	assert.Equal(t, 2, fresh.size)
}

func TestReplace_ConcurrentResolveNeverWins(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if p, err := c.Resolve("ref", n.construct("read"), n.init(1)); err == nil {
					p.Unref()
				}
			}
		}()
	}

	for i := range 2000 {
		fresh, err := c.Replace("ref", n.construct("written"), n.init(i))
		require.NoError(t, err)
		require.Equal(t, "written", fresh.handle)
		require.Equal(t, i, fresh.size)
		require.True(t, fresh.Live())
		fresh.Unref()
	}
	close(stop)
	wg.Wait()
}

func TestReplace_ClosedCache(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}
	c.InvalidateAll()

	_, err := c.Replace("ref", n.construct("ref"), n.init(1))
	assert.True(t, gerrors.IsStale(err))
}

func TestForget_DetachesWithoutInvalidating(t *testing.T) {
	c := New[string, *fakeProxy]("fake")
	n := &fakeNative{}

	old, err := c.Resolve("index", n.construct("index"), n.init(5))
	require.NoError(t, err)
	require.True(t, c.Forget("index"))

	fresh, err := c.Resolve("index", n.construct("index"), n.init(6))
	require.NoError(t, err)
	assert.NotSame(t, old, fresh)
	assert.True(t, old.Live())
	assert.Equal(t, 5, old.size)
	assert.Equal(t, 2, c.Len())

	// Releasing the detached proxy must not remove the fresh registration.
	old.Release()
	assert.Equal(t, Released, old.State())
	got, ok := c.Lookup("index")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	// Teardown reaches detached proxies too.
	other, err := c.Resolve("other", n.construct("other"), n.init(1))
	require.NoError(t, err)
	require.True(t, c.Forget("other"))
	c.InvalidateAll()
	assert.Equal(t, Stale, other.State())
	assert.Equal(t, Stale, fresh.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "live", Live.String())
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "released", Released.String())
}
