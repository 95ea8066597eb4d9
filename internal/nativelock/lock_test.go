package nativelock

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/gitteh/internal/metrics"
)

// overlapObserver records how many goroutines are inside the critical section.
type overlapObserver struct {
	active   atomic.Int32
	max      atomic.Int32
	acquires atomic.Int64
	order    []int64
	mu       sync.Mutex
}

func (o *overlapObserver) OnAcquire() {
	n := o.active.Add(1)
	for {
		cur := o.max.Load()
		if n <= cur || o.max.CompareAndSwap(cur, n) {
			break
		}
	}
	seq := o.acquires.Add(1)
	o.mu.Lock()
	o.order = append(o.order, seq)
	o.mu.Unlock()
}

func (o *overlapObserver) OnRelease() { o.active.Add(-1) }

func TestLock_MutualExclusionUnderLoad(t *testing.T) {
	obs := &overlapObserver{}
	l := New(WithObserver(obs))

	const goroutines = 32
	const calls = 200

	// counter is deliberately unsynchronized; the lock is the only protection.
	counter := 0
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				_ = l.Do(func() error {
					counter++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*calls, counter)
	assert.Equal(t, int32(1), obs.max.Load(), "native calls overlapped")
	assert.Equal(t, int64(goroutines*calls), obs.acquires.Load())
	for i, seq := range obs.order {
		require.Equal(t, int64(i+1), seq, "acquisitions must be totally ordered")
	}
}

func TestLock_ReleasesOnError(t *testing.T) {
	l := New()
	boom := errors.New("boom")

	err := l.Do(func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, l.Held())

	// A second acquisition must not deadlock.
	require.NoError(t, l.Do(func() error { return nil }))
}

func TestLock_ReleasesOnPanic(t *testing.T) {
	l := New()

	func() {
		defer func() { _ = recover() }()
		_ = l.Do(func() error { panic("native crash") })
	}()

	assert.False(t, l.Held())
	done := make(chan struct{})
	go func() {
		_ = l.Do(func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock not released after panic")
	}
}

func TestLock_HeldInsideDo(t *testing.T) {
	l := New()
	var inside bool
	_ = l.Do(func() error {
		inside = l.Held()
		return nil
	})
	assert.True(t, inside)
	assert.False(t, l.Held())
}

func TestCall(t *testing.T) {
	l := New(WithRecorder(metrics.NoopRecorder{}))
	v, err := Call(l, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

type countingRecorder struct {
	metrics.NoopRecorder
	waits, holds atomic.Int32
}

func (c *countingRecorder) ObserveLockWait(time.Duration) { c.waits.Add(1) }
func (c *countingRecorder) ObserveLockHold(time.Duration) { c.holds.Add(1) }

func TestLock_RecordsDurations(t *testing.T) {
	rec := &countingRecorder{}
	l := New(WithRecorder(rec))
	for range 3 {
		_ = l.Do(func() error { return nil })
	}
	assert.Equal(t, int32(3), rec.waits.Load())
	assert.Equal(t, int32(3), rec.holds.Load())
}
