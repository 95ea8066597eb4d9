// Package nativelock provides the single mutual-exclusion primitive that guards
// every call into go-git for one repository session.
//
// go-git repositories, storers and indexes are not safe for concurrent use, so
// each session owns exactly one Lock and every native call, whether it runs on
// the caller's goroutine or on a scheduler worker, goes through Lock.Do. There
// are no finer-grained locks.
//
// The lock is not reentrant. Code running inside Do must not call Do again and
// must not run completion callbacks.
package nativelock

import (
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/gitteh/internal/metrics"
)

// Observer is notified on every acquisition and release. Both methods run with
// the lock held, so implementations must not block or call back into the lock.
type Observer interface {
	OnAcquire()
	OnRelease()
}

// Lock serializes native calls.
type Lock struct {
	mu       sync.Mutex
	held     atomic.Bool
	recorder metrics.Recorder
	observer Observer
}

// Option configures a Lock.
type Option func(*Lock)

// WithRecorder records wait and hold durations.
func WithRecorder(r metrics.Recorder) Option {
	return func(l *Lock) { l.recorder = metrics.OrNoop(r) }
}

// WithObserver installs an acquisition observer.
func WithObserver(o Observer) Option {
	return func(l *Lock) { l.observer = o }
}

// New creates an unlocked Lock.
func New(opts ...Option) *Lock {
	l := &Lock{recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Do runs fn with the lock held. The lock is released on every exit path,
// including a panic inside fn.
func (l *Lock) Do(fn func() error) error {
	start := time.Now()
	l.mu.Lock()
	acquired := time.Now()
	l.held.Store(true)
	if l.observer != nil {
		l.observer.OnAcquire()
	}
	defer func() {
		if l.observer != nil {
			l.observer.OnRelease()
		}
		l.held.Store(false)
		l.mu.Unlock()
		l.recorder.ObserveLockWait(acquired.Sub(start))
		l.recorder.ObserveLockHold(time.Since(acquired))
	}()
	return fn()
}

// Held reports whether some goroutine currently holds the lock.
func (l *Lock) Held() bool {
	return l.held.Load()
}

// Call runs fn under l and returns its value.
func Call[T any](l *Lock, fn func() (T, error)) (T, error) {
	var out T
	err := l.Do(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
