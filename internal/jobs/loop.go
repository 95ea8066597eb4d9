package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/gitteh/internal/logfields"
)

// ErrLoopRunning is returned when a second goroutine tries to drive a Loop.
var ErrLoopRunning = errors.New("jobs: loop is already running")

// Loop executes posted functions sequentially on whichever goroutine calls Run.
// That goroutine is the host thread for everything delivered through the Loop.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	refs    int
	wake    chan struct{}
	running atomic.Bool
	logger  *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the logger used for completion panics.
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// NewLoop creates an idle Loop.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn for execution on the host thread. It never blocks.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// Ref marks one more outstanding job that will eventually Post its completion.
// RunUntilIdle does not return while refs are outstanding.
func (l *Loop) Ref() {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
}

// Unref releases a reference taken by Ref.
func (l *Loop) Unref() {
	l.mu.Lock()
	if l.refs > 0 {
		l.refs--
	}
	l.mu.Unlock()
	l.signal()
}

// Pending returns the number of queued functions and outstanding references.
func (l *Loop) Pending() (queued, refs int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue), l.refs
}

// Run drives the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	return l.run(ctx, false)
}

// RunUntilIdle drives the loop until nothing is queued and no referenced job is
// outstanding, or until ctx is done.
func (l *Loop) RunUntilIdle(ctx context.Context) error {
	return l.run(ctx, true)
}

func (l *Loop) run(ctx context.Context, untilIdle bool) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	for {
		batch, idle := l.take()
		for _, fn := range batch {
			l.invoke(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if untilIdle && idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) take() ([]func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch, len(batch) == 0 && l.refs == 0
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Completion panicked", logfields.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	fn()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
