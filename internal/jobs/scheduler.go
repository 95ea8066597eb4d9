package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
	"git.home.luguber.info/inful/gitteh/internal/logfields"
	"git.home.luguber.info/inful/gitteh/internal/metrics"
)

// Pin keeps a job's target alive from submission until its completion has run.
type Pin interface {
	Ref()
	Unref()
}

// JobStatus represents the lifecycle position of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one unit of offloaded work. Exactly one of result and err is set once
// the work has run.
type Job struct {
	ID        string
	Op        string
	Submitted time.Time

	work     func() (any, error)
	complete func(any, error)
	pin      Pin

	status JobStatus
	result any
	err    error
}

// Status returns the job's current status.
func (j *Job) Status() JobStatus { return j.status }

// Scheduler runs jobs on a bounded worker pool and delivers completions on a Loop.
type Scheduler struct {
	loop     *Loop
	workers  int
	recorder metrics.Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []*Job
	started  bool
	stopping bool
	wg       sync.WaitGroup

	inFlight atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRecorder records job metrics.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) { s.recorder = metrics.OrNoop(r) }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler delivering to loop. Workers start with Start.
func NewScheduler(loop *Loop, opts ...Option) *Scheduler {
	s := &Scheduler{
		loop:     loop,
		workers:  4,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Loop returns the loop completions are delivered on.
func (s *Scheduler) Loop() *Loop { return s.loop }

// Start launches the worker pool. Calling Start more than once is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopping {
		return
	}
	s.started = true
	s.logger.Info("Starting job scheduler", logfields.Workers(s.workers))
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(fmt.Sprintf("worker-%d", i))
	}
}

// Stop stops accepting jobs and waits, bounded by ctx, for the workers to finish
// everything already queued. Jobs are never cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	var orphaned []*Job
	if !s.started {
		orphaned = s.pending
		s.pending = nil
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, job := range orphaned {
		s.deliver(job, nil, ErrStopped(job.Op))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of jobs whose completion has not run yet.
func (s *Scheduler) InFlight() int { return int(s.inFlight.Load()) }

// ErrStopped is the error delivered to jobs submitted after Stop.
func ErrStopped(op string) error {
	return gerrors.New(gerrors.CategoryInternal, "job scheduler stopped").WithContext("op", op)
}

// Submit queues work and returns the job ID without blocking. pin, if non-nil,
// is referenced now and released after complete has run on the loop. complete
// runs exactly once.
func (s *Scheduler) Submit(op string, work func() (any, error), complete func(any, error), pin Pin) string {
	job := &Job{
		ID:        uuid.NewString(),
		Op:        op,
		Submitted: time.Now(),
		work:      work,
		complete:  complete,
		pin:       pin,
		status:    JobStatusQueued,
	}
	if job.pin != nil {
		job.pin.Ref()
	}
	s.loop.Ref()
	s.recorder.SetJobsInFlight(int(s.inFlight.Add(1)))
	s.recorder.IncJobSubmitted(op)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		s.deliver(job, nil, ErrStopped(op))
		return job.ID
	}
	s.pending = append(s.pending, job)
	s.cond.Signal()
	s.mu.Unlock()

	s.logger.Debug("Job submitted", logfields.JobID(job.ID), logfields.Op(op))
	return job.ID
}

// Go is the typed form of Submit.
func Go[T any](s *Scheduler, op string, pin Pin, work func() (T, error), complete func(T, error)) string {
	return s.Submit(op,
		func() (any, error) { return work() },
		func(v any, err error) {
			var out T
			if err == nil {
				out, _ = v.(T)
			}
			complete(out, err)
		},
		pin)
}

func (s *Scheduler) worker(workerID string) {
	defer s.wg.Done()
	s.logger.Debug("Job worker started", logfields.Worker(workerID))

	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.stopping {
			s.cond.Wait()
		}
		if len(s.pending) == 0 {
			s.mu.Unlock()
			s.logger.Debug("Job worker stopped", logfields.Worker(workerID))
			return
		}
		job := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		result, err := s.run(job)
		s.deliver(job, result, err)
	}
}

// run executes the job's work, turning a panic into a native failure.
func (s *Scheduler) run(job *Job) (result any, err error) {
	job.status = JobStatusRunning
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = gerrors.NativeFailure(job.Op, fmt.Errorf("panic: %v", r))
		}
	}()
	return job.work()
}

// deliver posts the completion to the loop, then releases the pin.
func (s *Scheduler) deliver(job *Job, result any, err error) {
	if err != nil {
		job.status, job.err = JobStatusFailed, err
	} else {
		job.status, job.result = JobStatusCompleted, result
	}

	s.loop.Post(func() {
		defer func() {
			if job.pin != nil {
				job.pin.Unref()
			}
			s.recorder.SetJobsInFlight(int(s.inFlight.Add(-1)))
			s.loop.Unref()
		}()

		d := time.Since(job.Submitted)
		s.recorder.ObserveJobDuration(job.Op, d, metrics.ResultFor(job.err))
		s.logger.Debug("Job completed",
			logfields.JobID(job.ID),
			logfields.Op(job.Op),
			logfields.JobStatus(string(job.status)),
			logfields.Duration(d),
			logfields.Error(job.err))

		job.complete(job.result, job.err)
	})
}
