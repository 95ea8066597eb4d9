package metrics

import "time"

// ResultLabel enumerates job result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailure ResultLabel = "failure"
)

// ResultFor maps an error to its result label.
func ResultFor(err error) ResultLabel {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// Recorder defines observability hooks for the native lock, the job scheduler and
// the resource caches. Implementations may forward to Prometheus, OpenTelemetry, etc.
// All methods must be cheap; they are called on hot paths, some with the native
// lock held.
type Recorder interface {
	ObserveLockWait(d time.Duration)
	ObserveLockHold(d time.Duration)
	IncJobSubmitted(op string)
	ObserveJobDuration(op string, d time.Duration, result ResultLabel)
	SetJobsInFlight(n int)
	IncCacheLookup(kind string, hit bool)
	SetCacheResident(kind string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveLockWait(time.Duration)                          {}
func (NoopRecorder) ObserveLockHold(time.Duration)                          {}
func (NoopRecorder) IncJobSubmitted(string)                                 {}
func (NoopRecorder) ObserveJobDuration(string, time.Duration, ResultLabel) {}
func (NoopRecorder) SetJobsInFlight(int)                                    {}
func (NoopRecorder) IncCacheLookup(string, bool)                            {}
func (NoopRecorder) SetCacheResident(string, int)                           {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
