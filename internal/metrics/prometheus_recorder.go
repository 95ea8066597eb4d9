package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	lockWait      prom.Histogram
	lockHold      prom.Histogram
	jobsSubmitted *prom.CounterVec
	jobDuration   *prom.HistogramVec
	jobsInFlight  prom.Gauge
	cacheLookups  *prom.CounterVec
	cacheResident *prom.GaugeVec
}

// lockBuckets covers sub-millisecond native calls up to slow pack reads.
var lockBuckets = []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.lockWait = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "gitteh",
			Name:      "native_lock_wait_seconds",
			Help:      "Time spent waiting to acquire the native lock",
			Buckets:   lockBuckets,
		})
		pr.lockHold = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "gitteh",
			Name:      "native_lock_hold_seconds",
			Help:      "Time the native lock was held per call",
			Buckets:   lockBuckets,
		})
		pr.jobsSubmitted = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitteh",
			Name:      "jobs_submitted_total",
			Help:      "Asynchronous jobs submitted by operation",
		}, []string{"op"})
		pr.jobDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "gitteh",
			Name:      "job_duration_seconds",
			Help:      "Duration from submission to completion delivery",
			Buckets:   prom.DefBuckets,
		}, []string{"op", "result"})
		pr.jobsInFlight = prom.NewGauge(prom.GaugeOpts{
			Namespace: "gitteh",
			Name:      "jobs_in_flight",
			Help:      "Jobs submitted whose completion has not run yet",
		})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitteh",
			Name:      "cache_lookups_total",
			Help:      "Resource cache lookups by kind and outcome",
		}, []string{"kind", "outcome"})
		pr.cacheResident = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "gitteh",
			Name:      "cache_resident_proxies",
			Help:      "Live proxies currently registered per resource kind",
		}, []string{"kind"})
		reg.MustRegister(pr.lockWait, pr.lockHold, pr.jobsSubmitted, pr.jobDuration, pr.jobsInFlight, pr.cacheLookups, pr.cacheResident)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveLockWait(d time.Duration) {
	if p == nil || p.lockWait == nil {
		return
	}
	p.lockWait.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveLockHold(d time.Duration) {
	if p == nil || p.lockHold == nil {
		return
	}
	p.lockHold.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobSubmitted(op string) {
	if p == nil || p.jobsSubmitted == nil {
		return
	}
	p.jobsSubmitted.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) ObserveJobDuration(op string, d time.Duration, result ResultLabel) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.WithLabelValues(op, string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetJobsInFlight(n int) {
	if p == nil || p.jobsInFlight == nil {
		return
	}
	p.jobsInFlight.Set(float64(n))
}

func (p *PrometheusRecorder) IncCacheLookup(kind string, hit bool) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	p.cacheLookups.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusRecorder) SetCacheResident(kind string, n int) {
	if p == nil || p.cacheResident == nil {
		return
	}
	p.cacheResident.WithLabelValues(kind).Set(float64(n))
}
