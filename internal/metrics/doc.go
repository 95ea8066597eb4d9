// Package metrics provides the observability hooks for gitteh's core mechanisms.
//
// # Design Philosophy
//
// This package implements the Null Object pattern so the lock, scheduler and
// caches can record metrics without nil checks. By default every component
// receives NoopRecorder.
//
// # Architecture
//
//  1. Recorder interface - lock wait/hold, job submission/duration/in-flight,
//     cache hit/miss/resident operations
//  2. NoopRecorder - default implementation that does nothing
//  3. PrometheusRecorder - Prometheus adapter, served through HTTPHandler
//
// # Usage Pattern
//
// Components receive a Recorder through their constructors or options:
//
//	rec := metrics.NewPrometheusRecorder(reg)
//	h, err := host.New(cfg, host.WithRecorder(rec))
//
// The CLI activates the Prometheus recorder when --metrics-addr is given.
package metrics
