package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID      = "job_id"
	KeyJobStatus  = "job_status"
	KeyOp         = "op"
	KeyKind       = "kind"
	KeyHandle     = "handle"
	KeyPath       = "path"
	KeyWorker     = "worker"
	KeyWorkers    = "workers"
	KeyRefs       = "refs"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func JobStatus(s string) slog.Attr    { return slog.String(KeyJobStatus, s) }
func Op(name string) slog.Attr        { return slog.String(KeyOp, name) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Handle(h string) slog.Attr       { return slog.String(KeyHandle, h) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Worker(id string) slog.Attr      { return slog.String(KeyWorker, id) }
func Workers(n int) slog.Attr         { return slog.Int(KeyWorkers, n) }
func Refs(n int) slog.Attr            { return slog.Int(KeyRefs, n) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

// Duration renders d as milliseconds under KeyDurationMS.
func Duration(d time.Duration) slog.Attr {
	return DurationMS(float64(d) / float64(time.Millisecond))
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
