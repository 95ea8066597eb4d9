// Package host assembles the runtime a Session needs from configuration: the
// loop that delivers completions, the worker pool, the metrics recorder and
// endpoint, and index revalidation for every opened repository.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/gitteh/internal/config"
	"git.home.luguber.info/inful/gitteh/internal/jobs"
	"git.home.luguber.info/inful/gitteh/internal/logfields"
	"git.home.luguber.info/inful/gitteh/internal/metrics"
	"git.home.luguber.info/inful/gitteh/internal/repository"
	"git.home.luguber.info/inful/gitteh/internal/revalidate"
)

// stopper is a running revalidation source.
type stopper interface {
	Stop() error
}

// source is a revalidation source that has not been started yet.
type source interface {
	stopper
	Start(ctx context.Context) error
}

// Host owns the loop, the scheduler and every repository opened through it.
type Host struct {
	cfg      *config.Config
	logger   *slog.Logger
	loop     *jobs.Loop
	sched    *jobs.Scheduler
	recorder metrics.Recorder
	registry *prom.Registry

	newPoller func(path string, interval time.Duration, notify func()) (source, error)

	mu       sync.Mutex
	started  bool
	repos    []*repository.Repository
	sources  []stopper
	server   *http.Server
	listener net.Listener
}

// New builds a host from cfg. Nothing runs until Start.
func New(cfg *config.Config, logger *slog.Logger) *Host {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Host{cfg: cfg, logger: logger, recorder: metrics.NoopRecorder{}}
	if cfg.Metrics.Enabled {
		h.registry = prom.NewRegistry()
		h.registry.MustRegister(
			promcollect.NewGoCollector(),
			promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
		)
		h.recorder = metrics.NewPrometheusRecorder(h.registry)
	}

	h.newPoller = func(path string, interval time.Duration, notify func()) (source, error) {
		return revalidate.NewPoller(path, interval, notify, h.logger)
	}

	h.loop = jobs.NewLoop(jobs.WithLoopLogger(logger))
	h.sched = jobs.NewScheduler(h.loop,
		jobs.WithWorkers(cfg.Runtime.Workers),
		jobs.WithRecorder(h.recorder),
		jobs.WithLogger(logger))
	return h
}

// Loop returns the completion loop.
func (h *Host) Loop() *jobs.Loop { return h.loop }

// Scheduler returns the worker pool.
func (h *Host) Scheduler() *jobs.Scheduler { return h.sched }

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (h *Host) Registry() *prom.Registry { return h.registry }

// Start launches the workers and, when enabled, the metrics endpoint.
func (h *Host) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}

	if h.cfg.Metrics.Enabled {
		ln, err := net.Listen("tcp", h.cfg.Metrics.Address)
		if err != nil {
			return fmt.Errorf("metrics listener on %s: %w", h.cfg.Metrics.Address, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(h.registry))
		h.listener = ln
		h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.logger.Error("Metrics server failed", logfields.Error(err))
			}
		}()
		h.logger.Info("Serving metrics", slog.String("address", ln.Addr().String()))
	}

	h.sched.Start()
	h.started = true
	return nil
}

// MetricsAddr returns the bound metrics address, or "" when not serving.
func (h *Host) MetricsAddr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *Host) sessionOptions() []repository.Option {
	return []repository.Option{
		repository.WithLogger(h.logger),
		repository.WithRecorder(h.recorder),
	}
}

// Open opens a repository and attaches revalidation to it.
func (h *Host) Open(path string) (*repository.Repository, error) {
	repo, err := repository.Open(h.sched, path, h.sessionOptions()...)
	if err != nil {
		return nil, err
	}
	if err := h.adopt(repo); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

// OpenAsync is the asynchronous form of Open; done runs on the loop.
func (h *Host) OpenAsync(path string, done func(*repository.Repository, error)) error {
	if done == nil {
		return repository.OpenAsync(h.sched, path, nil)
	}
	return repository.OpenAsync(h.sched, path, func(repo *repository.Repository, err error) {
		if err == nil {
			if err = h.adopt(repo); err != nil {
				_ = repo.Close()
				repo = nil
			}
		}
		done(repo, err)
	}, h.sessionOptions()...)
}

// Init creates (or reopens) a repository and attaches revalidation to it.
func (h *Host) Init(path string, bare bool) (*repository.Repository, error) {
	repo, err := repository.Init(h.sched, path, bare, h.sessionOptions()...)
	if err != nil {
		return nil, err
	}
	if err := h.adopt(repo); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

// InitAsync is the asynchronous form of Init; done runs on the loop.
func (h *Host) InitAsync(path string, bare bool, done func(*repository.Repository, error)) error {
	if done == nil {
		return repository.InitAsync(h.sched, path, bare, nil)
	}
	return repository.InitAsync(h.sched, path, bare, func(repo *repository.Repository, err error) {
		if err == nil {
			if err = h.adopt(repo); err != nil {
				_ = repo.Close()
				repo = nil
			}
		}
		done(repo, err)
	}, h.sessionOptions()...)
}

// adopt starts repo's revalidation sources and tracks it for Shutdown. On
// failure every source started here is stopped and repo is not tracked. A
// detected index change detaches the Index proxy on the loop.
func (h *Host) adopt(repo *repository.Repository) error {
	sources, err := h.startSources(repo)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources = append(h.sources, sources...)
	h.repos = append(h.repos, repo)
	return nil
}

func (h *Host) startSources(repo *repository.Repository) (started []stopper, err error) {
	rc := h.cfg.Revalidate
	indexPath := repo.IndexPath()
	if !rc.Enabled() || indexPath == "" {
		return nil, nil
	}
	defer func() {
		if err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			started = nil
		}
	}()

	notify := func() {
		h.loop.Post(func() {
			if !repo.Closed() {
				repo.RefreshIndex()
			}
		})
	}

	if rc.Watch {
		w, err := revalidate.NewWatcher(indexPath, notify,
			revalidate.WithDebounce(rc.Debounce),
			revalidate.WithWatcherLogger(h.logger))
		if err != nil {
			return started, err
		}
		started = append(started, w)
		if err := w.Start(context.Background()); err != nil {
			return started, err
		}
	}
	if rc.Interval > 0 {
		p, err := h.newPoller(indexPath, rc.Interval, notify)
		if err != nil {
			return started, err
		}
		started = append(started, p)
		if err := p.Start(context.Background()); err != nil {
			return started, err
		}
	}
	return started, nil
}

// Run drives the loop until ctx is done.
func (h *Host) Run(ctx context.Context) error { return h.loop.Run(ctx) }

// RunUntilIdle drives the loop until every submitted job has completed.
func (h *Host) RunUntilIdle(ctx context.Context) error { return h.loop.RunUntilIdle(ctx) }

// Shutdown stops revalidation, drains the scheduler within the configured
// timeout, closes every repository and stops the metrics endpoint. Completions
// of drained jobs stay queued on the loop.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	sources, repos := h.sources, h.repos
	h.sources, h.repos = nil, nil
	server := h.server
	h.server, h.listener = nil, nil
	h.mu.Unlock()

	var errs []error
	for _, s := range sources {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, h.cfg.Runtime.ShutdownTimeout)
	defer cancel()
	if err := h.sched.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}

	for _, repo := range repos {
		if err := repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}

	h.logger.Info("Host stopped", logfields.Count(len(repos)))
	return errors.Join(errs...)
}
