package revalidate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/gitteh/internal/logfields"
)

// fileStamp is what the poller compares between checks.
type fileStamp struct {
	exists  bool
	size    int64
	modTime time.Time
}

func (s fileStamp) differs(o fileStamp) bool {
	return s.exists != o.exists || s.size != o.size || !s.modTime.Equal(o.modTime)
}

// Poller stats one file on a fixed interval and calls notify when its size or
// modification time changes. It backs up Watcher on filesystems without
// change notification.
type Poller struct {
	path     string
	interval time.Duration
	notify   func()
	logger   *slog.Logger

	scheduler gocron.Scheduler

	mu       sync.Mutex
	last     fileStamp
	baseline bool
}

// NewPoller creates a poller for path. Nothing runs until Start.
func NewPoller(path string, interval time.Duration, notify func(), logger *slog.Logger) (*Poller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Poller{
		path:      path,
		interval:  interval,
		notify:    notify,
		logger:    logger,
		scheduler: s,
	}, nil
}

// Start records the current state of the file and schedules periodic checks.
func (p *Poller) Start(_ context.Context) error {
	p.Check()
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.Check),
		gocron.WithName("index-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create index poll job: %w", err)
	}
	p.logger.Info("Starting index poller", logfields.Path(p.path), logfields.Duration(p.interval))
	p.scheduler.Start()
	return nil
}

// Stop shuts the schedule down and waits for a running check.
func (p *Poller) Stop() error {
	p.logger.Info("Stopping index poller", logfields.Path(p.path))
	return p.scheduler.Shutdown()
}

// Check compares the file against the previous check and reports whether it
// changed. The first check only records a baseline.
func (p *Poller) Check() bool {
	cur, err := stat(p.path)
	if err != nil {
		p.logger.Warn("Index poll failed", logfields.Path(p.path), logfields.Error(err))
		return false
	}

	p.mu.Lock()
	changed := p.baseline && cur.differs(p.last)
	p.last, p.baseline = cur, true
	p.mu.Unlock()

	if changed {
		p.logger.Debug("Index change detected by poll", logfields.Path(p.path))
		p.notify()
	}
	return changed
}

func stat(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileStamp{}, nil
	}
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{exists: true, size: info.Size(), modTime: info.ModTime()}, nil
}
