package repository

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/gitteh/internal/cache"
	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
	"git.home.luguber.info/inful/gitteh/internal/jobs"
	"git.home.luguber.info/inful/gitteh/internal/logfields"
	"git.home.luguber.info/inful/gitteh/internal/metrics"
	"git.home.luguber.info/inful/gitteh/internal/nativelock"
)

const (
	kindRepository = "repository"
	kindCommit     = "commit"
	kindTree       = "tree"
	kindTag        = "tag"
	kindObject     = "object"
	kindReference  = "reference"
	kindIndex      = "index"
	kindIndexEntry = "index_entry"
	kindWalker     = "walker"
)

// indexKey is the only key of the index cache; a Session has one index.
const indexKey = "index"

// Repository is a Session: it owns the native lock, the root go-git
// repository and one proxy cache per resource kind.
type Repository struct {
	path   string
	bare   bool
	sched  *jobs.Scheduler
	lock   *nativelock.Lock
	logger *slog.Logger

	root   *git.Repository // guarded by lock
	closed atomic.Bool
	live   atomic.Int64
	pins   atomic.Int64

	commits *cache.Cache[plumbing.Hash, *Commit]
	trees   *cache.Cache[plumbing.Hash, *Tree]
	tags    *cache.Cache[plumbing.Hash, *Tag]
	objects *cache.Cache[plumbing.Hash, *RawObject]
	refs    *cache.Cache[plumbing.ReferenceName, *Reference]
	index   *cache.Cache[string, *Index]
	entries *cache.Cache[*index.Entry, *IndexEntry]
	walkers *cache.Cache[uint64, *RevWalker]

	walkerSeq atomic.Uint64
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder metrics.Recorder
	observer nativelock.Observer
}

// WithLogger sets the Session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder records lock and cache metrics.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = metrics.OrNoop(r) }
}

// WithLockObserver instruments the Session's native lock.
func WithLockObserver(obs nativelock.Observer) Option {
	return func(o *options) { o.observer = obs }
}

func newSession(sched *jobs.Scheduler, path string, opts []Option) *Repository {
	o := options{logger: slog.Default(), recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}

	lockOpts := []nativelock.Option{nativelock.WithRecorder(o.recorder)}
	if o.observer != nil {
		lockOpts = append(lockOpts, nativelock.WithObserver(o.observer))
	}
	cacheOpts := []cache.Option{cache.WithRecorder(o.recorder), cache.WithLogger(o.logger)}

	return &Repository{
		path:    path,
		sched:   sched,
		lock:    nativelock.New(lockOpts...),
		logger:  o.logger,
		commits: cache.New[plumbing.Hash, *Commit](kindCommit, cacheOpts...),
		trees:   cache.New[plumbing.Hash, *Tree](kindTree, cacheOpts...),
		tags:    cache.New[plumbing.Hash, *Tag](kindTag, cacheOpts...),
		objects: cache.New[plumbing.Hash, *RawObject](kindObject, cacheOpts...),
		refs:    cache.New[plumbing.ReferenceName, *Reference](kindReference, cacheOpts...),
		index:   cache.New[string, *Index](kindIndex, cacheOpts...),
		entries: cache.New[*index.Entry, *IndexEntry](kindIndexEntry, cacheOpts...),
		walkers: cache.New[uint64, *RevWalker](kindWalker, cacheOpts...),
	}
}

// opened is the result of the locked open/init work: the root handle and
// whether it has a worktree, both read under the native lock.
type opened struct {
	root *git.Repository
	bare bool
}

func inspect(root *git.Repository) opened {
	_, err := root.Worktree()
	return opened{root: root, bare: errors.Is(err, git.ErrIsBareRepository)}
}

// attach installs the opened root. It runs once, before the Session is
// handed to any caller, and makes no native calls.
func (r *Repository) attach(o opened) *Repository {
	r.root = o.root
	r.bare = o.bare
	r.logger.Info("Opened repository", logfields.Path(r.displayPath()), slog.Bool("bare", r.bare))
	return r
}

func openRoot(path string) (opened, error) {
	root, err := git.PlainOpen(path)
	if err != nil {
		return opened{}, classify(err, "open", kindRepository, path)
	}
	return inspect(root), nil
}

func initRoot(path string, bare bool) (opened, error) {
	root, err := git.PlainInit(path, bare)
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return openRoot(path)
	}
	if err != nil {
		return opened{}, classify(err, "init", kindRepository, path)
	}
	return inspect(root), nil
}

// Open opens the repository at path.
func Open(sched *jobs.Scheduler, path string, opts ...Option) (*Repository, error) {
	if path == "" {
		return nil, gerrors.InvalidArgument("path", "must not be empty")
	}
	r := newSession(sched, path, opts)
	root, err := nativelock.Call(r.lock, func() (opened, error) { return openRoot(path) })
	if err != nil {
		return nil, err
	}
	return r.attach(root), nil
}

// OpenAsync opens the repository at path on the scheduler.
func OpenAsync(sched *jobs.Scheduler, path string, done func(*Repository, error), opts ...Option) error {
	return startAsync(sched, "open", path, done, opts, func() (opened, error) { return openRoot(path) })
}

// Init creates a repository at path, or opens it if one already exists there.
func Init(sched *jobs.Scheduler, path string, bare bool, opts ...Option) (*Repository, error) {
	if path == "" {
		return nil, gerrors.InvalidArgument("path", "must not be empty")
	}
	r := newSession(sched, path, opts)
	root, err := nativelock.Call(r.lock, func() (opened, error) { return initRoot(path, bare) })
	if err != nil {
		return nil, err
	}
	return r.attach(root), nil
}

// InitAsync is the asynchronous form of Init.
func InitAsync(sched *jobs.Scheduler, path string, bare bool, done func(*Repository, error), opts ...Option) error {
	return startAsync(sched, "init", path, done, opts, func() (opened, error) { return initRoot(path, bare) })
}

// OpenMemory creates an empty repository held entirely in memory.
func OpenMemory(sched *jobs.Scheduler, opts ...Option) (*Repository, error) {
	r := newSession(sched, "", opts)
	root, err := nativelock.Call(r.lock, func() (opened, error) {
		root, err := git.Init(memory.NewStorage(), memfs.New())
		if err != nil {
			return opened{}, classify(err, "init", kindRepository, ":memory:")
		}
		return inspect(root), nil
	})
	if err != nil {
		return nil, err
	}
	return r.attach(root), nil
}

func startAsync(sched *jobs.Scheduler, op, path string, done func(*Repository, error), opts []Option, work func() (opened, error)) error {
	switch {
	case done == nil:
		return gerrors.MissingCallback(op)
	case sched == nil:
		return gerrors.InvalidArgument("scheduler", "must not be nil").WithContext("op", op)
	case path == "":
		return gerrors.InvalidArgument("path", "must not be empty")
	}
	r := newSession(sched, path, opts)
	jobs.Go(sched, op, nil,
		func() (opened, error) { return nativelock.Call(r.lock, work) },
		func(root opened, err error) {
			if err != nil {
				done(nil, err)
				return
			}
			done(r.attach(root), nil)
		})
	return nil
}

// Path returns the location the Session was opened at; empty for in-memory
// Sessions.
func (r *Repository) Path() string { return r.path }

// Bare reports whether the repository has no worktree.
func (r *Repository) Bare() bool { return r.bare }

// IndexPath returns the on-disk index file, or "" for in-memory Sessions.
func (r *Repository) IndexPath() string {
	switch {
	case r.path == "":
		return ""
	case r.bare:
		return filepath.Join(r.path, "index")
	default:
		return filepath.Join(r.path, git.GitDirName, "index")
	}
}

// Closed reports whether Close has been called.
func (r *Repository) Closed() bool { return r.closed.Load() }

// Dependents returns the number of proxies whose native resources are still
// held.
func (r *Repository) Dependents() int { return int(r.live.Load()) }

// Ref pins the Session for an in-flight job.
func (r *Repository) Ref() { r.pins.Add(1) }

// Unref drops a pin taken by Ref.
func (r *Repository) Unref() { r.pins.Add(-1) }

// Pins returns the number of in-flight jobs pinning the Session.
func (r *Repository) Pins() int { return int(r.pins.Load()) }

// track counts p as a live dependent until its release hook runs. extra, if
// non-nil, releases additional native state.
func (r *Repository) track(p interface{ OnRelease(func()) }, extra func()) {
	r.live.Add(1)
	p.OnRelease(func() {
		if extra != nil {
			extra()
		}
		r.live.Add(-1)
	})
}

type invalidator interface {
	InvalidateAll() int
}

// Close invalidates every dependent proxy, then releases the root repository.
// Later operations on the Session or any of its proxies fail with a
// stale_handle error. Close is idempotent.
func (r *Repository) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Entries before the index they point into, walkers last.
	invalidated := 0
	for _, c := range []invalidator{r.entries, r.index, r.commits, r.trees, r.tags, r.objects, r.refs, r.walkers} {
		invalidated += c.InvalidateAll()
	}

	err := r.lock.Do(func() error {
		root := r.root
		r.root = nil
		if root == nil {
			return nil
		}
		if c, ok := root.Storer.(io.Closer); ok {
			return c.Close()
		}
		return nil
	})

	r.logger.Info("Closed repository",
		logfields.Path(r.displayPath()),
		logfields.Count(invalidated),
		logfields.Error(err))
	if err != nil {
		return gerrors.NativeFailure("close", err)
	}
	return nil
}

func (r *Repository) displayPath() string {
	if r.path == "" {
		return ":memory:"
	}
	return r.path
}

// RefreshIndex detaches the current Index proxy so the next Index call loads
// the index again. Holders of the old proxy keep its snapshot. It reports
// whether an Index proxy was resident.
func (r *Repository) RefreshIndex() bool {
	forgot := r.index.Forget(indexKey)
	if forgot {
		r.logger.Debug("Index snapshot detached", logfields.Path(r.displayPath()))
	}
	return forgot
}
