package cache

import (
	"fmt"
	"log/slog"
	"sync"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
	"git.home.luguber.info/inful/gitteh/internal/logfields"
	"git.home.luguber.info/inful/gitteh/internal/metrics"
)

// Cache maps native handles of one resource kind to their proxies.
//
// The mutex guards only the map and the reference counts. Initializers and
// release hooks run with it held and may take the native lock; code holding
// the native lock must never call into a Cache.
type Cache[K comparable, P Proxy] struct {
	kind     string
	recorder metrics.Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	entries  map[K]P
	detached map[*Object]P
	closed   bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	recorder metrics.Recorder
	logger   *slog.Logger
}

// WithRecorder records lookups and resident counts.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = metrics.OrNoop(r) }
}

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an empty cache for the given resource kind.
func New[K comparable, P Proxy](kind string, opts ...Option) *Cache[K, P] {
	o := options{recorder: metrics.NoopRecorder{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, P]{
		kind:     kind,
		recorder: o.recorder,
		logger:   o.logger,
		entries:  make(map[K]P),
		detached: make(map[*Object]P),
	}
}

// Kind returns the resource kind name.
func (c *Cache[K, P]) Kind() string { return c.kind }

// Resolve returns the live proxy registered for key, taking a reference on it.
// Otherwise it constructs a proxy, registers it and runs init to populate its
// metadata. If init fails the proxy is discarded, its registration removed and
// its release hook run; the error is returned unchanged.
func (c *Cache[K, P]) Resolve(key K, construct func() P, init func(P) error) (P, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero P
	if c.closed {
		return zero, gerrors.StaleHandle(c.kind)
	}

	if p, ok := c.entries[key]; ok {
		o := p.object()
		if o.Live() {
			o.refs++
			c.recorder.IncCacheLookup(c.kind, true)
			return p, nil
		}
		delete(c.entries, key)
	}
	c.recorder.IncCacheLookup(c.kind, false)
	return c.registerLocked(key, construct, init)
}

// Replace invalidates any proxy registered for key and registers a fresh one
// under a single hold of the cache lock; the returned proxy is always the one
// built by construct. It is used when the native resource behind key has been
// recreated.
func (c *Cache[K, P]) Replace(key K, construct func() P, init func(P) error) (P, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		var zero P
		return zero, gerrors.StaleHandle(c.kind)
	}
	if p, ok := c.entries[key]; ok {
		delete(c.entries, key)
		p.object().finish(Stale)
	}
	c.recorder.IncCacheLookup(c.kind, false)
	return c.registerLocked(key, construct, init)
}

// registerLocked constructs, registers and initializes a proxy for key.
// c.mu must be held and key must be unregistered.
func (c *Cache[K, P]) registerLocked(key K, construct func() P, init func(P) error) (P, error) {
	var zero P

	p := construct()
	o := p.object()
	o.owner = c
	o.key = key
	o.state.Store(int32(Uninitialized))
	c.entries[key] = p

	if init != nil {
		if err := init(p); err != nil {
			delete(c.entries, key)
			o.finish(Stale)
			c.logger.Debug("Proxy initialization failed",
				logfields.Kind(c.kind), logfields.Handle(fmt.Sprint(key)), logfields.Error(err))
			return zero, err
		}
	}

	o.refs = 1
	o.state.Store(int32(Live))
	c.recorder.SetCacheResident(c.kind, len(c.entries))
	return p, nil
}

// Lookup returns the live proxy for key without taking a reference.
func (c *Cache[K, P]) Lookup(key K) (P, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[key]
	if !ok || !p.object().Live() {
		var zero P
		return zero, false
	}
	return p, true
}

// Len returns the number of registered proxies, detached ones included.
func (c *Cache[K, P]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries) + len(c.detached)
}

// Invalidate marks the proxy for key stale and releases its native resource.
// Outstanding references stay valid pointers but every operation on them fails.
func (c *Cache[K, P]) Invalidate(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	p.object().finish(Stale)
	c.recorder.SetCacheResident(c.kind, len(c.entries))
	return true
}

// Forget detaches the proxy for key from the cache without invalidating it. The
// next Resolve for key builds a new proxy; the detached one keeps working on its
// snapshot until its last reference is dropped or the cache is closed.
func (c *Cache[K, P]) Forget(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.detached[p.object()] = p
	c.recorder.SetCacheResident(c.kind, len(c.entries))
	return true
}

// InvalidateAll marks every proxy stale, releases their native resources and
// closes the cache; later Resolve calls fail with a stale_handle error.
func (c *Cache[K, P]) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, p := range c.entries {
		delete(c.entries, key)
		p.object().finish(Stale)
		n++
	}
	for o := range c.detached {
		delete(c.detached, o)
		o.finish(Stale)
		n++
	}
	c.closed = true
	c.recorder.SetCacheResident(c.kind, 0)
	if n > 0 {
		c.logger.Debug("Invalidated cached proxies", logfields.Kind(c.kind), logfields.Count(n))
	}
	return n
}

func (c *Cache[K, P]) kindName() string { return c.kind }

func (c *Cache[K, P]) ref(o *Object) {
	c.mu.Lock()
	o.refs++
	c.mu.Unlock()
}

func (c *Cache[K, P]) refCount(o *Object) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return o.refs
}

func (c *Cache[K, P]) unref(o *Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.refs > 0 {
		o.refs--
	}
	if o.refs > 0 {
		return
	}

	if key, ok := o.key.(K); ok {
		if cur, found := c.entries[key]; found && cur.object() == o {
			delete(c.entries, key)
		}
	}
	delete(c.detached, o)
	o.finish(Released)
	c.recorder.SetCacheResident(c.kind, len(c.entries))
}
