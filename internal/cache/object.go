package cache

import (
	"sync/atomic"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// State is the lifecycle state of a proxy.
type State int32

const (
	Uninitialized State = iota
	Live
	Stale
	Released
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Live:
		return "live"
	case Stale:
		return "stale"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// owner is implemented by Cache; it guards refs and performs release.
type owner interface {
	ref(o *Object)
	unref(o *Object)
	refCount(o *Object) int
	kindName() string
}

// Object is the embedded base of every proxy.
type Object struct {
	state   atomic.Int32
	refs    int // guarded by the owning cache
	owner   owner
	key     any
	release func()
}

// Proxy is satisfied by any type embedding Object.
type Proxy interface {
	object() *Object
}

func (o *Object) object() *Object { return o }

// State returns the current lifecycle state.
func (o *Object) State() State { return State(o.state.Load()) }

// Live reports whether the proxy may still be used.
func (o *Object) Live() bool { return o.State() == Live }

// Kind returns the resource kind of the owning cache.
func (o *Object) Kind() string {
	if o.owner == nil {
		return "object"
	}
	return o.owner.kindName()
}

// Check returns a stale_handle error unless the proxy is live.
func (o *Object) Check() error {
	if o.Live() {
		return nil
	}
	return gerrors.StaleHandle(o.Kind()).WithContext("state", o.State().String())
}

// OnRelease sets the hook that frees the native resource. It is meant to be
// called from an initializer; the hook runs exactly once, when the proxy is
// released, invalidated or discarded after a failed initialization.
func (o *Object) OnRelease(fn func()) { o.release = fn }

// Ref takes a reference. Jobs use it to pin the proxy while in flight.
func (o *Object) Ref() {
	if o.owner != nil {
		o.owner.ref(o)
	}
}

// Unref drops a reference taken by Ref or returned by Resolve.
func (o *Object) Unref() {
	if o.owner != nil {
		o.owner.unref(o)
	}
}

// Release drops the caller's reference. It is the host-facing name for Unref.
func (o *Object) Release() { o.Unref() }

// Refs returns the current reference count.
func (o *Object) Refs() int {
	if o.owner == nil {
		return 0
	}
	return o.owner.refCount(o)
}

// finish moves the object into a terminal state and runs the release hook once.
// Callers hold the owning cache's mutex.
func (o *Object) finish(s State) {
	for {
		prev := o.State()
		if prev == Stale || prev == Released {
			return
		}
		if o.state.CompareAndSwap(int32(prev), int32(s)) {
			break
		}
	}
	if fn := o.release; fn != nil {
		o.release = nil
		fn()
	}
}
