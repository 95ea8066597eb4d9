package repository

import (
	"github.com/go-git/go-git/v5"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
	"git.home.luguber.info/inful/gitteh/internal/jobs"
	"git.home.luguber.info/inful/gitteh/internal/nativelock"
)

// call is one operation split into the native part, which runs under the
// Session lock (on the caller's goroutine or a worker), and the publish part,
// which resolves the result through a cache (on the caller's goroutine or the
// loop).
type call[N, P any] struct {
	op      string
	work    func(root *git.Repository) (N, error)
	publish func(N) (P, error)
}

func (c call[N, P]) run(r *Repository) (P, error) {
	n, err := native(r, c.work)
	if err != nil {
		var zero P
		return zero, err
	}
	return c.publish(n)
}

// submit queues the call on the scheduler. The returned error is only ever an
// invalid_argument error; every other outcome reaches done on the loop.
func (c call[N, P]) submit(r *Repository, pin jobs.Pin, done func(P, error)) error {
	if done == nil {
		return gerrors.MissingCallback(c.op)
	}
	if r.sched == nil {
		return gerrors.InvalidArgument("scheduler", "session was opened without a job scheduler").
			WithContext("op", c.op)
	}
	jobs.Go(r.sched, c.op, pin,
		func() (N, error) { return native(r, c.work) },
		func(n N, err error) {
			if err != nil {
				var zero P
				done(zero, err)
				return
			}
			done(c.publish(n))
		})
	return nil
}

// native runs fn with the root repository under the Session lock.
func native[N any](r *Repository, fn func(root *git.Repository) (N, error)) (N, error) {
	return nativelock.Call(r.lock, func() (N, error) {
		if r.root == nil {
			var zero N
			return zero, gerrors.StaleHandle(kindRepository)
		}
		return fn(r.root)
	})
}

// identity publishes a native result unchanged.
func identity[T any](v T) (T, error) { return v, nil }
