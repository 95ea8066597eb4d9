package repository

import (
	"errors"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/gitteh/internal/cache"
	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// SortMode selects the order in which a RevWalker yields commits.
type SortMode uint

const (
	// SortNone walks from each pushed commit depth first, parents in order.
	SortNone SortMode = 0
	// SortTime yields the ancestry of each pushed commit by committer time,
	// newest first.
	SortTime SortMode = 1 << 1
	// SortReverse reverses whichever order is selected.
	SortReverse SortMode = 1 << 2
)

// RevWalker is a proxy for a revision walk. Its walk state is native state
// and is only touched under the Session lock.
type RevWalker struct {
	cache.Object
	repo *Repository
	id   uint64

	pushed  []plumbing.Hash
	hidden  []plumbing.Hash
	mode    SortMode
	started bool
	iters   []object.CommitIter
	queue   []*object.Commit
	seen    map[plumbing.Hash]bool
}

func (r *Repository) publishWalker(id uint64) (*RevWalker, error) {
	return r.walkers.Resolve(id,
		func() *RevWalker { return &RevWalker{repo: r, id: id} },
		func(w *RevWalker) error {
			r.track(w, w.release)
			return nil
		})
}

func (r *Repository) walkerCall() call[uint64, *RevWalker] {
	return call[uint64, *RevWalker]{
		op:      "walker.create",
		work:    func(*git.Repository) (uint64, error) { return r.walkerSeq.Add(1), nil },
		publish: r.publishWalker,
	}
}

// CreateWalker creates a new, empty revision walker.
func (r *Repository) CreateWalker() (*RevWalker, error) { return r.walkerCall().run(r) }

// CreateWalkerAsync is the asynchronous form of CreateWalker.
func (r *Repository) CreateWalkerAsync(done func(*RevWalker, error)) error {
	return r.walkerCall().submit(r, r, done)
}

// release drops the walk's iterators. It runs from the cache, never under the
// Session lock.
func (w *RevWalker) release() {
	_ = w.repo.lock.Do(func() error {
		w.resetLocked()
		return nil
	})
}

// do runs fn under the Session lock after checking the walker is live.
func (w *RevWalker) do(fn func(root *git.Repository) error) error {
	_, err := native(w.repo, func(root *git.Repository) (struct{}, error) {
		if err := w.Check(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fn(root)
	})
	return err
}

// Push adds a commit whose ancestry is walked.
func (w *RevWalker) Push(id string) error { return w.mark("walker.push", id, false) }

// Hide excludes a commit and its ancestry from the walk.
func (w *RevWalker) Hide(id string) error { return w.mark("walker.hide", id, true) }

func (w *RevWalker) mark(op, id string, hide bool) error {
	h, err := parseID("id", id)
	if err != nil {
		return err
	}
	return w.do(func(root *git.Repository) error {
		if w.started {
			return gerrors.InvalidArgument("walker", "walk in progress; call Reset first").WithContext("op", op)
		}
		if _, err := object.GetCommit(root.Storer, h); err != nil {
			return classify(err, op, kindCommit, id)
		}
		if hide {
			w.hidden = append(w.hidden, h)
		} else {
			w.pushed = append(w.pushed, h)
		}
		return nil
	})
}

// Sort sets the walk order. Like Reset, it clears pushed and hidden commits
// when a walk is in progress.
func (w *RevWalker) Sort(mode SortMode) error {
	return w.do(func(*git.Repository) error {
		if w.started {
			w.resetLocked()
		}
		w.mode = mode
		return nil
	})
}

// Reset clears pushed and hidden commits and any walk in progress.
func (w *RevWalker) Reset() error {
	return w.do(func(*git.Repository) error {
		w.resetLocked()
		return nil
	})
}

func (w *RevWalker) resetLocked() {
	for _, it := range w.iters {
		it.Close()
	}
	w.iters, w.queue, w.seen = nil, nil, nil
	w.pushed, w.hidden = nil, nil
	w.started = false
}

func (w *RevWalker) nextCall() call[*object.Commit, *Commit] {
	return call[*object.Commit, *Commit]{
		op: "walker.next",
		work: func(root *git.Repository) (*object.Commit, error) {
			if err := w.Check(); err != nil {
				return nil, err
			}
			if !w.started {
				if err := w.startLocked(root); err != nil {
					return nil, err
				}
			}
			if w.mode&SortReverse != 0 {
				if len(w.queue) == 0 {
					return nil, nil
				}
				c := w.queue[len(w.queue)-1]
				w.queue = w.queue[:len(w.queue)-1]
				return c, nil
			}
			return w.pullLocked()
		},
		publish: func(c *object.Commit) (*Commit, error) {
			if c == nil {
				return nil, nil
			}
			return w.repo.publishCommit(c)
		},
	}
}

// Next returns the next commit of the walk, or (nil, nil) once it is
// exhausted.
func (w *RevWalker) Next() (*Commit, error) { return w.nextCall().run(w.repo) }

// NextAsync is the asynchronous form of Next. It is the one completion that
// may deliver neither a proxy nor an error: done receives (nil, nil) once the
// walk is exhausted, as Next returns.
func (w *RevWalker) NextAsync(done func(*Commit, error)) error {
	return w.nextCall().submit(w.repo, w, done)
}

func (w *RevWalker) startLocked(root *git.Repository) error {
	hidden := make(map[plumbing.Hash]bool)
	for _, h := range w.hidden {
		c, err := object.GetCommit(root.Storer, h)
		if err != nil {
			return classify(err, "walker.next", kindCommit, h.String())
		}
		err = object.NewCommitPreorderIter(c, nil, nil).ForEach(func(a *object.Commit) error {
			hidden[a.Hash] = true
			return nil
		})
		if err != nil {
			return classify(err, "walker.next", kindCommit, h.String())
		}
	}

	w.iters = w.iters[:0]
	for _, h := range w.pushed {
		c, err := object.GetCommit(root.Storer, h)
		if err != nil {
			return classify(err, "walker.next", kindCommit, h.String())
		}
		if w.mode&SortTime != 0 {
			w.iters = append(w.iters, object.NewCommitIterCTime(c, hidden, nil))
		} else {
			w.iters = append(w.iters, object.NewCommitPreorderIter(c, hidden, nil))
		}
	}
	w.seen = make(map[plumbing.Hash]bool)
	w.started = true

	if w.mode&SortReverse != 0 {
		for {
			c, err := w.pullLocked()
			if err != nil {
				return err
			}
			if c == nil {
				break
			}
			w.queue = append(w.queue, c)
		}
	}
	return nil
}

// pullLocked yields the next unseen commit across the pushed roots.
func (w *RevWalker) pullLocked() (*object.Commit, error) {
	for len(w.iters) > 0 {
		c, err := w.iters[0].Next()
		if errors.Is(err, io.EOF) {
			w.iters[0].Close()
			w.iters = w.iters[1:]
			continue
		}
		if err != nil {
			return nil, classify(err, "walker.next", kindWalker, "")
		}
		if w.seen[c.Hash] {
			continue
		}
		w.seen[c.Hash] = true
		return c, nil
	}
	return nil, nil
}
