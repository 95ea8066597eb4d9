package repository

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"

	"git.home.luguber.info/inful/gitteh/internal/cache"
	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// Index is a proxy for the repository index. Its entries and entry count are
// a snapshot of the index as loaded.
type Index struct {
	cache.Object
	repo    *Repository
	native  *index.Index
	count   int
	version uint32
}

// indexRead is a loaded index with the metadata read under the native lock.
type indexRead struct {
	native  *index.Index
	count   int
	version uint32
}

func loadIndex(root *git.Repository) (indexRead, error) {
	idx, err := root.Storer.Index()
	if errors.Is(err, os.ErrNotExist) {
		idx, err = &index.Index{Version: 2}, nil
	}
	if err != nil {
		return indexRead{}, classify(err, "index", kindIndex, indexKey)
	}
	return indexRead{native: idx, count: len(idx.Entries), version: idx.Version}, nil
}

func (r *Repository) publishIndex(n indexRead) (*Index, error) {
	return r.index.Resolve(indexKey,
		func() *Index { return &Index{repo: r} },
		func(ix *Index) error {
			ix.native = n.native
			ix.count = n.count
			ix.version = n.version
			r.track(ix, nil)
			return nil
		})
}

func (r *Repository) indexCall() call[indexRead, *Index] {
	return call[indexRead, *Index]{op: "index", work: loadIndex, publish: r.publishIndex}
}

// Index returns the Session's index proxy, loading the index if no proxy is
// resident.
func (r *Repository) Index() (*Index, error) { return r.indexCall().run(r) }

// IndexAsync is the asynchronous form of Index.
func (r *Repository) IndexAsync(done func(*Index, error)) error {
	return r.indexCall().submit(r, r, done)
}

// EntryCount returns the number of entries at load time.
func (ix *Index) EntryCount() int { return ix.count }

// Version returns the index format version.
func (ix *Index) Version() uint32 { return ix.version }

// entryRead is an index entry copied under the native lock. handle is the
// native pointer, used only as the cache key.
type entryRead struct {
	handle *index.Entry
	entry  index.Entry
}

func readEntry(e *index.Entry) entryRead {
	return entryRead{handle: e, entry: *e}
}

func (ix *Index) entryCall(i int) call[entryRead, *IndexEntry] {
	return call[entryRead, *IndexEntry]{
		op: "index.entry",
		work: func(*git.Repository) (entryRead, error) {
			if err := ix.Check(); err != nil {
				return entryRead{}, err
			}
			if i < 0 || i >= ix.count {
				return entryRead{}, gerrors.NotFound("index entry", fmt.Sprint(i)).
					WithContext("entry_count", ix.count)
			}
			return readEntry(ix.native.Entries[i]), nil
		},
		publish: ix.publishEntry,
	}
}

// Entry returns the entry at position i; positions outside [0, EntryCount)
// fail with not_found.
func (ix *Index) Entry(i int) (*IndexEntry, error) { return ix.entryCall(i).run(ix.repo) }

// EntryAsync is the asynchronous form of Entry.
func (ix *Index) EntryAsync(i int, done func(*IndexEntry, error)) error {
	return ix.entryCall(i).submit(ix.repo, ix, done)
}

func (ix *Index) findCall(path string) call[entryRead, *IndexEntry] {
	return call[entryRead, *IndexEntry]{
		op: "index.find",
		work: func(*git.Repository) (entryRead, error) {
			if err := ix.Check(); err != nil {
				return entryRead{}, err
			}
			e, err := ix.native.Entry(path)
			if err != nil {
				return entryRead{}, classify(err, "index.find", kindIndexEntry, path)
			}
			return readEntry(e), nil
		},
		publish: ix.publishEntry,
	}
}

// FindEntry returns the stage 0 entry for path.
func (ix *Index) FindEntry(path string) (*IndexEntry, error) {
	if path == "" {
		return nil, gerrors.InvalidArgument("path", "must not be empty")
	}
	return ix.findCall(path).run(ix.repo)
}

// FindEntryAsync is the asynchronous form of FindEntry.
func (ix *Index) FindEntryAsync(path string, done func(*IndexEntry, error)) error {
	if path == "" {
		return gerrors.InvalidArgument("path", "must not be empty")
	}
	return ix.findCall(path).submit(ix.repo, ix, done)
}

// IndexEntry is a proxy for one entry of an Index snapshot. It keeps its
// Index alive.
type IndexEntry struct {
	cache.Object
	index  *Index
	native index.Entry
}

func (ix *Index) publishEntry(e entryRead) (*IndexEntry, error) {
	return ix.repo.entries.Resolve(e.handle,
		func() *IndexEntry { return &IndexEntry{index: ix} },
		func(w *IndexEntry) error {
			if err := ix.Check(); err != nil {
				return err
			}
			w.native = e.entry
			ix.Ref()
			ix.repo.track(w, ix.Unref)
			return nil
		})
}

func (w *IndexEntry) Index() *Index           { return w.index }
func (w *IndexEntry) Path() string            { return w.native.Name }
func (w *IndexEntry) ID() string              { return w.native.Hash.String() }
func (w *IndexEntry) Mode() filemode.FileMode { return w.native.Mode }
func (w *IndexEntry) Size() uint32            { return w.native.Size }
func (w *IndexEntry) Stage() int              { return int(w.native.Stage) }
func (w *IndexEntry) ModifiedAt() time.Time   { return w.native.ModifiedAt }
func (w *IndexEntry) CreatedAt() time.Time    { return w.native.CreatedAt }
