package repository

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/gitteh/internal/cache"
	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// lookupByID builds the get-or-create call for a content-addressed object.
func lookupByID[N any, P any](op, kind, id string, get func(root *git.Repository, h plumbing.Hash) (N, error), publish func(N) (P, error)) (call[N, P], error) {
	h, err := parseID("id", id)
	if err != nil {
		return call[N, P]{}, err
	}
	return call[N, P]{
		op: op,
		work: func(root *git.Repository) (N, error) {
			n, err := get(root, h)
			return n, classify(err, op, kind, id)
		},
		publish: publish,
	}, nil
}

// Commit is a proxy for a commit object.
type Commit struct {
	cache.Object
	repo   *Repository
	native *object.Commit
}

func (r *Repository) publishCommit(n *object.Commit) (*Commit, error) {
	return r.commits.Resolve(n.Hash,
		func() *Commit { return &Commit{repo: r} },
		func(c *Commit) error {
			c.native = n
			r.track(c, nil)
			return nil
		})
}

func getCommit(root *git.Repository, h plumbing.Hash) (*object.Commit, error) {
	return object.GetCommit(root.Storer, h)
}

// Commit returns the proxy for the commit with the given id.
func (r *Repository) Commit(id string) (*Commit, error) {
	c, err := lookupByID("commit", kindCommit, id, getCommit, r.publishCommit)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// CommitAsync is the asynchronous form of Commit.
func (r *Repository) CommitAsync(id string, done func(*Commit, error)) error {
	c, err := lookupByID("commit", kindCommit, id, getCommit, r.publishCommit)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

func (c *Commit) ID() string                  { return c.native.Hash.String() }
func (c *Commit) Message() string             { return c.native.Message }
func (c *Commit) Author() object.Signature    { return c.native.Author }
func (c *Commit) Committer() object.Signature { return c.native.Committer }
func (c *Commit) TreeID() string              { return c.native.TreeHash.String() }
func (c *Commit) ParentCount() int            { return len(c.native.ParentHashes) }

// ParentID returns the id of the i-th parent.
func (c *Commit) ParentID(i int) (string, error) {
	if i < 0 || i >= len(c.native.ParentHashes) {
		return "", gerrors.NotFound("parent", fmt.Sprint(i))
	}
	return c.native.ParentHashes[i].String(), nil
}

func (c *Commit) treeCall() call[*object.Tree, *Tree] {
	return call[*object.Tree, *Tree]{
		op: "commit.tree",
		work: func(root *git.Repository) (*object.Tree, error) {
			if err := c.Check(); err != nil {
				return nil, err
			}
			t, err := object.GetTree(root.Storer, c.native.TreeHash)
			return t, classify(err, "commit.tree", kindTree, c.native.TreeHash.String())
		},
		publish: c.repo.publishTree,
	}
}

// Tree returns the commit's root tree.
func (c *Commit) Tree() (*Tree, error) { return c.treeCall().run(c.repo) }

// TreeAsync is the asynchronous form of Tree.
func (c *Commit) TreeAsync(done func(*Tree, error)) error {
	return c.treeCall().submit(c.repo, c, done)
}

func (c *Commit) parentCall(i int) call[*object.Commit, *Commit] {
	return call[*object.Commit, *Commit]{
		op: "commit.parent",
		work: func(root *git.Repository) (*object.Commit, error) {
			if err := c.Check(); err != nil {
				return nil, err
			}
			id, err := c.ParentID(i)
			if err != nil {
				return nil, err
			}
			p, err := object.GetCommit(root.Storer, plumbing.NewHash(id))
			return p, classify(err, "commit.parent", kindCommit, id)
		},
		publish: c.repo.publishCommit,
	}
}

// Parent returns the i-th parent commit.
func (c *Commit) Parent(i int) (*Commit, error) { return c.parentCall(i).run(c.repo) }

// ParentAsync is the asynchronous form of Parent.
func (c *Commit) ParentAsync(i int, done func(*Commit, error)) error {
	return c.parentCall(i).submit(c.repo, c, done)
}

// TreeEntry is one entry of a tree.
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	ID   string
}

// Tree is a proxy for a tree object.
type Tree struct {
	cache.Object
	repo   *Repository
	native *object.Tree
}

func (r *Repository) publishTree(n *object.Tree) (*Tree, error) {
	return r.trees.Resolve(n.Hash,
		func() *Tree { return &Tree{repo: r} },
		func(t *Tree) error {
			t.native = n
			r.track(t, nil)
			return nil
		})
}

func getTree(root *git.Repository, h plumbing.Hash) (*object.Tree, error) {
	return object.GetTree(root.Storer, h)
}

// Tree returns the proxy for the tree with the given id.
func (r *Repository) Tree(id string) (*Tree, error) {
	c, err := lookupByID("tree", kindTree, id, getTree, r.publishTree)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// TreeAsync is the asynchronous form of Tree.
func (r *Repository) TreeAsync(id string, done func(*Tree, error)) error {
	c, err := lookupByID("tree", kindTree, id, getTree, r.publishTree)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

func (t *Tree) ID() string      { return t.native.Hash.String() }
func (t *Tree) EntryCount() int { return len(t.native.Entries) }

// Entry returns the i-th entry in tree order.
func (t *Tree) Entry(i int) (TreeEntry, error) {
	if err := t.Check(); err != nil {
		return TreeEntry{}, err
	}
	if i < 0 || i >= len(t.native.Entries) {
		return TreeEntry{}, gerrors.NotFound("tree entry", fmt.Sprint(i))
	}
	return toTreeEntry(t.native.Entries[i]), nil
}

// EntryByName returns the entry with the given name.
func (t *Tree) EntryByName(name string) (TreeEntry, error) {
	if err := t.Check(); err != nil {
		return TreeEntry{}, err
	}
	i := slices.IndexFunc(t.native.Entries, func(e object.TreeEntry) bool { return e.Name == name })
	if i < 0 {
		return TreeEntry{}, gerrors.NotFound("tree entry", name)
	}
	return toTreeEntry(t.native.Entries[i]), nil
}

func toTreeEntry(e object.TreeEntry) TreeEntry {
	return TreeEntry{Name: e.Name, Mode: e.Mode, ID: e.Hash.String()}
}

// Tag is a proxy for an annotated tag object.
type Tag struct {
	cache.Object
	repo   *Repository
	native *object.Tag
}

func (r *Repository) publishTag(n *object.Tag) (*Tag, error) {
	return r.tags.Resolve(n.Hash,
		func() *Tag { return &Tag{repo: r} },
		func(t *Tag) error {
			t.native = n
			r.track(t, nil)
			return nil
		})
}

func getTag(root *git.Repository, h plumbing.Hash) (*object.Tag, error) {
	return object.GetTag(root.Storer, h)
}

// Tag returns the proxy for the annotated tag with the given id.
func (r *Repository) Tag(id string) (*Tag, error) {
	c, err := lookupByID("tag", kindTag, id, getTag, r.publishTag)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// TagAsync is the asynchronous form of Tag.
func (r *Repository) TagAsync(id string, done func(*Tag, error)) error {
	c, err := lookupByID("tag", kindTag, id, getTag, r.publishTag)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

func (t *Tag) ID() string               { return t.native.Hash.String() }
func (t *Tag) Name() string             { return t.native.Name }
func (t *Tag) Message() string          { return t.native.Message }
func (t *Tag) Tagger() object.Signature { return t.native.Tagger }
func (t *Tag) TargetID() string         { return t.native.Target.String() }
func (t *Tag) TargetType() string       { return t.native.TargetType.String() }

// rawData is an object read out of the store under the lock.
type rawData struct {
	id   plumbing.Hash
	typ  plumbing.ObjectType
	data []byte
}

// RawObject is a proxy for an object of any type with its contents.
type RawObject struct {
	cache.Object
	repo   *Repository
	native rawData
}

func (r *Repository) publishRaw(n rawData) (*RawObject, error) {
	return r.objects.Resolve(n.id,
		func() *RawObject { return &RawObject{repo: r} },
		func(o *RawObject) error {
			o.native = n
			r.track(o, nil)
			return nil
		})
}

func readRaw(root *git.Repository, h plumbing.Hash) (rawData, error) {
	obj, err := root.Storer.EncodedObject(plumbing.AnyObject, h)
	if err != nil {
		return rawData{}, err
	}
	rd, err := obj.Reader()
	if err != nil {
		return rawData{}, err
	}
	defer func() { _ = rd.Close() }()
	data, err := io.ReadAll(rd)
	if err != nil {
		return rawData{}, err
	}
	return rawData{id: obj.Hash(), typ: obj.Type(), data: data}, nil
}

// RawObject returns the proxy for the object with the given id, whatever its
// type.
func (r *Repository) RawObject(id string) (*RawObject, error) {
	c, err := lookupByID("object", kindObject, id, readRaw, r.publishRaw)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// RawObjectAsync is the asynchronous form of RawObject.
func (r *Repository) RawObjectAsync(id string, done func(*RawObject, error)) error {
	c, err := lookupByID("object", kindObject, id, readRaw, r.publishRaw)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

func (o *RawObject) ID() string   { return o.native.id.String() }
func (o *RawObject) Type() string { return o.native.typ.String() }
func (o *RawObject) Size() int    { return len(o.native.data) }

// Data returns a copy of the object's contents.
func (o *RawObject) Data() ([]byte, error) {
	if err := o.Check(); err != nil {
		return nil, err
	}
	return slices.Clone(o.native.data), nil
}

func hasObject(root *git.Repository, h plumbing.Hash) (bool, error) {
	err := root.Storer.HasEncodedObject(h)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Exists reports whether an object with the given id is stored.
func (r *Repository) Exists(id string) (bool, error) {
	c, err := lookupByID("exists", kindObject, id, hasObject, identity[bool])
	if err != nil {
		return false, err
	}
	return c.run(r)
}

// ExistsAsync is the asynchronous form of Exists.
func (r *Repository) ExistsAsync(id string, done func(bool, error)) error {
	c, err := lookupByID("exists", kindObject, id, hasObject, identity[bool])
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}
