package repository

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// Objects are content addressed: creating an object identical to a resident
// one yields the resident proxy.

// CommitOptions describes a commit to create.
type CommitOptions struct {
	Tree    string
	Parents []string
	Author  object.Signature
	// Committer defaults to Author.
	Committer object.Signature
	Message   string
	// UpdateRef, when set, is pointed at the new commit. A symbolic reference
	// such as HEAD updates the reference it points at.
	UpdateRef string
}

type createdCommit struct {
	commit *object.Commit
	ref    plumbing.ReferenceName
}

func (r *Repository) commitCreateCall(opts CommitOptions) (call[createdCommit, *Commit], error) {
	var zero call[createdCommit, *Commit]
	tree, err := parseID("tree", opts.Tree)
	if err != nil {
		return zero, err
	}
	parents := make([]plumbing.Hash, 0, len(opts.Parents))
	for i, p := range opts.Parents {
		h, err := parseID(fmt.Sprintf("parents[%d]", i), p)
		if err != nil {
			return zero, err
		}
		parents = append(parents, h)
	}
	if opts.Author.Name == "" {
		return zero, gerrors.InvalidArgument("author", "name must not be empty")
	}
	var updateRef plumbing.ReferenceName
	if opts.UpdateRef != "" {
		if updateRef, err = parseRefName("update_ref", opts.UpdateRef); err != nil {
			return zero, err
		}
	}

	author := opts.Author
	if author.When.IsZero() {
		author.When = time.Now()
	}
	committer := opts.Committer
	if committer.Name == "" {
		committer = author
	}

	const op = "commit.create"
	return call[createdCommit, *Commit]{
		op: op,
		work: func(root *git.Repository) (createdCommit, error) {
			if _, err := object.GetTree(root.Storer, tree); err != nil {
				return createdCommit{}, classify(err, op, kindTree, opts.Tree)
			}
			for _, p := range parents {
				if _, err := object.GetCommit(root.Storer, p); err != nil {
					return createdCommit{}, classify(err, op, kindCommit, p.String())
				}
			}

			c := &object.Commit{
				Author:       author,
				Committer:    committer,
				Message:      opts.Message,
				TreeHash:     tree,
				ParentHashes: parents,
			}
			h, err := storeObject(root, c)
			if err != nil {
				return createdCommit{}, classify(err, op, kindCommit, "")
			}

			target := updateRef
			if target != "" {
				if cur, err := root.Storer.Reference(target); err == nil && cur.Type() == plumbing.SymbolicReference {
					target = cur.Target()
				}
				if err := root.Storer.SetReference(plumbing.NewHashReference(target, h)); err != nil {
					return createdCommit{}, classify(err, op, kindReference, target.String())
				}
			}

			stored, err := object.GetCommit(root.Storer, h)
			return createdCommit{commit: stored, ref: target}, classify(err, op, kindCommit, h.String())
		},
		publish: func(n createdCommit) (*Commit, error) {
			if n.ref != "" {
				r.refs.Invalidate(n.ref)
			}
			return r.publishCommit(n.commit)
		},
	}, nil
}

// CreateCommit writes a new commit object.
func (r *Repository) CreateCommit(opts CommitOptions) (*Commit, error) {
	c, err := r.commitCreateCall(opts)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// CreateCommitAsync is the asynchronous form of CreateCommit.
func (r *Repository) CreateCommitAsync(opts CommitOptions, done func(*Commit, error)) error {
	c, err := r.commitCreateCall(opts)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

// encoder is implemented by go-git object types.
type encoder interface {
	Encode(plumbing.EncodedObject) error
}

func storeObject(root *git.Repository, o encoder) (plumbing.Hash, error) {
	obj := root.Storer.NewEncodedObject()
	if err := o.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return root.Storer.SetEncodedObject(obj)
}

// treeOrder sorts entries the way git does: names compare bytewise, with a
// trailing slash on directories.
func treeOrder(entries []object.TreeEntry) {
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	slices.SortFunc(entries, func(a, b object.TreeEntry) int { return strings.Compare(key(a), key(b)) })
}

func (r *Repository) treeCreateCall(entries []TreeEntry) (call[*object.Tree, *Tree], error) {
	var zero call[*object.Tree, *Tree]
	native := make([]object.TreeEntry, 0, len(entries))
	names := make(map[string]bool, len(entries))
	for i, e := range entries {
		arg := fmt.Sprintf("entries[%d]", i)
		switch {
		case e.Name == "" || e.Name == "." || e.Name == "..":
			return zero, gerrors.InvalidArgument(arg, "invalid entry name")
		case strings.ContainsAny(e.Name, "/\x00"):
			return zero, gerrors.InvalidArgument(arg, "entry name must not contain a slash")
		case names[e.Name]:
			return zero, gerrors.InvalidArgument(arg, "duplicate entry name "+e.Name)
		case e.Mode == filemode.Empty:
			return zero, gerrors.InvalidArgument(arg, "mode is required")
		}
		h, err := parseID(arg+".id", e.ID)
		if err != nil {
			return zero, err
		}
		names[e.Name] = true
		native = append(native, object.TreeEntry{Name: e.Name, Mode: e.Mode, Hash: h})
	}
	treeOrder(native)

	const op = "tree.create"
	return call[*object.Tree, *Tree]{
		op: op,
		work: func(root *git.Repository) (*object.Tree, error) {
			for _, e := range native {
				if err := root.Storer.HasEncodedObject(e.Hash); err != nil {
					return nil, classify(err, op, kindObject, e.Hash.String())
				}
			}
			h, err := storeObject(root, &object.Tree{Entries: native})
			if err != nil {
				return nil, classify(err, op, kindTree, "")
			}
			t, err := object.GetTree(root.Storer, h)
			return t, classify(err, op, kindTree, h.String())
		},
		publish: r.publishTree,
	}, nil
}

// CreateTree writes a tree from entries, in git order regardless of the order
// given. Every entry's object must exist.
func (r *Repository) CreateTree(entries []TreeEntry) (*Tree, error) {
	c, err := r.treeCreateCall(entries)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// CreateTreeAsync is the asynchronous form of CreateTree.
func (r *Repository) CreateTreeAsync(entries []TreeEntry, done func(*Tree, error)) error {
	c, err := r.treeCreateCall(entries)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

// TagOptions describes an annotated tag to create.
type TagOptions struct {
	Name    string
	Target  string
	Tagger  object.Signature
	Message string
	// Force overwrites an existing refs/tags/<Name>.
	Force bool
}

type createdTag struct {
	tag *object.Tag
	ref plumbing.ReferenceName
}

func (r *Repository) tagCreateCall(opts TagOptions) (call[createdTag, *Tag], error) {
	var zero call[createdTag, *Tag]
	if opts.Name == "" || strings.ContainsAny(opts.Name, " ~^:?*[\\") {
		return zero, gerrors.InvalidArgument("name", "invalid tag name")
	}
	target, err := parseID("target", opts.Target)
	if err != nil {
		return zero, err
	}
	if opts.Tagger.Name == "" {
		return zero, gerrors.InvalidArgument("tagger", "name must not be empty")
	}
	tagger := opts.Tagger
	if tagger.When.IsZero() {
		tagger.When = time.Now()
	}
	refName := plumbing.NewTagReferenceName(opts.Name)

	const op = "tag.create"
	return call[createdTag, *Tag]{
		op: op,
		work: func(root *git.Repository) (createdTag, error) {
			obj, err := root.Storer.EncodedObject(plumbing.AnyObject, target)
			if err != nil {
				return createdTag{}, classify(err, op, kindObject, opts.Target)
			}
			if err := checkOverwrite(root, op, refName, opts.Force); err != nil {
				return createdTag{}, err
			}
			h, err := storeObject(root, &object.Tag{
				Name:       opts.Name,
				Tagger:     tagger,
				Message:    opts.Message,
				TargetType: obj.Type(),
				Target:     target,
			})
			if err != nil {
				return createdTag{}, classify(err, op, kindTag, opts.Name)
			}
			if err := root.Storer.SetReference(plumbing.NewHashReference(refName, h)); err != nil {
				return createdTag{}, classify(err, op, kindReference, refName.String())
			}
			t, err := object.GetTag(root.Storer, h)
			return createdTag{tag: t, ref: refName}, classify(err, op, kindTag, h.String())
		},
		publish: func(n createdTag) (*Tag, error) {
			r.refs.Invalidate(n.ref)
			return r.publishTag(n.tag)
		},
	}, nil
}

// CreateTag writes an annotated tag object and points refs/tags/<Name> at it.
func (r *Repository) CreateTag(opts TagOptions) (*Tag, error) {
	c, err := r.tagCreateCall(opts)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// CreateTagAsync is the asynchronous form of CreateTag.
func (r *Repository) CreateTagAsync(opts TagOptions, done func(*Tag, error)) error {
	c, err := r.tagCreateCall(opts)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

func (r *Repository) rawCreateCall(kind string, data []byte) (call[rawData, *RawObject], error) {
	typ, err := plumbing.ParseObjectType(kind)
	switch {
	case err != nil:
	case typ == plumbing.BlobObject, typ == plumbing.TreeObject, typ == plumbing.CommitObject, typ == plumbing.TagObject:
	default:
		err = plumbing.ErrInvalidType
	}
	if err != nil {
		return call[rawData, *RawObject]{}, gerrors.InvalidArgument("type", "must be one of blob, tree, commit, tag")
	}
	data = slices.Clone(data)

	const op = "object.create"
	return call[rawData, *RawObject]{
		op: op,
		work: func(root *git.Repository) (rawData, error) {
			obj := root.Storer.NewEncodedObject()
			obj.SetType(typ)
			w, err := obj.Writer()
			if err != nil {
				return rawData{}, classify(err, op, kindObject, "")
			}
			if _, err := w.Write(data); err != nil {
				_ = w.Close()
				return rawData{}, classify(err, op, kindObject, "")
			}
			if err := w.Close(); err != nil {
				return rawData{}, classify(err, op, kindObject, "")
			}
			h, err := root.Storer.SetEncodedObject(obj)
			if err != nil {
				return rawData{}, classify(err, op, kindObject, "")
			}
			return rawData{id: h, typ: typ, data: data}, nil
		},
		publish: r.publishRaw,
	}, nil
}

// CreateRawObject writes data as an object of the given type ("blob", "tree",
// "commit" or "tag") without parsing it.
func (r *Repository) CreateRawObject(kind string, data []byte) (*RawObject, error) {
	c, err := r.rawCreateCall(kind, data)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// CreateRawObjectAsync is the asynchronous form of CreateRawObject.
func (r *Repository) CreateRawObjectAsync(kind string, data []byte, done func(*RawObject, error)) error {
	c, err := r.rawCreateCall(kind, data)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}
