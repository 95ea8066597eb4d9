package repository

import (
	"errors"
	"slices"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"git.home.luguber.info/inful/gitteh/internal/cache"
	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// Reference is a proxy for a reference. Its target is a snapshot; a reference
// rewritten through this Session gets a fresh proxy and the old one goes
// stale.
type Reference struct {
	cache.Object
	repo   *Repository
	native *plumbing.Reference
}

func (r *Repository) refInit(n *plumbing.Reference) func(*Reference) error {
	return func(ref *Reference) error {
		ref.native = n
		r.track(ref, nil)
		return nil
	}
}

func (r *Repository) newRef() *Reference { return &Reference{repo: r} }

func (r *Repository) publishRef(n *plumbing.Reference) (*Reference, error) {
	return r.refs.Resolve(n.Name(), r.newRef, r.refInit(n))
}

// publishNewRef registers a reference that was just written, replacing any
// resident proxy for the same name.
func (r *Repository) publishNewRef(n *plumbing.Reference) (*Reference, error) {
	return r.refs.Replace(n.Name(), r.newRef, r.refInit(n))
}

func (r *Repository) refCall(name string) (call[*plumbing.Reference, *Reference], error) {
	rn, err := parseRefName("name", name)
	if err != nil {
		return call[*plumbing.Reference, *Reference]{}, err
	}
	return call[*plumbing.Reference, *Reference]{
		op: "reference",
		work: func(root *git.Repository) (*plumbing.Reference, error) {
			ref, err := root.Storer.Reference(rn)
			return ref, classify(err, "reference", kindReference, name)
		},
		publish: r.publishRef,
	}, nil
}

// Reference returns the proxy for the named reference without resolving it.
func (r *Repository) Reference(name string) (*Reference, error) {
	c, err := r.refCall(name)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// ReferenceAsync is the asynchronous form of Reference.
func (r *Repository) ReferenceAsync(name string, done func(*Reference, error)) error {
	c, err := r.refCall(name)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

func (r *Repository) refNamesCall() call[[]string, []string] {
	return call[[]string, []string]{
		op: "reference.list",
		work: func(root *git.Repository) ([]string, error) {
			iter, err := root.Storer.IterReferences()
			if err != nil {
				return nil, classify(err, "reference.list", kindReference, "")
			}
			var names []string
			err = iter.ForEach(func(ref *plumbing.Reference) error {
				names = append(names, ref.Name().String())
				return nil
			})
			if err != nil {
				return nil, classify(err, "reference.list", kindReference, "")
			}
			slices.Sort(names)
			return names, nil
		},
		publish: identity[[]string],
	}
}

// ReferenceNames lists every reference name in sorted order.
func (r *Repository) ReferenceNames() ([]string, error) { return r.refNamesCall().run(r) }

// ReferenceNamesAsync is the asynchronous form of ReferenceNames.
func (r *Repository) ReferenceNamesAsync(done func([]string, error)) error {
	return r.refNamesCall().submit(r, r, done)
}

// checkOverwrite fails with ErrReferenceExists unless force is set or name is
// free.
func checkOverwrite(root *git.Repository, op string, name plumbing.ReferenceName, force bool) error {
	if force {
		return nil
	}
	_, err := root.Storer.Reference(name)
	switch {
	case err == nil:
		return gerrors.NativeFailure(op, ErrReferenceExists).WithContext("name", name.String())
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return nil
	default:
		return classify(err, op, kindReference, name.String())
	}
}

func (r *Repository) oidRefCall(name, id string, force bool) (call[*plumbing.Reference, *Reference], error) {
	rn, err := parseRefName("name", name)
	if err != nil {
		return call[*plumbing.Reference, *Reference]{}, err
	}
	h, err := parseID("id", id)
	if err != nil {
		return call[*plumbing.Reference, *Reference]{}, err
	}
	const op = "reference.create"
	return call[*plumbing.Reference, *Reference]{
		op: op,
		work: func(root *git.Repository) (*plumbing.Reference, error) {
			if err := root.Storer.HasEncodedObject(h); err != nil {
				return nil, classify(err, op, kindObject, id)
			}
			if err := checkOverwrite(root, op, rn, force); err != nil {
				return nil, err
			}
			ref := plumbing.NewHashReference(rn, h)
			if err := root.Storer.SetReference(ref); err != nil {
				return nil, classify(err, op, kindReference, name)
			}
			return ref, nil
		},
		publish: r.publishNewRef,
	}, nil
}

// CreateOidReference points name at the object id. An existing reference is
// only overwritten when force is set.
func (r *Repository) CreateOidReference(name, id string, force bool) (*Reference, error) {
	c, err := r.oidRefCall(name, id, force)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// CreateOidReferenceAsync is the asynchronous form of CreateOidReference.
func (r *Repository) CreateOidReferenceAsync(name, id string, force bool, done func(*Reference, error)) error {
	c, err := r.oidRefCall(name, id, force)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

func (r *Repository) symRefCall(name, target string, force bool) (call[*plumbing.Reference, *Reference], error) {
	rn, err := parseRefName("name", name)
	if err != nil {
		return call[*plumbing.Reference, *Reference]{}, err
	}
	tn, err := parseRefName("target", target)
	if err != nil {
		return call[*plumbing.Reference, *Reference]{}, err
	}
	const op = "reference.create_symbolic"
	return call[*plumbing.Reference, *Reference]{
		op: op,
		work: func(root *git.Repository) (*plumbing.Reference, error) {
			if err := checkOverwrite(root, op, rn, force); err != nil {
				return nil, err
			}
			ref := plumbing.NewSymbolicReference(rn, tn)
			if err := root.Storer.SetReference(ref); err != nil {
				return nil, classify(err, op, kindReference, name)
			}
			return ref, nil
		},
		publish: r.publishNewRef,
	}, nil
}

// CreateSymbolicReference points name at another reference.
func (r *Repository) CreateSymbolicReference(name, target string, force bool) (*Reference, error) {
	c, err := r.symRefCall(name, target, force)
	if err != nil {
		return nil, err
	}
	return c.run(r)
}

// CreateSymbolicReferenceAsync is the asynchronous form of
// CreateSymbolicReference.
func (r *Repository) CreateSymbolicReferenceAsync(name, target string, force bool, done func(*Reference, error)) error {
	c, err := r.symRefCall(name, target, force)
	if err != nil {
		return err
	}
	return c.submit(r, r, done)
}

func (ref *Reference) Name() string { return ref.native.Name().String() }

// Symbolic reports whether the reference points at another reference.
func (ref *Reference) Symbolic() bool { return ref.native.Type() == plumbing.SymbolicReference }

// Target returns the object id of a direct reference, or "" for a symbolic one.
func (ref *Reference) Target() string {
	if ref.Symbolic() {
		return ""
	}
	return ref.native.Hash().String()
}

// SymbolicTarget returns the reference a symbolic reference points at.
func (ref *Reference) SymbolicTarget() string {
	if !ref.Symbolic() {
		return ""
	}
	return ref.native.Target().String()
}

func (ref *Reference) resolveCall() call[*plumbing.Reference, *Reference] {
	return call[*plumbing.Reference, *Reference]{
		op: "reference.resolve",
		work: func(root *git.Repository) (*plumbing.Reference, error) {
			if err := ref.Check(); err != nil {
				return nil, err
			}
			resolved, err := storer.ResolveReference(root.Storer, ref.native.Name())
			return resolved, classify(err, "reference.resolve", kindReference, ref.Name())
		},
		publish: ref.repo.publishRef,
	}
}

// Resolve follows symbolic references down to a direct one. A direct
// reference resolves to itself.
func (ref *Reference) Resolve() (*Reference, error) { return ref.resolveCall().run(ref.repo) }

// ResolveAsync is the asynchronous form of Resolve.
func (ref *Reference) ResolveAsync(done func(*Reference, error)) error {
	return ref.resolveCall().submit(ref.repo, ref, done)
}

// Delete removes the reference from the store. The proxy goes stale.
func (ref *Reference) Delete() error {
	if err := ref.Check(); err != nil {
		return err
	}
	name := ref.native.Name()
	_, err := native(ref.repo, func(root *git.Repository) (struct{}, error) {
		if err := ref.Check(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, classify(root.Storer.RemoveReference(name), "reference.delete", kindReference, name.String())
	})
	if err != nil {
		return err
	}
	ref.repo.refs.Invalidate(name)
	return nil
}
