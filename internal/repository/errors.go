package repository

import (
	"errors"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// ErrReferenceExists is returned when creating a reference that already exists
// without force.
var ErrReferenceExists = errors.New("reference already exists")

var notFoundCauses = []error{
	plumbing.ErrObjectNotFound,
	plumbing.ErrReferenceNotFound,
	plumbing.ErrInvalidType,
	git.ErrRepositoryNotExists,
	object.ErrUnsupportedObject,
	object.ErrEntryNotFound,
	object.ErrParentNotFound,
	index.ErrEntryNotFound,
}

// classify translates a go-git error into a categorized error. Errors that are
// already categorized pass through unchanged.
func classify(err error, op, kind, key string) error {
	if err == nil {
		return nil
	}
	if _, ok := gerrors.As(err); ok {
		return err
	}
	for _, target := range notFoundCauses {
		if errors.Is(err, target) {
			return gerrors.NotFoundCause(kind, key, err).WithContext("op", op)
		}
	}
	return gerrors.NativeFailure(op, err).WithContext("kind", kind).WithContext("key", key)
}

// parseID validates a hex object id.
func parseID(argument, id string) (plumbing.Hash, error) {
	if !plumbing.IsHash(id) {
		return plumbing.ZeroHash, gerrors.InvalidArgument(argument, "must be a 40 character hex object id")
	}
	return plumbing.NewHash(id), nil
}

// parseRefName validates a reference name.
func parseRefName(argument, name string) (plumbing.ReferenceName, error) {
	rn := plumbing.ReferenceName(name)
	switch {
	case name == "":
		return rn, gerrors.InvalidArgument(argument, "must not be empty")
	case rn != plumbing.HEAD && !strings.HasPrefix(name, "refs/"):
		return rn, gerrors.InvalidArgument(argument, "must be HEAD or start with refs/")
	case strings.HasSuffix(name, "/") || strings.Contains(name, ".."):
		return rn, gerrors.InvalidArgument(argument, "is not a valid reference name")
	}
	return rn, nil
}
