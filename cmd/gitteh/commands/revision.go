package commands

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
	"git.home.luguber.info/inful/gitteh/internal/repository"
)

// maxPeel bounds how many annotated tags resolveCommit follows.
const maxPeel = 16

// resolveCommit resolves rev like resolveRevision, then peels annotated tags
// down to the object they point at.
func resolveCommit(g *Global, repo *repository.Repository, rev string) (string, error) {
	id, err := resolveRevision(g, repo, rev)
	if err != nil {
		return "", err
	}
	for range maxPeel {
		raw, err := fetch(g,
			func() (*repository.RawObject, error) { return repo.RawObject(id) },
			func(done func(*repository.RawObject, error)) error { return repo.RawObjectAsync(id, done) })
		if err != nil {
			return "", err
		}
		kind := raw.Type()
		raw.Release()
		if kind != "tag" {
			return id, nil
		}

		tag, err := fetch(g,
			func() (*repository.Tag, error) { return repo.Tag(id) },
			func(done func(*repository.Tag, error)) error { return repo.TagAsync(id, done) })
		if err != nil {
			return "", err
		}
		id = tag.TargetID()
		tag.Release()
	}
	return "", gerrors.InvalidArgument("revision", "tag chain too deep: "+rev)
}

// resolveRevision turns a full object id or a reference name into an
// object id. Short names are tried as branch, then tag, then under refs/.
func resolveRevision(g *Global, repo *repository.Repository, rev string) (string, error) {
	if plumbing.IsHash(rev) {
		return rev, nil
	}

	candidates := []string{rev}
	if rev != "HEAD" && !strings.HasPrefix(rev, "refs/") {
		candidates = []string{"refs/heads/" + rev, "refs/tags/" + rev, "refs/" + rev}
	}

	for _, name := range candidates {
		ref, err := fetch(g,
			func() (*repository.Reference, error) { return repo.Reference(name) },
			func(done func(*repository.Reference, error)) error { return repo.ReferenceAsync(name, done) })
		if gerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		resolved, err := fetch(g, ref.Resolve, ref.ResolveAsync)
		ref.Release()
		if err != nil {
			return "", err
		}
		id := resolved.Target()
		resolved.Release()
		return id, nil
	}
	return "", gerrors.NotFound("revision", rev)
}
