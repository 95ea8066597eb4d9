package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/gitteh/internal/repository"
)

// ShowCmd implements the 'show' command.
type ShowCmd struct {
	RepoFlag
	Revision string `arg:"" optional:"" help:"Object id or reference name" default:"HEAD"`
}

func (s *ShowCmd) Run(g *Global, _ *CLI) error {
	repo, err := openRepo(g, s.Repo)
	if err != nil {
		return err
	}
	id, err := resolveRevision(g, repo, s.Revision)
	if err != nil {
		return err
	}
	raw, err := fetch(g,
		func() (*repository.RawObject, error) { return repo.RawObject(id) },
		func(done func(*repository.RawObject, error)) error { return repo.RawObjectAsync(id, done) })
	if err != nil {
		return err
	}
	defer raw.Release()

	switch raw.Type() {
	case "commit":
		c, err := fetch(g,
			func() (*repository.Commit, error) { return repo.Commit(id) },
			func(done func(*repository.Commit, error)) error { return repo.CommitAsync(id, done) })
		if err != nil {
			return err
		}
		defer c.Release()
		return printCommit(g, c)
	case "tree":
		t, err := fetch(g,
			func() (*repository.Tree, error) { return repo.Tree(id) },
			func(done func(*repository.Tree, error)) error { return repo.TreeAsync(id, done) })
		if err != nil {
			return err
		}
		defer t.Release()
		return printTree(g, t)
	case "tag":
		t, err := fetch(g,
			func() (*repository.Tag, error) { return repo.Tag(id) },
			func(done func(*repository.Tag, error)) error { return repo.TagAsync(id, done) })
		if err != nil {
			return err
		}
		defer t.Release()
		_, err = fmt.Fprintf(g.Out, "tag %s\nobject %s\ntype %s\ntagger %s\n\n%s",
			t.Name(), t.TargetID(), t.TargetType(), signature(t.Tagger()), t.Message())
		return err
	default:
		data, err := raw.Data()
		if err != nil {
			return err
		}
		_, err = g.Out.Write(data)
		return err
	}
}

func printCommit(g *Global, c *repository.Commit) error {
	var b strings.Builder
	fmt.Fprintf(&b, "commit %s\n", c.ID())
	fmt.Fprintf(&b, "tree %s\n", c.TreeID())
	for i := range c.ParentCount() {
		pid, err := c.ParentID(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "parent %s\n", pid)
	}
	fmt.Fprintf(&b, "Author: %s\n", signature(c.Author()))
	fmt.Fprintf(&b, "Date:   %s\n\n", c.Author().When.Format(time.RFC1123Z))
	for _, line := range strings.Split(strings.TrimRight(c.Message(), "\n"), "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	_, err := fmt.Fprint(g.Out, b.String())
	return err
}

func printTree(g *Global, t *repository.Tree) error {
	for i := range t.EntryCount() {
		e, err := t.Entry(i)
		if err != nil {
			return err
		}
		kind := "blob"
		switch e.Mode {
		case filemode.Dir:
			kind = "tree"
		case filemode.Submodule:
			kind = "commit"
		}
		if _, err := fmt.Fprintf(g.Out, "%06o %s %s\t%s\n", uint32(e.Mode), kind, e.ID, e.Name); err != nil {
			return err
		}
	}
	return nil
}

func signature(s object.Signature) string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}
