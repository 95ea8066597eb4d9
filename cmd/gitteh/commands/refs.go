package commands

import (
	"fmt"

	"git.home.luguber.info/inful/gitteh/internal/repository"
)

// RefsCmd implements the 'refs' command.
type RefsCmd struct {
	RepoFlag
	Include []string `short:"i" help:"Only list names matching these globs"`
	Exclude []string `short:"x" help:"Skip names matching these globs"`
	Resolve bool     `short:"r" help:"Print the object id symbolic references resolve to"`
}

func (c *RefsCmd) Run(g *Global, _ *CLI) error {
	filter, err := repository.NewRefFilter(c.Include, c.Exclude)
	if err != nil {
		return err
	}
	repo, err := openRepo(g, c.Repo)
	if err != nil {
		return err
	}
	names, err := fetch(g, repo.ReferenceNames, repo.ReferenceNamesAsync)
	if err != nil {
		return err
	}

	for _, name := range filter.Apply(names) {
		ref, err := fetch(g,
			func() (*repository.Reference, error) { return repo.Reference(name) },
			func(done func(*repository.Reference, error)) error { return repo.ReferenceAsync(name, done) })
		if err != nil {
			return err
		}
		target := ref.Target()
		if ref.Symbolic() {
			target = "-> " + ref.SymbolicTarget()
			if c.Resolve {
				resolved, err := fetch(g, ref.Resolve, ref.ResolveAsync)
				if err != nil {
					ref.Release()
					return err
				}
				target = resolved.Target()
				resolved.Release()
			}
		}
		ref.Release()
		if _, err := fmt.Fprintf(g.Out, "%s\t%s\n", target, name); err != nil {
			return err
		}
	}
	return nil
}
