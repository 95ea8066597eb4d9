package commands

import (
	"fmt"

	"git.home.luguber.info/inful/gitteh/internal/repository"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Path string `arg:"" optional:"" help:"Directory to initialize" default:"." type:"path"`
	Bare bool   `help:"Create a bare repository"`
}

func (i *InitCmd) Run(g *Global, _ *CLI) error {
	repo, err := fetch(g,
		func() (*repository.Repository, error) { return g.Host.Init(i.Path, i.Bare) },
		func(done func(*repository.Repository, error)) error { return g.Host.InitAsync(i.Path, i.Bare, done) })
	if err != nil {
		return err
	}
	kind := "repository"
	if repo.Bare() {
		kind = "bare repository"
	}
	_, err = fmt.Fprintf(g.Out, "Initialized %s in %s\n", kind, repo.Path())
	return err
}
