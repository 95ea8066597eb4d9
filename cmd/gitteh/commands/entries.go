package commands

import (
	"fmt"

	"git.home.luguber.info/inful/gitteh/internal/repository"
)

// EntriesCmd implements the 'entries' command, printing one line per index
// entry in the `git ls-files --stage` layout.
type EntriesCmd struct {
	RepoFlag
	Path string `arg:"" optional:"" help:"Print only the entry at this path"`
}

func (e *EntriesCmd) Run(g *Global, _ *CLI) error {
	repo, err := openRepo(g, e.Repo)
	if err != nil {
		return err
	}
	ix, err := fetch(g, repo.Index, repo.IndexAsync)
	if err != nil {
		return err
	}
	defer ix.Release()

	if e.Path != "" {
		entry, err := fetch(g,
			func() (*repository.IndexEntry, error) { return ix.FindEntry(e.Path) },
			func(done func(*repository.IndexEntry, error)) error { return ix.FindEntryAsync(e.Path, done) })
		if err != nil {
			return err
		}
		defer entry.Release()
		return printEntry(g, entry)
	}

	for i := range ix.EntryCount() {
		entry, err := fetch(g,
			func() (*repository.IndexEntry, error) { return ix.Entry(i) },
			func(done func(*repository.IndexEntry, error)) error { return ix.EntryAsync(i, done) })
		if err != nil {
			return err
		}
		err = printEntry(g, entry)
		entry.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func printEntry(g *Global, e *repository.IndexEntry) error {
	_, err := fmt.Fprintf(g.Out, "%06o %s %d\t%s\n", uint32(e.Mode()), e.ID(), e.Stage(), e.Path())
	return err
}
