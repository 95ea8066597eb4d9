package commands

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/gitteh/internal/repository"
)

// LogCmd implements the 'log' command on a RevWalker.
type LogCmd struct {
	RepoFlag
	Revisions []string `arg:"" optional:"" help:"Revisions to start from" default:"HEAD"`
	Hide      []string `help:"Exclude commits reachable from these revisions"`
	MaxCount  int      `short:"n" name:"max-count" help:"Stop after this many commits (0 for all)"`
	Time      bool     `help:"Order by committer time"`
	Reverse   bool     `help:"Print in reverse order"`
	Oneline   bool     `help:"Print one line per commit"`
}

func (l *LogCmd) Run(g *Global, _ *CLI) error {
	repo, err := openRepo(g, l.Repo)
	if err != nil {
		return err
	}
	walker, err := fetch(g, repo.CreateWalker, repo.CreateWalkerAsync)
	if err != nil {
		return err
	}
	defer walker.Release()

	var mode repository.SortMode
	if l.Time {
		mode |= repository.SortTime
	}
	if l.Reverse {
		mode |= repository.SortReverse
	}
	if err := walker.Sort(mode); err != nil {
		return err
	}
	for _, rev := range l.Revisions {
		id, err := resolveCommit(g, repo, rev)
		if err != nil {
			return err
		}
		if err := walker.Push(id); err != nil {
			return err
		}
	}
	for _, rev := range l.Hide {
		id, err := resolveCommit(g, repo, rev)
		if err != nil {
			return err
		}
		if err := walker.Hide(id); err != nil {
			return err
		}
	}

	for n := 0; l.MaxCount <= 0 || n < l.MaxCount; n++ {
		c, err := fetch(g, walker.Next, walker.NextAsync)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		if l.Oneline {
			subject, _, _ := strings.Cut(c.Message(), "\n")
			_, err = fmt.Fprintf(g.Out, "%s %s\n", c.ID()[:7], subject)
		} else {
			if n > 0 {
				_, _ = fmt.Fprintln(g.Out)
			}
			err = printCommit(g, c)
		}
		c.Release()
		if err != nil {
			return err
		}
	}
	return nil
}
