package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/gitteh/cmd/gitteh/commands"
	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
	"git.home.luguber.info/inful/gitteh/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cli := &commands.CLI{}
	cli.SetOutput(stdout)
	parser, err := kong.New(cli,
		kong.Name("gitteh"),
		kong.Description("Inspect and build git repositories through the gitteh session API"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Vars{"version": version.String()},
	)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		if ge, ok := gerrors.As(err); ok {
			adapter := gerrors.NewCLIErrorAdapter(cli.Verbose, nil)
			_, _ = fmt.Fprintln(stderr, adapter.FormatError(ge))
			return adapter.ExitCodeFor(ge)
		}
		_, _ = fmt.Fprintf(stderr, "gitteh: %v\n", err)
		return 2
	}

	g := cli.Globals()
	err = ctx.Run(g, cli)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if cerr := cli.Close(shutdownCtx); err == nil {
		err = cerr
	}

	if err != nil {
		adapter := gerrors.NewCLIErrorAdapter(cli.Verbose, g.Logger)
		_, _ = fmt.Fprintln(stderr, adapter.FormatError(err))
		return adapter.ExitCodeFor(err)
	}
	return 0
}
