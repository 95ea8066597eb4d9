package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/gitteh/internal/config"
	"git.home.luguber.info/inful/gitteh/internal/host"
	"git.home.luguber.info/inful/gitteh/internal/repository"
)

// Global carries state shared by every command.
type Global struct {
	Logger *slog.Logger
	Host   *host.Host
	Out    io.Writer
	Async  bool

	// DefaultRepo is used when a command gets no --repo; it comes from
	// repository.path in the configuration.
	DefaultRepo string
}

// CLI definition & global flags.
type CLI struct {
	Config      string           `short:"c" help:"Configuration file path (defaults apply when empty)" type:"path"`
	Verbose     bool             `short:"v" help:"Enable verbose logging"`
	MetricsAddr string           `name:"metrics-addr" help:"Serve Prometheus metrics on this address while the command runs"`
	Async       bool             `help:"Use the asynchronous API, delivering results through the completion loop"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init    InitCmd    `cmd:"" help:"Create a repository, or reopen an existing one"`
	Entries EntriesCmd `cmd:"" help:"List index entries"`
	Show    ShowCmd    `cmd:"" help:"Show an object by id or revision"`
	Log     LogCmd     `cmd:"" help:"Walk commit history"`
	Refs    RefsCmd    `cmd:"" help:"List references"`

	global *Global
	out    io.Writer
}

// SetOutput redirects command output; used by tests.
func (c *CLI) SetOutput(w io.Writer) { c.out = w }

// AfterApply runs after flag parsing; it loads configuration, installs the
// logger and starts the host once.
func (c *CLI) AfterApply() error {
	cfg, err := config.LoadOrDefault(c.Config)
	if err != nil {
		return err
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = c.MetricsAddr
	}

	logger := cfg.Logging.NewLogger(os.Stderr, c.Verbose)
	slog.SetDefault(logger)

	out := c.out
	if out == nil {
		out = os.Stdout
	}

	h := host.New(cfg, logger)
	if err := h.Start(context.Background()); err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	c.global = &Global{Logger: logger, Host: h, Out: out, Async: c.Async, DefaultRepo: cfg.Repository.Path}
	return nil
}

// Globals returns the state built by AfterApply.
func (c *CLI) Globals() *Global {
	if c.global == nil {
		return &Global{Logger: slog.Default(), Out: os.Stdout}
	}
	return c.global
}

// Close shuts the host down.
func (c *CLI) Close(ctx context.Context) error {
	if c.global == nil || c.global.Host == nil {
		return nil
	}
	return c.global.Host.Shutdown(ctx)
}

// RepoFlag selects the repository a command works on.
type RepoFlag struct {
	Repo string `short:"C" name:"repo" help:"Repository path (defaults to repository.path, then the current directory)" type:"path"`
}

// fetch runs one operation through either API surface. In async mode the
// completion is delivered by draining the loop on this goroutine.
func fetch[T any](g *Global, sync func() (T, error), async func(done func(T, error)) error) (T, error) {
	if !g.Async {
		return sync()
	}
	var (
		value  T
		result error
	)
	if err := async(func(v T, err error) { value, result = v, err }); err != nil {
		return value, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := g.Host.RunUntilIdle(ctx); err != nil {
		return value, err
	}
	return value, result
}

// repoPath picks the repository: the flag, then the configured default,
// then the current directory.
func repoPath(g *Global, flag string) string {
	switch {
	case flag != "":
		return flag
	case g.DefaultRepo != "":
		return g.DefaultRepo
	default:
		return "."
	}
}

func openRepo(g *Global, flag string) (*repository.Repository, error) {
	path := repoPath(g, flag)
	return fetch(g,
		func() (*repository.Repository, error) { return g.Host.Open(path) },
		func(done func(*repository.Repository, error)) error { return g.Host.OpenAsync(path, done) })
}
