package commands

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/buildmesh/internal/config"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/observability"
	"git.home.luguber.info/inful/buildmesh/internal/store/sqlite"
)

// Global carries shared state into every command.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"buildmesh.yaml" env:"BUILDMESH_CONFIG"`
	Store   string `help:"Override the store path from the configuration"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Init         InitCmd         `cmd:"" help:"Initialize a new configuration file"`
	Daemon       DaemonCmd       `cmd:"" help:"Run the scheduler daemon"`
	Enqueue      EnqueueCmd      `cmd:"" help:"Queue a repository build for a branch"`
	Report       ReportCmd       `cmd:"" help:"Queue a module build state report"`
	Interproject InterprojectCmd `cmd:"" help:"Start an inter-project build across branches"`
	State        StateCmd        `cmd:"" help:"Print the build state snapshot of modules"`
	History      HistoryCmd      `cmd:"" help:"Print recorded build transitions"`
	Version      VersionCmd      `cmd:"" help:"Show version and exit"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(os.Stderr, level, config.LogFormatText))
	return nil
}

func newLogger(w io.Writer, level slog.Level, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if format == config.LogFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(observability.NewContextHandler(h))
}

// loadConfig reads the configuration and applies command line overrides.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if c.Store != "" {
		cfg.Store.Path = c.Store
	}
	return cfg, nil
}

// openStore loads the configuration and opens its store. The caller closes the store.
func (c *CLI) openStore(ctx context.Context) (*config.Config, *sqlite.Store, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func closeStore(store *sqlite.Store) {
	if err := store.Close(); err != nil {
		slog.Warn("Failed to close store", "error", err)
	}
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode output").Build()
	}
	return nil
}
