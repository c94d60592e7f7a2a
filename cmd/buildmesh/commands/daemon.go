package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/buildmesh/internal/config"
	"git.home.luguber.info/inful/buildmesh/internal/daemon"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	NoWatch bool `help:"Disable configuration hot reload"`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if !root.Verbose {
		slog.SetDefault(newLogger(os.Stderr, cfg.Logging.Level.SlogLevel(), cfg.Logging.Format))
	}

	configPath := root.Config
	if d.NoWatch {
		configPath = ""
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunDaemon(ctx, cfg, configPath)
}

// RunDaemon blocks until ctx is cancelled or the daemon fails.
func RunDaemon(ctx context.Context, cfg *config.Config, configPath string) error {
	d, err := daemon.New(ctx, cfg, configPath)
	if err != nil {
		return err
	}
	slog.Info("Daemon started, waiting for shutdown signal...", "instance_id", d.InstanceID())
	if err := d.Run(ctx); err != nil {
		return err
	}
	slog.Info("Daemon stopped successfully")
	return nil
}
