package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"bitesbytes/internal/backend"
	"bitesbytes/internal/config"
	"bitesbytes/internal/log"
)

// Globals defines flags shared by every bites command.
type Globals struct {
	Backend string `help:"Record store to use (overrides DATA_BACKEND)." placeholder:"memory|sqlite|sheets|firestore"`
	Verbose bool   `help:"Log at debug level to stderr." short:"v"`
}

// Commands is the bites command tree.
type Commands struct {
	Globals

	Add    AddCmd    `cmd:"" help:"Record an income or expense entry."`
	Report ReportCmd `cmd:"" help:"Print totals, unit counts and expense breakdowns."`
}

// logger writes to stderr so command output on stdout stays clean.
func (g *Globals) logger(stderr io.Writer) *log.Logger {
	cfg := log.ConfigFromEnv()
	cfg.Component = log.ComponentCLI
	cfg.Output = stderr
	if g.Verbose {
		cfg.Level = slog.LevelDebug
	} else if os.Getenv("LOG_LEVEL") == "" {
		cfg.Level = slog.LevelWarn
	}
	return log.New(cfg)
}

// config loads the environment configuration with the --backend override
// applied.
func (g *Globals) config() (*config.Config, error) {
	LoadEnvFile()
	cfg := config.Load()
	if b := strings.TrimSpace(g.Backend); b != "" {
		cfg.DataBackend = b
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openBackend builds the configured record store. Callers must Close the
// result.
func (g *Globals) openBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bc.Type, err)
	}
	return result, nil
}
