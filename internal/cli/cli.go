// Package cli implements the trek command-line interface.
//
// This package provides commands for inspecting stored trajectories,
// listing their runs, migrating trajectories between storage services
// and serving a read-only HTTP API over a storage backend. The CLI is
// built using cobra and supports verbose logging via the
// charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - list: List trajectories stored in the configured backend
//   - show: Print a stored trajectory's tree
//   - runs: Print a stored trajectory's run table
//   - migrate: Copy a stored trajectory to another storage service
//   - serve: Serve a read-only JSON API over the backend
//
// # Configuration
//
// The storage backend is resolved from ~/.config/trek/config.toml and
// can be overridden per invocation with --backend and --location.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers
// are passed through context.Context to allow structured progress
// tracking.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/trek/pkg/buildinfo"
	"github.com/matzehuels/trek/pkg/storage/backend"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "trek"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Persistent flag values, bound in RootCommand.
	configPath  string
	backendKind string
	location    string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Trek manages versioned experiment trajectories",
		Long:         `Trek explores parameter spaces as named trajectories: hierarchical trees of parameters and results, fanned out into runs and persisted to pluggable storage services.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx := withLogger(cmd.Context(), c.Logger)
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/trek/config.toml)")
	root.PersistentFlags().StringVar(&c.backendKind, "backend", "", "storage service: memory, file, redis or mongo")
	root.PersistentFlags().StringVar(&c.location, "location", "", "storage location: directory, address or URI")

	// Register all subcommands
	root.AddCommand(c.listCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.runsCommand())
	root.AddCommand(c.migrateCommand())
	root.AddCommand(c.serveCommand())

	return root
}

// =============================================================================
// Backend Factory
// =============================================================================

// openBackend resolves the effective configuration and opens the storage
// backend it names. The caller owns the returned backend and must close
// it.
func (c *CLI) openBackend(ctx context.Context) (backend.Backend, Config, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, Config{}, err
	}
	if c.backendKind != "" {
		cfg.Backend = c.backendKind
	}
	if c.location != "" {
		cfg.Location = c.location
	}

	c.Logger.Debug("opening storage backend", "service", cfg.Backend, "location", cfg.Location)
	b, err := backend.Open(ctx, cfg.Backend, cfg.Location)
	if err != nil {
		return nil, Config{}, err
	}
	return b, cfg, nil
}

// =============================================================================
// Paths
// =============================================================================

// configDir returns the config directory using XDG standard (~/.config/trek/).
func configDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// dataDir returns the default file-backend directory using XDG standard
// (~/.local/share/trek/).
func dataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName), nil
}
