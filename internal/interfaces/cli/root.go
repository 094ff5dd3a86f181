// Package cli implements the meshbind command tree: the root command with
// global flags, and the train and clean subcommands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bindscape/meshbind/internal/config"
	"github.com/bindscape/meshbind/internal/infrastructure/monitoring/logging"
	"github.com/bindscape/meshbind/internal/infrastructure/monitoring/metrics"
	"github.com/bindscape/meshbind/internal/infrastructure/runstore"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global flags shared by every subcommand.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	OutputDir  string
	Debug      bool
	Seed       int64
}

// NewRootCommand creates the root cobra command with global flags and
// subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "meshbind",
		Short: "Protein surface binding-site learning toolchain",
		Long: "meshbind prepares protein structures for surface generation and trains\n" +
			"per-vertex binding-site classifiers over the resulting meshes.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: environment + built-in defaults)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputDir, "output-dir", "o", "", "directory for run outputs")
	pf.BoolVar(&opts.Debug, "debug", false, "debug mode (disables checkpointing)")
	pf.Int64Var(&opts.Seed, "seed", 0, "random seed override")

	cmd.AddCommand(
		NewTrainCmd(opts),
		NewCleanCmd(opts),
	)
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig resolves the configuration with priority flags > env > file >
// defaults.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.OutputDir != "" {
		cfg.Run.OutputDir = opts.OutputDir
	}
	if opts.Debug {
		cfg.Run.Debug = true
	}
	if opts.Seed != 0 {
		cfg.Run.Seed = opts.Seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildLogger creates the run logger from configuration.
func buildLogger(cfg *config.Config) (logging.Logger, error) {
	return logging.NewLogger(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
}

// buildMonitor selects the operational metrics backend.
func buildMonitor(cfg *config.Config) (metrics.TrainingMetrics, error) {
	switch cfg.Metrics.Backend {
	case "prometheus":
		return metrics.NewPrometheusTrainingMetrics(prometheus.DefaultRegisterer)
	case "memory":
		return metrics.NewInMemoryTrainingMetrics(), nil
	default:
		return metrics.NewNoopTrainingMetrics(), nil
	}
}

// openStore opens the configured run store: sqlite when a path is set, the
// in-memory store otherwise.
func openStore(cfg *config.Config) runstore.Store {
	if cfg.Run.StorePath != "" {
		return runstore.NewSQLiteStore(cfg.Run.StorePath)
	}
	return runstore.NewMemoryStore()
}

// newRunName derives the run identifier <config>_<timestamp>_<rand> from the
// config file name (or "run" without one).
func newRunName(configPath string, now time.Time) string {
	stem := "run"
	if configPath != "" {
		stem = strings.TrimSuffix(filepath.Base(configPath), filepath.Ext(configPath))
	}
	rand := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", stem, now.UTC().Format("20060102-150405"), rand)
}

// copyFile copies the file at src to dst.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
