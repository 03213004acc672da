// Package cmd provides the CLI commands for docindex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/logging"
	"github.com/NOVA-ALLRounder/main-sub002/internal/profiling"
	"github.com/NOVA-ALLRounder/main-sub002/pkg/version"
)

// Profiling flags
var (
	profileCPU     string
	profileMem     string
	profileTrace   string
	profileSession *profiling.Session
)

// Logging and config flags
var (
	debugMode      bool
	configPath     string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docindex",
		Short: "Policy-scoped document indexer with hybrid search",
		Long: `docindex scans document folders under an access policy, extracts and
chunks text, embeds it and keeps a persistent vector index up to date
incrementally.

Search blends vector similarity with token overlap, boosts exact names and
numbers, penalises boilerplate and can rerank with a cross-encoder.

Run 'docindex index' in a folder, then 'docindex search <query>'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Project config file (default: .docindex.yaml in the current directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.docindex/logs/")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	opts := profiling.Options{CPUProfile: profileCPU, HeapProfile: profileMem, Trace: profileTrace}
	if opts.Enabled() {
		session, err := profiling.Start(opts)
		if err != nil {
			return err
		}
		profileSession = session
	}
	return nil
}

// stopProfilingAndLogging stops profiling and flushes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}

	if loggingCleanup != nil {
		slog.Info("logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints any error with its
// suggestion.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, docerrors.FormatForCLI(err))
	}
	return err
}

// loadConfig reads the configuration and applies its logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	if err := configureLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfig loads configuration for the current directory. With no
// configured roots the current directory is the corpus; relative paths
// resolve against it.
func readConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(dir, configPath)
	} else {
		cfg, err = config.Load(dir)
	}
	if err != nil {
		return nil, err
	}

	if len(cfg.Paths.Roots) == 0 {
		cfg.Paths.Roots = []string{dir}
	}
	cfg.Paths.Roots = absPaths(dir, cfg.Paths.Roots)
	cfg.Policy.ScopeRoots = absPaths(dir, cfg.Policy.ScopeRoots)
	if cfg.Paths.DataDir != "" {
		cfg.Paths.DataDir = absPaths(dir, []string{cfg.Paths.DataDir})[0]
	}
	return cfg, nil
}

func absPaths(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}

// configureLogging applies the logging section to stderr. --debug wins.
func configureLogging(cfg *config.Config) error {
	if debugMode {
		return nil
	}
	lc := logging.DefaultConfig()
	if cfg.Logging.Level != "" {
		lc.Level = cfg.Logging.Level
	}
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	return replaceLogger(lc)
}

// replaceLogger installs a logger built from lc as the default.
func replaceLogger(lc logging.Config) error {
	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if loggingCleanup != nil {
		loggingCleanup()
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}
