package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/bugrouter/internal/cli"
	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/logging"
	"github.com/rohankatakam/bugrouter/internal/telemetry"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile     string
	verbose     bool
	withMetrics bool
	logger      *logrus.Logger
	cfg         *config.Config
	slogger     *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Error: "+strings.TrimRight(errors.Describe(err), "\n"))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "brouter",
	Short: "BugRouter - route bug reports to the engineers who know the code",
	Long: `BugRouter builds per-file ownership from commit history and assigns
incoming bug reports to the available engineer with the most relevant expertise.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		logger = logrus.New()
		logger.SetOutput(os.Stderr)

		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}

		// Core packages log through slog
		logCfg, err := loggingConfig(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		logger.SetLevel(logrusLevel(logCfg.Level))
		if cfg.Logging.JSON {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
		slogger, err = logging.NewLogger(logCfg)
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		slogger.Install()

		if withMetrics {
			if err := telemetry.Init(cmd.Context(), "brouter", Version, telemetry.Options{Writer: os.Stderr}); err != nil {
				logger.WithError(err).Warn("Metrics disabled")
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if withMetrics {
			telemetry.Shutdown(context.Background())
		}
		if slogger != nil {
			slogger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .bugrouter/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&withMetrics, "metrics", false, "print OpenTelemetry metrics to stderr on exit")

	// Set custom version template
	rootCmd.SetVersionTemplate(`BugRouter {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	// Add subcommands
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(ownersCmd)
	rootCmd.AddCommand(staleCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(availabilityCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dlqCmd)
}

// loggingConfig maps the logging section onto the slog logger. --verbose
// forces debug; a log file switches to the rotated JSON production layout.
func loggingConfig(lc config.LoggingConfig, debug bool) (logging.Config, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return logging.Config{}, err
	}
	out := logging.DefaultConfig(debug)
	if lc.File != "" {
		out = logging.ProductionConfig(lc.File)
		out.AddSource = debug
	}
	if lc.JSON {
		out.JSONFormat = true
	}
	if debug {
		out.Level = logging.DEBUG
	} else {
		out.Level = level
	}
	return out, nil
}

func logrusLevel(level logging.LogLevel) logrus.Level {
	switch level {
	case logging.DEBUG:
		return logrus.DebugLevel
	case logging.WARN:
		return logrus.WarnLevel
	case logging.ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// resolveRepo maps a --repo argument onto a repository id and, when the
// argument is a local checkout, its path. An owner/name that is not a
// directory is taken as the id of a repository ingested from GitHub.
func resolveRepo(ctx context.Context, arg string) (repoID, repoPath string, err error) {
	if arg == "" {
		arg = "."
	}
	if info, statErr := os.Stat(arg); statErr == nil && info.IsDir() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", "", err
		}
		id, err := cli.DetectRepo(ctx, abs)
		if err != nil {
			return "", "", fmt.Errorf("%s is not a git repository: %w", abs, err)
		}
		return id, abs, nil
	}
	owner, name, err := cli.ParseGitHubRepo(arg)
	if err != nil {
		return "", "", err
	}
	return owner + "/" + name, "", nil
}

// openEngine resolves --repo and opens storage for it
func openEngine(ctx context.Context, repoArg string) (*cli.Engine, error) {
	repoID, repoPath, err := resolveRepo(ctx, repoArg)
	if err != nil {
		return nil, err
	}
	return cli.Open(cfg, repoID, repoPath, logger)
}

// openLoadedEngine opens the engine and restores stored ownership
func openLoadedEngine(ctx context.Context, repoArg string) (*cli.Engine, error) {
	eng, err := openEngine(ctx, repoArg)
	if err != nil {
		return nil, err
	}
	if err := eng.LoadOwnership(ctx); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}
