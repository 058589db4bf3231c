package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/authwire/internal/config"
	"github.com/tonimelisma/authwire/internal/failure"
	"github.com/tonimelisma/authwire/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagBaseURL    string
	flagStore      string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE,
// and resolvedCfgPath the file it was read from (which may not exist).
var (
	resolvedCfg     *config.Config
	resolvedCfgPath string
)

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "authwire",
		Short:   "Authenticated HTTP client for session-based APIs",
		Long:    "Calls a session-authenticated backend, refreshing expired sessions once and coalescing duplicate calls.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "backend base URL")
	cmd.PersistentFlags().StringVar(&flagStore, "store", "", "session store (file, redis, sqlite, memory)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newProbeCmd())
	cmd.AddCommand(newServeMetricsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores it in resolvedCfg.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if cmd.Flags().Changed("base-url") {
		cli.BaseURL = &flagBaseURL
	}

	if cmd.Flags().Changed("store") {
		cli.Store = &flagStore
	}

	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg
	resolvedCfgPath = config.ResolvePath(env, cli)

	return nil
}

// buildLogger creates an slog.Logger from the resolved config and CLI flags.
// --verbose and --quiet override the configured level. The format follows
// log_format; "auto" picks text on a terminal and JSON otherwise.
func buildLogger() *slog.Logger {
	return newLogger(os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))
}

func newLogger(w io.Writer, terminal bool) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.Logging.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !terminal) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// friendlyError rewrites session failures into actionable messages.
func friendlyError(err error) string {
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		return "not logged in, run 'authwire login' first"
	case errors.Is(err, failure.ErrSignatureInvalid):
		return "the session token was rejected as forged or corrupted; you have been logged out, run 'authwire login'"
	case errors.Is(err, failure.ErrRefreshFailed):
		return fmt.Sprintf("your session expired and could not be renewed; run 'authwire login' (%v)", err)
	case errors.Is(err, failure.ErrInvalidCredentials):
		return "invalid credentials"
	default:
		return err.Error()
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
	os.Exit(1)
}

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
