// Package cli implements the runcheck command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up when the command returns.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kurun/runcheck/internal/config"
	"github.com/kurun/runcheck/internal/output"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

// Command group identifiers.
const (
	groupAuth    = "auth"
	groupSession = "session"
	groupAPI     = "api"
	groupConfig  = "config"
)

// BuildInfo is injected by the linker at release time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	cmdCtx    *CommandContext
	buildInfo BuildInfo
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "runcheck",
	Short: "Session-aware command-line client for the runcheck backend",
	Long: `runcheck signs in to the runcheck backend and keeps the session alive.

Access tokens are refreshed two minutes before they expire. Requests issued
through "runcheck api" carry the bearer token and recover from a single 401 by
refreshing the session and retrying once.

Credentials are kept in the configured store: an age-encrypted file (default),
the OS keyring, redis, or memory only.

Example:
  runcheck login --email a@ku.th
  runcheck session status
  runcheck api get /api/runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute(info BuildInfo) error {
	buildInfo = info
	rootCmd.Version = formatVersion(info)
	walkCommands(rootCmd, listSubcommands)
	defer cleanup()

	if err := rootCmd.Execute(); err != nil {
		formatErr(err)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return rcerr.ExitCode(err)
}

// formatVersion renders build info as a single line.
func formatVersion(info BuildInfo) string {
	v, commit, date := info.Version, info.Commit, info.Date
	if v == "" {
		v = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", v, commit, date)
}

// formatErr prints err to stderr in the active output format.
func formatErr(err error) {
	format := output.FormatText
	if formatter != nil {
		format = formatter.Format()
	}
	_ = output.FormatError(os.Stderr, err, format)
}

// initGlobals loads configuration and builds the command context.
func initGlobals(cmd *cobra.Command) error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	configPath := config.Path(home)
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		warning := ""
		if !errors.Is(err, fs.ErrNotExist) {
			warning = fmt.Sprintf("ignoring unreadable config %s: %v", configPath, err)
		}
		cfg = config.Defaults()
		if warning != "" {
			cfg.Warnings = append(cfg.Warnings, warning)
		}
	}
	cfg.Home = home

	config.ApplyEnvironment(cfg)

	if homeDir != "" {
		cfg.Home = homeDir
	}
	rebaseHomePaths(cfg)
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if _, err := output.ParseFormat(outputFormat); err != nil {
		return rcerr.WithCause(rcerr.ErrInvalidInput, err)
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}

	logLevel := config.ParseLogLevel(cfg.Logging.Level)
	logger, err = config.NewLogger(logLevel, cfg.Logging.File)
	if err != nil {
		logger = config.NullLogger()
	}

	formatter, err = output.Resolve(cmd.OutOrStdout(), cfg.Output.DefaultFormat, cfg.Output.Color)
	if err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("output.default_format: %v", err))
		formatter, _ = output.Resolve(cmd.OutOrStdout(), string(output.FormatAuto), cfg.Output.Color)
	}
	output.SetDecorated(formatter.Color())

	for _, w := range cfg.Warnings {
		logger.Error("config: %s", w)
		output.Warn(cmd.ErrOrStderr(), w)
	}

	if existing := GetCmdContext(cmd); existing != nil {
		cmdCtx = existing
		return nil
	}
	cmdCtx = NewCommandContext(cfg, logger, formatter)
	SetCmdContext(cmd, cmdCtx)
	return nil
}

// rebaseHomePaths moves default credential and log paths under a non-default home.
func rebaseHomePaths(c *config.Config) {
	const defaultPrefix = "~/.runcheck/"
	home := config.ExpandHome(c.Home)
	if home == "" || home == config.DefaultHome() {
		return
	}
	for _, p := range []*string{&c.Store.File, &c.Store.IdentityFile, &c.Logging.File} {
		if strings.HasPrefix(*p, defaultPrefix) {
			*p = filepath.Join(home, strings.TrimPrefix(*p, defaultPrefix))
		}
	}
}

// cleanup releases resources. It is safe to call more than once.
func cleanup() {
	if cmdCtx != nil {
		cmdCtx.Close()
	}
	if logger != nil {
		_ = logger.Close()
	}
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

// Context returns the global command context.
func Context() *CommandContext {
	return cmdCtx
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "runcheck data directory (default: ~/.runcheck)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupAuth, Title: "Authentication:"},
		&cobra.Group{ID: groupSession, Title: "Session:"},
		&cobra.Group{ID: groupAPI, Title: "API requests:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)
	rootCmd.SetVersionTemplate("runcheck {{.Version}}\n")
}
