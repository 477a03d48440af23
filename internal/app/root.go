package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/config"
	"github.com/blackwell-systems/aurtrust/internal/logging"
)

// Exit codes returned by the aurtrust binary.
const (
	ExitOK        = 0
	ExitFatal     = 1
	ExitAttention = 2
)

// ExitError carries a non-zero exit code out of a command. A nil Err means
// the command already reported everything it had to say.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// errAttention is returned when a report contains entries the user must act on.
var errAttention = &ExitError{Code: ExitAttention}

// Version is set at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

var (
	configFile  string
	ledgerPath  string
	dbPath      string
	logLevel    string
	verbose     bool
	quiet       bool
	concurrency int
	timeout     time.Duration
	retries     int

	// env is resolved once per invocation by the root PersistentPreRunE.
	env *environment

	// RootCmd is the root command for aurtrust
	RootCmd = &cobra.Command{
		Use:   "aurtrust",
		Short: "Track which AUR packages you have reviewed and detect changes",
		Long: `aurtrust keeps a ledger of the AUR packages you have reviewed and the exact
upstream revision you approved. Each check fetches current metadata and
classifies every package:

  trusted            upstream matches the approved revision
  changed            upstream moved since approval; review and re-approve
  unknown            never approved
  removed_upstream   approved, but gone from the AUR
  indeterminate      upstream could not be reached; prior trust is kept

Quick Start:
  1. aurtrust check --installed      # see what is installed but unreviewed
  2. aurtrust approve aur/paru       # record the revision you reviewed
  3. aurtrust watch --daemon         # re-check periodically

check exits 2 when any package needs attention, so it can gate scripts.`,
		Example: `  # Check everything in the ledger plus installed foreign packages
  aurtrust check --installed

  # Machine-readable report
  aurtrust check --format json

  # Approve after reviewing the PKGBUILD
  aurtrust approve yay-bin`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupEnvironment,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/aurtrust/config.yaml)")
	flags.StringVar(&ledgerPath, "ledger", "", "ledger path (default: $XDG_CONFIG_HOME/aurtrust/ledger.yaml)")
	flags.StringVar(&dbPath, "db", "", "audit database path (default: ~/.aurtrust/audit.db)")
	flags.StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	flags.IntVar(&concurrency, "concurrency", 0, "parallel upstream requests (default from config: 8)")
	flags.DurationVar(&timeout, "timeout", 0, "overall fetch timeout (default from config: 30s)")
	flags.IntVar(&retries, "retries", 0, "retries for transient upstream errors (default from config: 2)")

	RootCmd.SuggestionsMinimumDistance = 2
	RootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// environment is the resolved configuration and logger for one invocation.
type environment struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func setupEnvironment(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("ledger") {
		cfg.LedgerPath = ledgerPath
	}
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = concurrency
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("retries") {
		cfg.Retries = retries
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ResolveLevel(logLevel, verbose, quiet, cfg.LogLevel)
	if cfg.LogFormat != "" {
		logCfg.Format = cfg.LogFormat
	}

	env = &environment{
		cfg:    cfg,
		logger: logging.New(logCfg),
	}
	env.logger.Debug().
		Str("config", cfg.ConfigFile).
		Str("ledger", cfg.LedgerPath).
		Str("db", cfg.DBPath).
		Msg("configuration loaded")
	return nil
}

// stateDir returns ~/.aurtrust, creating it if needed.
func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".aurtrust")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create aurtrust directory: %w", err)
	}
	return dir, nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.pid"), nil
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.log"), nil
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFatal
}
