package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/trust"
	"github.com/blackwell-systems/aurtrust/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool
	watchInstalled   bool
	watchInterval    time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-check packages periodically",
		Long: `Run a check immediately, then again every watch interval and whenever the
ledger file changes. Each run is logged as one structured event, with a
warning for every package whose state changed since the previous run, and
recorded in the audit log.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a background process
  • Stop: Stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  aurtrust watch

  # Run as background daemon, checking installed packages every 6 hours
  aurtrust watch --daemon --installed --interval 6h

  # Stop running daemon
  aurtrust watch --stop`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.aurtrust/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.aurtrust/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().BoolVar(&watchInstalled, "installed", false, "also check foreign packages reported by pacman -Qm")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "time between checks (default from config: 1h)")

	watchCmd.Flags().MarkHidden("daemon-child")
	watchCmd.MarkFlagsMutuallyExclusive("daemon", "stop")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchPIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = defaultPID
	}
	if watchLogFile == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchLogFile = defaultLog
	}

	out := cmd.OutOrStdout()

	if watchStop {
		return stopWatchDaemon(out)
	}

	if watchDaemon {
		return startWatchDaemon(out)
	}

	interval := env.cfg.WatchInterval
	if cmd.Flags().Changed("interval") {
		if watchInterval < time.Minute {
			return fmt.Errorf("--interval must be at least 1m, got %s", watchInterval)
		}
		interval = watchInterval
	}

	if err := os.MkdirAll(filepath.Dir(env.cfg.LedgerPath), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	w, err := watcher.New(env.cfg.LedgerPath, interval, env.watchCheck(watchInstalled), env.logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if watchDaemonChild {
		// stdout and stderr are redirected to the log file.
		return watcher.RunDaemon(ctx, w, watchPIDFile)
	}

	fmt.Fprintf(out, "Watching %s every %s (press Ctrl+C to stop)...\n", env.cfg.LedgerPath, interval)
	return watcher.RunDaemon(ctx, w, "")
}

// watchCheck returns the check the watcher runs. The ledger is reloaded on
// every run so approvals made elsewhere are picked up.
func (e *environment) watchCheck(installed bool) watcher.CheckFunc {
	return func(ctx context.Context, trigger watcher.Trigger) error {
		l, err := e.loadLedger()
		if err != nil {
			return err
		}

		var requested []trust.Identity
		if installed {
			requested, err = installedIdentities(ctx)
			if err != nil {
				return err
			}
		}

		started := time.Now()
		report, err := e.fetchAndReconcile(ctx, l, requested, fetchOptions{})
		if err != nil {
			return err
		}
		e.recordRun(started, report)

		counts := report.Counts()
		ev := e.logger.Info()
		if report.NeedsAttention() {
			ev = e.logger.Warn()
		}
		ev.Str("trigger", string(trigger)).
			Int("trusted", counts.Trusted).
			Int("changed", counts.Changed).
			Int("unknown", counts.Unknown).
			Int("removed_upstream", counts.RemovedUpstream).
			Int("indeterminate", counts.Indeterminate).
			Int("excluded", counts.Excluded).
			Bool("needs_attention", report.NeedsAttention()).
			Msg("reconciled")
		return nil
	}
}

func stopWatchDaemon(out io.Writer) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		if errors.Is(err, watcher.ErrDaemonNotRunning) {
			fmt.Fprintln(out, "Daemon is not running")
			return nil
		}
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Fprintln(out, "✓ Daemon stopped")
	return nil
}

func startWatchDaemon(out io.Writer) error {
	pid, err := watcher.StartDaemon(watchPIDFile, watchLogFile, daemonChildArgs(os.Args[1:])...)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Fprintf(out, "✓ Watch daemon started (PID %d)\n", pid)
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: aurtrust watch --stop\n")
	return nil
}

// daemonChildArgs rewrites the command line of `watch --daemon` into the
// command line of the detached child, keeping every other flag.
func daemonChildArgs(args []string) []string {
	child := make([]string, 0, len(args)+1)
	for _, a := range args {
		if a == "--daemon" || a == "--daemon=true" {
			continue
		}
		child = append(child, a)
	}
	return append(child, "--daemon-child", "--pid-file", watchPIDFile)
}
