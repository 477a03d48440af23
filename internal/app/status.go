package app

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/output"
	"github.com/blackwell-systems/aurtrust/internal/store"
	"github.com/blackwell-systems/aurtrust/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger, audit log and watch daemon status",
	Long: `Display where aurtrust keeps its state and what it last saw.

Shows:
  • Ledger location and number of approved packages
  • Audit database location and size
  • The most recent check run and its summary
  • Whether the watch daemon is running

No network access.`,
	Example: `  aurtrust status`,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

const statusLabel = "%-11s"

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	l, err := env.loadLedger()
	if err != nil {
		return err
	}
	ledgerAge := "never saved"
	if fi, err := os.Stat(env.cfg.LedgerPath); err == nil {
		ledgerAge = "saved " + formatDuration(time.Since(fi.ModTime()))
	}
	fmt.Fprintf(out, statusLabel+"%s · %d approved · %s\n", "Ledger:", env.cfg.LedgerPath, l.Len(), ledgerAge)

	fi, err := os.Stat(env.cfg.DBPath)
	if err != nil {
		fmt.Fprintf(out, statusLabel+"%s · not created yet\n", "Audit log:", env.cfg.DBPath)
		fmt.Fprintf(out, statusLabel+"never (run 'aurtrust check')\n", "Last check:")
	} else {
		fmt.Fprintf(out, statusLabel+"%s · %s\n", "Audit log:", env.cfg.DBPath, formatSize(fi.Size()))
		env.withStore("read last check", func(st *store.Store) error {
			return writeLastCheck(out, st)
		})
	}

	pidFile, err := getDefaultPIDFile()
	if err != nil {
		return fmt.Errorf("failed to get PID file path: %w", err)
	}
	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		fmt.Fprintf(out, statusLabel+"running (since %s, PID %d)\n", "Watch:", daemonSince(pidFile), readPID(pidFile))
	} else {
		fmt.Fprintf(out, statusLabel+"stopped (run 'aurtrust watch --daemon')\n", "Watch:")
	}

	return nil
}

func writeLastCheck(out io.Writer, st *store.Store) error {
	total, err := st.GetCheckRunCount()
	if err != nil {
		return err
	}
	runs, err := st.ListCheckRuns(1)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, statusLabel+"never (run 'aurtrust check')\n", "Last check:")
		return nil
	}

	last := runs[0]
	summary := strings.TrimSpace(output.RenderSummary(last.Counts))
	fmt.Fprintf(out, statusLabel+"%s · %s · %d runs recorded\n", "Last check:", formatDuration(time.Since(last.StartedAt)), summary, total)
	return nil
}

// daemonSince returns a human-readable age of the PID file (proxy for daemon start time).
func daemonSince(pidFile string) string {
	fi, err := os.Stat(pidFile)
	if err != nil {
		return "unknown"
	}
	return formatDuration(time.Since(fi.ModTime()))
}

func readPID(pidFile string) int {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return pid
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < 5*time.Second {
		return "just now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%d seconds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
