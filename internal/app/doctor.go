package app

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/config"
	"github.com/blackwell-systems/aurtrust/internal/ledger"
	"github.com/blackwell-systems/aurtrust/internal/watcher"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues and check system health",
	Long: `Runs diagnostic checks on your aurtrust installation.

Checks:
  • Configuration and sources file parse
  • Ledger is readable
  • Audit database is accessible
  • pacman is available for --installed
  • Watch daemon is running

Exits 1 on critical issues and 2 when only warnings were found.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

// diagnosis tallies doctor findings.
type diagnosis struct {
	out      io.Writer
	critical int
	warnings int
}

func (d *diagnosis) ok(format string, a ...any) {
	fmt.Fprintf(d.out, "✓ "+format+"\n", a...)
}

func (d *diagnosis) fail(action, format string, a ...any) {
	d.critical++
	fmt.Fprintf(d.out, "✗ "+format+"\n", a...)
	if action != "" {
		fmt.Fprintf(d.out, "  Action: %s\n", action)
	}
}

func (d *diagnosis) warn(action, format string, a ...any) {
	d.warnings++
	fmt.Fprintf(d.out, "⚠ "+format+"\n", a...)
	if action != "" {
		fmt.Fprintf(d.out, "  Action: %s\n", action)
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	d := &diagnosis{out: cmd.OutOrStdout()}
	fmt.Fprintln(d.out, "Running aurtrust diagnostics...")
	fmt.Fprintln(d.out)

	// Check 1: configuration (already loaded by the root command)
	if env.cfg.ConfigFile != "" {
		d.ok("Config file: %s", env.cfg.ConfigFile)
	} else {
		d.ok("Using default configuration")
	}

	// Check 2: sources file
	if dir, err := config.Dir(); err != nil {
		d.fail("", "Cannot locate config directory: %v", err)
	} else if sources, err := config.LoadSources(dir); err != nil {
		d.fail("Fix or remove the sources file", "Sources file invalid: %v", err)
	} else {
		d.ok("%d extra source(s) configured", len(sources.Sources))
	}

	// Check 3: ledger
	if l, err := ledger.Load(env.cfg.LedgerPath); err != nil {
		if errors.Is(err, ledger.ErrCorruptLedger) {
			d.fail("Restore the ledger from a backup or version control", "%v", err)
		} else {
			d.fail("", "Cannot read ledger: %v", err)
		}
	} else if l.Len() == 0 {
		d.warn("Run 'aurtrust approve <package>' after reviewing a package", "Ledger is empty: %s", env.cfg.LedgerPath)
	} else {
		d.ok("Ledger: %d approved package(s)", l.Len())
	}

	// Check 4: audit database
	if st, err := env.openStore(); err != nil {
		d.fail("Check the --db path", "Audit database: %v", err)
	} else {
		if n, err := st.GetCheckRunCount(); err != nil {
			d.fail("", "Audit database unreadable: %v", err)
		} else {
			d.ok("Audit database: %d check run(s) recorded", n)
		}
		st.Close()
	}

	// Check 5: pacman (warning only)
	if path, err := exec.LookPath("pacman"); err != nil {
		d.warn("--installed needs pacman; install it or skip that flag", "pacman not found in PATH")
	} else {
		d.ok("pacman: %s", path)
	}

	// Check 6: watch daemon (warning only)
	pidFile, err := getDefaultPIDFile()
	if err != nil {
		d.warn("", "Failed to get PID file path: %v", err)
	} else if running, err := watcher.IsDaemonRunning(pidFile); err != nil {
		d.warn("", "Failed to check daemon status: %v", err)
	} else if !running {
		d.warn("Run 'aurtrust watch --daemon'", "Watch daemon not running")
	} else {
		d.ok("Watch daemon running (PID %d)", readPID(pidFile))
	}

	fmt.Fprintln(d.out)
	switch {
	case d.critical > 0:
		fmt.Fprintf(d.out, "Found %d critical issue(s) and %d warning(s).\n", d.critical, d.warnings)
		return fmt.Errorf("diagnostics failed")
	case d.warnings > 0:
		fmt.Fprintf(d.out, "Found %d warning(s). aurtrust is functional but not fully set up.\n", d.warnings)
		return &ExitError{Code: ExitAttention}
	}

	fmt.Fprintln(d.out, "✓ All checks passed!")
	return nil
}
