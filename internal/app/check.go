package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/output"
	"github.com/blackwell-systems/aurtrust/internal/pacman"
	"github.com/blackwell-systems/aurtrust/internal/reconcile"
	"github.com/blackwell-systems/aurtrust/internal/store"
	"github.com/blackwell-systems/aurtrust/internal/trust"
)

var (
	checkInstalled bool
	checkFormat    string

	checkCmd = &cobra.Command{
		Use:   "check [packages...]",
		Short: "Compare approved packages against the AUR",
		Long: `Fetch current upstream metadata for every package in the ledger, plus any
packages named on the command line, and classify each one.

Packages are named as "name" (AUR) or "repo/name" for repositories listed in
the sources file. Unreviewed packages show as unknown; they only need
attention once approved.

Exit status:
  0  every package is trusted or unknown
  2  at least one package changed, was removed upstream, could not be
     checked, or returned malformed metadata
  1  the check itself failed (for example a corrupt ledger)`,
		Example: `  # Check the ledger
  aurtrust check

  # Include installed foreign packages from pacman -Qm
  aurtrust check --installed

  # Check specific packages, as YAML
  aurtrust check paru yay-bin --format yaml`,
		RunE: runCheck,
	}
)

func init() {
	checkCmd.Flags().BoolVar(&checkInstalled, "installed", false, "also check foreign packages reported by pacman -Qm")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "o", "table", "output format: table, json, yaml")

	RootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(checkFormat)
	if err != nil {
		return err
	}

	requested, err := parseIdentities(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if checkInstalled {
		installed, err := installedIdentities(ctx)
		if err != nil {
			return err
		}
		requested = append(requested, installed...)
	}

	l, err := env.loadLedger()
	if err != nil {
		return err
	}

	started := time.Now()
	report, err := env.fetchAndReconcile(ctx, l, requested, fetchOptions{
		progress:    format == output.FormatTable && output.IsTTY(os.Stderr),
		description: "Fetching upstream metadata",
	})
	if err != nil {
		return err
	}

	if err := output.WriteReport(cmd.OutOrStdout(), report, format); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	env.recordRun(started, report)

	if report.NeedsAttention() {
		return errAttention
	}
	return nil
}

// installedIdentities lists foreign packages, minus the configured ignore list.
func installedIdentities(ctx context.Context) ([]trust.Identity, error) {
	pkgs, err := pacman.ListForeign(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := pacman.Identities(pkgs, env.cfg.Ignore)
	if err != nil {
		return nil, err
	}
	env.logger.Debug().Int("foreign", len(pkgs)).Int("checked", len(ids)).Msg("installed packages")
	return ids, nil
}

// recordRun stores the run in the audit log and logs every state transition
// since the previous run.
func (e *environment) recordRun(started time.Time, report reconcile.Report) {
	e.withStore("record check run", func(st *store.Store) error {
		previous, err := st.LatestStates()
		if err != nil {
			return err
		}

		for _, entry := range report.Entries {
			prev, seen := previous[entry.Identity]
			if !seen || prev == entry.Classification.Kind {
				continue
			}
			ev := e.logger.Info()
			if entry.Classification.Kind.NeedsAttention() {
				ev = e.logger.Warn()
			}
			ev.Str("package", entry.Identity.String()).
				Str("from", string(prev)).
				Str("to", string(entry.Classification.Kind)).
				Msg("state changed")
		}

		runID, err := st.InsertCheckRun(started, report)
		if err != nil {
			return err
		}
		e.logger.Debug().Int64("run", runID).Msg("check run recorded")
		return nil
	})
}
