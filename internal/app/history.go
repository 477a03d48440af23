package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/output"
	"github.com/blackwell-systems/aurtrust/internal/store"
	"github.com/blackwell-systems/aurtrust/internal/trust"
)

var (
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history [package]",
		Short: "Show the audit log",
		Long: `Show recorded approvals and removals, and recent check runs.

With a package argument, show every approval and removal of that package.
The audit log is informational; the ledger alone decides trust.`,
		Example: `  aurtrust history
  aurtrust history paru
  aurtrust history --limit 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of events and runs to show")

	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit < 1 {
		return fmt.Errorf("--limit must be at least 1, got %d", historyLimit)
	}

	st, err := env.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		id, err := trust.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		events, err := st.GetTrustEvents(id)
		if err != nil {
			return fmt.Errorf("failed to read history of %s: %w", id, err)
		}
		if len(events) == 0 {
			fmt.Fprintf(out, "No recorded approvals or removals of %s.\n", id)
			return nil
		}
		_, err = io.WriteString(out, output.RenderEventTable(events))
		return err
	}

	events, err := st.ListTrustEvents(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read trust events: %w", err)
	}
	runs, err := st.ListCheckRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read check runs: %w", err)
	}

	writeHistory(out, events, runs)
	return nil
}

func writeHistory(out io.Writer, events []*store.TrustEvent, runs []*store.CheckRun) {
	fmt.Fprintln(out, "Trust events:")
	if len(events) == 0 {
		fmt.Fprintln(out, "  none")
	} else {
		io.WriteString(out, output.RenderEventTable(events))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Check runs:")
	if len(runs) == 0 {
		fmt.Fprintln(out, "  none")
	} else {
		io.WriteString(out, output.RenderCheckRunTable(runs))
	}
}
