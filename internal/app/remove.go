package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/store"
)

var removeCmd = &cobra.Command{
	Use:   "remove <packages...>",
	Short: "Stop tracking packages",
	Long: `Drop packages from the ledger. Typically used once a package has been
removed upstream and uninstalled. Removing a package that is not tracked is
not an error.

This does not uninstall anything.`,
	Example: `  aurtrust remove old-tool
  aurtrust remove aur/a aur/b`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	RootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	ids, err := parseIdentities(args)
	if err != nil {
		return err
	}

	l, err := env.loadLedger()
	if err != nil {
		return err
	}

	now := time.Now()
	out := cmd.OutOrStdout()
	var removed []*store.TrustEvent

	for _, id := range ids {
		rec, _ := l.Get(id)
		if !l.Remove(id) {
			fmt.Fprintf(out, "%s is not tracked\n", id)
			continue
		}
		fp := rec.Fingerprint
		removed = append(removed, &store.TrustEvent{
			Identity:    id,
			Action:      store.ActionRemove,
			Fingerprint: &fp,
			Timestamp:   now,
		})
	}

	if err := env.saveLedger(l); err != nil {
		return err
	}

	for _, ev := range removed {
		fmt.Fprintf(out, "Removed %s (was approved at %s)\n", ev.Identity, ev.Fingerprint)
	}
	env.recordEvents(removed)
	return nil
}
