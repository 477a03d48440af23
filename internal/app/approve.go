package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/aurtrust/internal/output"
	"github.com/blackwell-systems/aurtrust/internal/store"
	"github.com/blackwell-systems/aurtrust/internal/trust"
	"github.com/blackwell-systems/aurtrust/internal/upstream"
)

var approveCmd = &cobra.Command{
	Use:   "approve <packages...>",
	Short: "Record the current upstream revision as reviewed",
	Long: `Fetch each package and record its current upstream revision in the ledger.

Run this after reviewing the PKGBUILD and sources. A package that is gone
from upstream, returns malformed metadata, or cannot be fetched is refused;
the remaining packages are still approved.`,
	Example: `  aurtrust approve paru
  aurtrust approve aur/yay-bin chaotic/zoom`,
	Args: cobra.MinimumNArgs(1),
	RunE: runApprove,
}

func init() {
	RootCmd.AddCommand(approveCmd)
}

// refusal is a package approve could not record.
type refusal struct {
	id     trust.Identity
	reason string
}

func runApprove(cmd *cobra.Command, args []string) error {
	ids, err := parseIdentities(args)
	if err != nil {
		return err
	}

	l, err := env.loadLedger()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := env.newFetcher(nil)
	if err != nil {
		return err
	}

	spinner := output.NewSpinner(fmt.Sprintf("Fetching %d package(s)", len(ids)))
	if output.IsTTY(os.Stderr) {
		spinner.Start()
	}
	results := f.FetchAll(ctx, ids)
	spinner.Stop()

	now := time.Now()
	out := cmd.OutOrStdout()
	var approved []*store.TrustEvent
	var refused []refusal

	for _, id := range ids {
		res := results[id]
		switch {
		case res.Err != nil:
			reason := res.Err.Error()
			if unavailable(res.Err) {
				reason += " (try again later)"
			}
			refused = append(refused, refusal{id, reason})
			continue
		case res.Snapshot.Removed():
			refused = append(refused, refusal{id, "not found upstream"})
			continue
		}

		fp := *res.Snapshot.Fingerprint
		if rec, ok := l.Get(id); ok && trust.Compare(rec.Fingerprint, fp) == trust.Same {
			fmt.Fprintf(out, "%s already approved at %s\n", id, fp)
			continue
		}
		if err := l.Approve(id, fp, now); err != nil {
			refused = append(refused, refusal{id, err.Error()})
			continue
		}
		approved = append(approved, &store.TrustEvent{
			Identity:    id,
			Action:      store.ActionApprove,
			Fingerprint: &fp,
			Timestamp:   now,
		})
	}

	if err := env.saveLedger(l); err != nil {
		return err
	}

	for _, ev := range approved {
		fmt.Fprintf(out, "Approved %s at %s\n", ev.Identity, ev.Fingerprint)
	}
	env.recordEvents(approved)

	if len(refused) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "refused to approve %d package(s):", len(refused))
		for _, r := range refused {
			fmt.Fprintf(&b, "\n  %s: %s", r.id, r.reason)
		}
		return errors.New(b.String())
	}
	return nil
}

// recordEvents appends approve/remove events to the audit log.
func (e *environment) recordEvents(events []*store.TrustEvent) {
	if len(events) == 0 {
		return
	}
	e.withStore("record trust events", func(st *store.Store) error {
		for _, ev := range events {
			if _, err := st.InsertTrustEvent(ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// unavailable reports whether err is an upstream availability failure.
func unavailable(err error) bool {
	return errors.Is(err, upstream.ErrUnavailable)
}
