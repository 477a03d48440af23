// Package output provides terminal output utilities for aurtrust.
//
// This package includes:
//   - Table rendering for reconciliation reports, ledger contents and audit history
//   - JSON and YAML encodings of reports for scripting
//   - Progress bars and spinners for upstream fetches
//
// Tables use fixed-width columns and ANSI colors for state labels. Colors are
// only emitted when stdout is a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/aurtrust/internal/reconcile"
	"github.com/blackwell-systems/aurtrust/internal/store"
	"github.com/blackwell-systems/aurtrust/internal/trust"
)

// ANSI color codes for state display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// stateColor returns the ANSI color code for a trust state.
func stateColor(k reconcile.Kind) string {
	switch k {
	case reconcile.Trusted:
		return colorGreen
	case reconcile.Changed:
		return colorYellow
	case reconcile.RemovedUpstream, store.StateExcluded:
		return colorRed
	case reconcile.Unknown:
		return colorCyan
	default:
		return colorGray
	}
}

// stateLabel renders a state padded to width, colored when enabled.
// Padding happens before coloring so escape codes do not skew columns.
func stateLabel(k reconcile.Kind, width int) string {
	return colorize(stateColor(k), fmt.Sprintf("%-*s", width, string(k)))
}

// RenderReport renders a reconciliation report as a table followed by a
// summary line. Excluded packages are listed after the table.
func RenderReport(report reconcile.Report) string {
	var sb strings.Builder

	if len(report.Entries) == 0 && len(report.Excluded) == 0 {
		sb.WriteString("No packages to check.\n")
	} else if len(report.Entries) > 0 {
		sb.WriteString(fmt.Sprintf("%-28s %-17s %-22s %-22s %s\n",
			"Package", "State", "Approved", "Upstream", "Note"))
		sb.WriteString(strings.Repeat("─", 100))
		sb.WriteString("\n")

		for _, e := range report.Entries {
			c := e.Classification
			note := formatNote(c)
			if m := formatMaintainers(e.Maintainers); m != "" {
				if note != "" {
					note += "; "
				}
				note += m
			}
			sb.WriteString(fmt.Sprintf("%-28s %s %-22s %-22s %s\n",
				truncate(e.Identity.String(), 28),
				stateLabel(c.Kind, 17),
				truncate(formatFingerprint(c.Old), 22),
				truncate(formatFingerprint(c.New), 22),
				note))
		}
	}

	if len(report.Excluded) > 0 {
		sb.WriteString("\nExcluded (unusable upstream metadata):\n")
		for _, x := range report.Excluded {
			sb.WriteString(fmt.Sprintf("  %-28s %s\n", truncate(x.Identity.String(), 28), x.Reason))
		}
	}

	if len(report.NotFound) > 0 {
		sb.WriteString("\nNot found upstream and not tracked:\n")
		for _, id := range report.NotFound {
			sb.WriteString(fmt.Sprintf("  %s\n", id))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(RenderSummary(report.Counts()))
	return sb.String()
}

// RenderSummary renders the one-line state tally of a report.
func RenderSummary(c reconcile.Counts) string {
	parts := make([]string, 0, len(reconcile.Kinds)+1)
	for _, k := range reconcile.Kinds {
		if n := c.Of(k); n > 0 {
			parts = append(parts, colorize(stateColor(k), fmt.Sprintf("%d %s", n, strings.ReplaceAll(string(k), "_", " "))))
		}
	}
	if c.Excluded > 0 {
		parts = append(parts, colorize(colorRed, fmt.Sprintf("%d excluded", c.Excluded)))
	}

	noun := "packages"
	if c.Total() == 1 {
		noun = "package"
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d %s\n", c.Total(), noun)
	}
	return fmt.Sprintf("%d %s: %s\n", c.Total(), noun, strings.Join(parts, ", "))
}

// formatNote explains a classification in a few words.
func formatNote(c reconcile.Classification) string {
	switch c.Kind {
	case reconcile.Changed:
		if c.Old.Version == c.New.Version {
			return "content changed, same version"
		}
		if d := trust.VersionDirection(*c.Old, *c.New); d != trust.Unordered {
			return string(d)
		}
		return "version changed"
	case reconcile.Unknown:
		return "not reviewed"
	case reconcile.RemovedUpstream:
		return "gone from upstream"
	case reconcile.Indeterminate:
		return truncate(c.Reason, 60)
	}
	return ""
}

// formatMaintainers is empty when maintainers were not checked.
func formatMaintainers(m *trust.MaintainerCheck) string {
	switch {
	case m == nil:
		return ""
	case m.Verdict == trust.MaintainersTrusted:
		return "maintainers trusted"
	}
	return colorize(colorYellow, strings.Join(m.Reasons, ", "))
}

func formatFingerprint(fp *trust.Fingerprint) string {
	if fp == nil {
		return "-"
	}
	return fp.String()
}

// RenderLedgerTable renders the trust records in the ledger.
func RenderLedgerTable(records []trust.Record) string {
	if len(records) == 0 {
		return "Ledger is empty. Approve packages with 'aurtrust approve <package>'.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-28s %-24s %-14s %s\n",
		"Package", "Version", "Marker", "Approved"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, rec := range records {
		sb.WriteString(fmt.Sprintf("%-28s %-24s %-14s %s\n",
			truncate(rec.Identity.String(), 28),
			truncate(rec.Fingerprint.Version, 24),
			truncate(rec.Fingerprint.ContentMarker, 14),
			formatRelativeTime(rec.ApprovedAt)))
	}

	sb.WriteString(fmt.Sprintf("\n%d trusted packages\n", len(records)))
	return sb.String()
}

// RenderEventTable renders approve and remove events from the audit log.
func RenderEventTable(events []*store.TrustEvent) string {
	if len(events) == 0 {
		return "No approvals or removals recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-20s %-9s %-28s %s\n",
		"Time", "Action", "Package", "Fingerprint"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, ev := range events {
		sb.WriteString(fmt.Sprintf("%-20s %-9s %-28s %s\n",
			ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
			string(ev.Action),
			truncate(ev.Identity.String(), 28),
			formatFingerprint(ev.Fingerprint)))
	}

	return sb.String()
}

// RenderCheckRunTable renders the tallies of recent check runs.
func RenderCheckRunTable(runs []*store.CheckRun) string {
	if len(runs) == 0 {
		return "No check runs recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-6s %-20s %-8s %-8s %-8s %-8s %-14s %s\n",
		"Run", "Started", "Trusted", "Changed", "Unknown", "Removed", "Indeterminate", "Excluded"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, run := range runs {
		sb.WriteString(fmt.Sprintf("%-6d %-20s %-8d %-8d %-8d %-8d %-14d %d\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Counts.Trusted,
			run.Counts.Changed,
			run.Counts.Unknown,
			run.Counts.RemovedUpstream,
			run.Counts.Indeterminate,
			run.Counts.Excluded))
	}

	return sb.String()
}

// formatRelativeTime formats a time relative to now (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24/7), "week")
	case diff < 365*24*time.Hour:
		return plural(int(diff.Hours()/24/30), "month")
	default:
		return plural(int(diff.Hours()/24/365), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
