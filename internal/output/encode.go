package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/blackwell-systems/aurtrust/internal/reconcile"
	"github.com/blackwell-systems/aurtrust/internal/trust"
)

// Format selects how results are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// reportDocument is the machine-readable form of a report.
type reportDocument struct {
	Entries        []reconcile.Entry     `json:"entries" yaml:"entries"`
	Excluded       []reconcile.Exclusion `json:"excluded" yaml:"excluded"`
	NotFound       []trust.Identity      `json:"not_found" yaml:"not_found"`
	Counts         reconcile.Counts      `json:"counts" yaml:"counts"`
	NeedsAttention bool                  `json:"needs_attention" yaml:"needs_attention"`
}

// recordDocument is the machine-readable form of a trust record.
type recordDocument struct {
	Identity    trust.Identity    `json:"identity" yaml:"identity"`
	Fingerprint trust.Fingerprint `json:"approved_fingerprint" yaml:"approved_fingerprint"`
	ApprovedAt  time.Time         `json:"approved_at" yaml:"approved_at"`
}

// WriteReport writes report to w in the given format.
func WriteReport(w io.Writer, report reconcile.Report, format Format) error {
	if format == FormatTable {
		_, err := io.WriteString(w, RenderReport(report))
		return err
	}

	doc := reportDocument{
		Entries:        report.Entries,
		Excluded:       report.Excluded,
		NotFound:       report.NotFound,
		Counts:         report.Counts(),
		NeedsAttention: report.NeedsAttention(),
	}
	if doc.Entries == nil {
		doc.Entries = []reconcile.Entry{}
	}
	if doc.Excluded == nil {
		doc.Excluded = []reconcile.Exclusion{}
	}
	if doc.NotFound == nil {
		doc.NotFound = []trust.Identity{}
	}
	return encode(w, doc, format)
}

// WriteRecords writes ledger records to w in the given format.
func WriteRecords(w io.Writer, records []trust.Record, format Format) error {
	if format == FormatTable {
		_, err := io.WriteString(w, RenderLedgerTable(records))
		return err
	}

	docs := make([]recordDocument, len(records))
	for i, rec := range records {
		docs[i] = recordDocument{
			Identity:    rec.Identity,
			Fingerprint: rec.Fingerprint,
			ApprovedAt:  rec.ApprovedAt.UTC(),
		}
	}
	return encode(w, docs, format)
}

func encode(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil

	case FormatYAML:
		data, err := yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(true))
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("unsupported output format %q", format)
}
