// Package reconcile compares the trust ledger with upstream snapshots and
// classifies every package.
//
// Reconcile is a pure function of its inputs: it performs no I/O, never
// mutates the ledger and produces entries in identity order, so two runs
// over the same inputs yield identical reports. Packages only become
// Trusted through an explicit ledger approval; nothing here promotes them.
package reconcile

import (
	"errors"
	"sort"

	"github.com/blackwell-systems/aurtrust/internal/trust"
	"github.com/blackwell-systems/aurtrust/internal/upstream"
)

// ErrNotFetched is the cause recorded for an identity that has no fetch result.
var ErrNotFetched = errors.New("no upstream result")

// Kind is the trust state of a package.
type Kind string

const (
	// Trusted means upstream still matches the approved fingerprint.
	Trusted Kind = "trusted"
	// Changed means upstream moved away from the approved fingerprint.
	Changed Kind = "changed"
	// Unknown means the package exists upstream but was never approved.
	Unknown Kind = "unknown"
	// RemovedUpstream means an approved package no longer exists upstream.
	RemovedUpstream Kind = "removed_upstream"
	// Indeterminate means upstream could not be consulted this run.
	Indeterminate Kind = "indeterminate"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{Trusted, Changed, Unknown, RemovedUpstream, Indeterminate}

// NeedsAttention reports whether a package in this state needs user review.
func (k Kind) NeedsAttention() bool {
	switch k {
	case Changed, RemovedUpstream, Indeterminate:
		return true
	}
	return false
}

// Classification is the state of one package together with the fingerprints
// that justify it. Old is the approved fingerprint, New the upstream one;
// either is nil when it does not apply.
type Classification struct {
	Kind   Kind               `json:"state" yaml:"state"`
	Old    *trust.Fingerprint `json:"approved,omitempty" yaml:"approved,omitempty"`
	New    *trust.Fingerprint `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Cause  error              `json:"-" yaml:"-"`
	Reason string             `json:"cause,omitempty" yaml:"cause,omitempty"`
}

func indeterminate(old *trust.Fingerprint, cause error) Classification {
	return Classification{Kind: Indeterminate, Old: old, Cause: cause, Reason: cause.Error()}
}

// Classify computes the state of a package from its trust record (nil when
// never approved) and a successful upstream snapshot. It returns false when
// there is nothing to report: no record and nothing upstream.
func Classify(record *trust.Record, snap upstream.Snapshot) (Classification, bool) {
	switch {
	case record == nil && snap.Removed():
		return Classification{}, false

	case record == nil:
		cur := *snap.Fingerprint
		return Classification{Kind: Unknown, New: &cur}, true

	case snap.Removed():
		old := record.Fingerprint
		return Classification{Kind: RemovedUpstream, Old: &old}, true
	}

	old := record.Fingerprint
	cur := *snap.Fingerprint
	if trust.Compare(old, cur) == trust.Same {
		return Classification{Kind: Trusted, Old: &old, New: &cur}, true
	}
	return Classification{Kind: Changed, Old: &old, New: &cur}, true
}

// LedgerView is the read-only part of the ledger reconciliation needs.
type LedgerView interface {
	Get(id trust.Identity) (trust.Record, bool)
	Identities() []trust.Identity
}

// Reconcile classifies every identity that is in the ledger, in results or
// in requested. Per-package fetch failures become Indeterminate entries and
// malformed upstream metadata becomes an Exclusion.
func Reconcile(view LedgerView, results map[trust.Identity]upstream.Result, requested []trust.Identity) Report {
	seen := make(map[trust.Identity]bool)
	var ids []trust.Identity
	add := func(id trust.Identity) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range view.Identities() {
		add(id)
	}
	for id := range results {
		add(id)
	}
	for _, id := range requested {
		add(id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Less(ids[j])
	})

	report := Report{
		Entries:  []Entry{},
		Excluded: []Exclusion{},
	}
	for _, id := range ids {
		var record *trust.Record
		var old *trust.Fingerprint
		if rec, ok := view.Get(id); ok {
			record = &rec
			fp := rec.Fingerprint
			old = &fp
		}

		res, fetched := results[id]
		switch {
		case !fetched:
			report.Entries = append(report.Entries, Entry{Identity: id, Classification: indeterminate(old, ErrNotFetched)})

		case errors.Is(res.Err, trust.ErrMalformedMetadata):
			report.Excluded = append(report.Excluded, Exclusion{Identity: id, Cause: res.Err, Reason: res.Err.Error()})

		case res.Err != nil:
			report.Entries = append(report.Entries, Entry{Identity: id, Classification: indeterminate(old, res.Err)})

		default:
			c, ok := Classify(record, res.Snapshot)
			if !ok {
				report.NotFound = append(report.NotFound, id)
				continue
			}
			report.Entries = append(report.Entries, Entry{Identity: id, Classification: c})
		}
	}
	return report
}
