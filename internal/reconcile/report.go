package reconcile

import (
	"github.com/blackwell-systems/aurtrust/internal/trust"
	"github.com/blackwell-systems/aurtrust/internal/upstream"
)

// Entry is the classification of one package. Maintainers is an advisory
// verdict set by CheckMaintainers; it is nil when maintainers were not checked.
type Entry struct {
	Identity       trust.Identity         `json:"identity" yaml:"identity"`
	Classification Classification         `json:"classification" yaml:"classification"`
	Maintainers    *trust.MaintainerCheck `json:"maintainers,omitempty" yaml:"maintainers,omitempty"`
}

// Exclusion is a package left out of the entries because upstream metadata
// for it was unusable.
type Exclusion struct {
	Identity trust.Identity `json:"identity" yaml:"identity"`
	Cause    error          `json:"-" yaml:"-"`
	Reason   string         `json:"cause" yaml:"cause"`
}

// Report is the result of one reconciliation. Entries and Excluded are
// ordered by identity.
type Report struct {
	Entries  []Entry     `json:"entries" yaml:"entries"`
	Excluded []Exclusion `json:"excluded" yaml:"excluded"`
	// NotFound lists requested identities that are neither approved nor
	// known upstream. They have no state and are informational only.
	NotFound []trust.Identity `json:"not_found,omitempty" yaml:"not_found,omitempty"`
}

// Counts summarizes a report by state.
type Counts struct {
	Trusted         int `json:"trusted" yaml:"trusted"`
	Changed         int `json:"changed" yaml:"changed"`
	Unknown         int `json:"unknown" yaml:"unknown"`
	RemovedUpstream int `json:"removed_upstream" yaml:"removed_upstream"`
	Indeterminate   int `json:"indeterminate" yaml:"indeterminate"`
	Excluded        int `json:"excluded" yaml:"excluded"`
}

// Of returns the count for a single kind.
func (c Counts) Of(k Kind) int {
	switch k {
	case Trusted:
		return c.Trusted
	case Changed:
		return c.Changed
	case Unknown:
		return c.Unknown
	case RemovedUpstream:
		return c.RemovedUpstream
	case Indeterminate:
		return c.Indeterminate
	}
	return 0
}

// Total returns the number of classified and excluded packages.
func (c Counts) Total() int {
	return c.Trusted + c.Changed + c.Unknown + c.RemovedUpstream + c.Indeterminate + c.Excluded
}

// Counts tallies the report.
func (r Report) Counts() Counts {
	var c Counts
	for _, e := range r.Entries {
		switch e.Classification.Kind {
		case Trusted:
			c.Trusted++
		case Changed:
			c.Changed++
		case Unknown:
			c.Unknown++
		case RemovedUpstream:
			c.RemovedUpstream++
		case Indeterminate:
			c.Indeterminate++
		}
	}
	c.Excluded = len(r.Excluded)
	return c
}

// NeedsAttention reports whether any package changed, disappeared, could
// not be checked or was excluded.
func (r Report) NeedsAttention() bool {
	if len(r.Excluded) > 0 {
		return true
	}
	for _, e := range r.Entries {
		if e.Classification.Kind.NeedsAttention() {
			return true
		}
	}
	return false
}

// Lookup returns the entry for id, if the report has one.
func (r Report) Lookup(id trust.Identity) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Identity == id {
			return e, true
		}
	}
	return Entry{}, false
}

// CheckMaintainers attaches a maintainer verdict to every entry whose package
// was fetched and exists upstream. Classifications are left as they are.
func (r *Report) CheckMaintainers(results map[trust.Identity]upstream.Result, trusted []string) {
	for i := range r.Entries {
		e := &r.Entries[i]
		res, ok := results[e.Identity]
		if !ok || res.Err != nil || res.Snapshot.Removed() {
			continue
		}
		check := trust.CheckMaintainers(res.Snapshot.Maintainers, trusted)
		e.Maintainers = &check
	}
}
