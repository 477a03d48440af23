// Package ledger persists which package revisions a user has approved.
//
// The ledger is the only source of truth across runs. It is loaded once,
// mutated in memory by Approve and Remove, and written back with Save, which
// replaces the document atomically so a crash never leaves a partial file.
//
// Example usage:
//
//	l, err := ledger.Load(path)
//	if err != nil {
//		return err
//	}
//	l.Approve(trust.NewIdentity("aur", "yay"), fp, time.Now())
//	if err := l.Save(path); err != nil {
//		return err
//	}
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/blackwell-systems/aurtrust/internal/trust"
)

// Ledger maps package identities to the record of their last approval.
// A Ledger is owned by a single goroutine; it does no locking.
type Ledger struct {
	records map[trust.Identity]trust.Record
	dirty   bool
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{records: make(map[trust.Identity]trust.Record)}
}

// Get returns the trust record for id, if any.
func (l *Ledger) Get(id trust.Identity) (trust.Record, bool) {
	rec, ok := l.records[id]
	return rec, ok
}

// Approve records fp as the reviewed revision of id, replacing any earlier
// approval. It only changes memory; call Save to persist.
func (l *Ledger) Approve(id trust.Identity, fp trust.Fingerprint, now time.Time) error {
	if err := id.Validate(); err != nil {
		return fmt.Errorf("cannot approve: %w", err)
	}
	if _, err := trust.NewFingerprint(fp.Version, fp.ContentMarker); err != nil {
		return fmt.Errorf("cannot approve %s: %w", id, err)
	}

	l.records[id] = trust.Record{
		Identity:    id,
		Fingerprint: fp,
		ApprovedAt:  now.UTC(),
	}
	l.dirty = true
	return nil
}

// Remove drops the record for id. Removing an untracked identity is a no-op.
// It reports whether a record was dropped.
func (l *Ledger) Remove(id trust.Identity) bool {
	if _, ok := l.records[id]; !ok {
		return false
	}
	delete(l.records, id)
	l.dirty = true
	return true
}

// Len returns the number of tracked packages.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Dirty reports whether the ledger changed since it was loaded or last saved.
func (l *Ledger) Dirty() bool {
	return l.dirty
}

// Identities returns every tracked identity in order.
func (l *Ledger) Identities() []trust.Identity {
	ids := make([]trust.Identity, 0, len(l.records))
	for id := range l.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Less(ids[j])
	})
	return ids
}

// Records returns every trust record ordered by identity.
func (l *Ledger) Records() []trust.Record {
	ids := l.Identities()
	records := make([]trust.Record, len(ids))
	for i, id := range ids {
		records[i] = l.records[id]
	}
	return records
}
