package store

import (
	"time"

	"github.com/blackwell-systems/aurtrust/internal/reconcile"
	"github.com/blackwell-systems/aurtrust/internal/trust"
)

// Action is a change made to the ledger.
type Action string

const (
	ActionApprove Action = "approve"
	ActionRemove  Action = "remove"
)

// TrustEvent records one approve or remove. Fingerprint is nil for removals.
type TrustEvent struct {
	ID          int64
	Identity    trust.Identity
	Action      Action
	Fingerprint *trust.Fingerprint
	Timestamp   time.Time
}

// CheckRun summarizes one reconciliation.
type CheckRun struct {
	ID        int64
	StartedAt time.Time
	Counts    reconcile.Counts
}

// CheckResult is the state one package had in a check run. Fingerprint is
// the upstream fingerprint when one was known, otherwise the approved one.
type CheckResult struct {
	RunID       int64
	Identity    trust.Identity
	State       reconcile.Kind
	Fingerprint *trust.Fingerprint
	Cause       string
}
