package app

import (
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/blackwell-systems/aurtrust/internal/ledger"
	"github.com/blackwell-systems/aurtrust/internal/store"
	"github.com/blackwell-systems/aurtrust/internal/trust"
)

func TestApproveRequiresArgs(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run(t, "approve")
	assert.Error(t, err)
}

func TestApproveRefusals(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*fakeAUR)
		reason string
	}{
		{
			name:   "removed upstream",
			setup:  func(*fakeAUR) {},
			reason: "not found upstream",
		},
		{
			name:   "unavailable",
			setup:  func(a *fakeAUR) { a.fail("pkg", http.StatusBadGateway) },
			reason: "try again later",
		},
		{
			name:   "protocol error",
			setup:  func(a *fakeAUR) { a.fail("pkg", http.StatusBadRequest) },
			reason: "protocol",
		},
		{
			name:   "malformed metadata",
			setup:  func(a *fakeAUR) { a.set("pkg", "", 1) },
			reason: "malformed upstream metadata",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			tt.setup(e.aur)

			_, err := e.run(t, "approve", "pkg")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "refused to approve 1 package(s)")
			assert.Contains(t, err.Error(), tt.reason)

			_, statErr := os.Stat(e.ledgerPath)
			assert.True(t, os.IsNotExist(statErr), "nothing approved, nothing saved")
		})
	}
}

func TestApprovePartialSavesTheRest(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("good", "1-1", 10)

	out, err := e.run(t, "approve", "good", "gone")
	require.Error(t, err)
	assert.Contains(t, out, "Approved aur/good")
	assert.Contains(t, err.Error(), "aur/gone: not found upstream")

	l, err := ledger.Load(e.ledgerPath)
	require.NoError(t, err)
	_, ok := l.Get(trust.NewIdentity("aur", "good"))
	assert.True(t, ok)
	assert.Equal(t, 1, l.Len())
}

func TestApproveAlreadyApproved(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.mustRun(t, "approve", "paru")

	out := e.mustRun(t, "approve", "paru")
	assert.Contains(t, out, "aur/paru already approved")

	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()
	events, err := st.GetTrustEvents(trust.NewIdentity("aur", "paru"))
	require.NoError(t, err)
	assert.Len(t, events, 1, "a no-op approval is not an audit event")
}

func TestApproveUnknownRepository(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run(t, "approve", "chaotic/zoom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chaotic/zoom")
}

func TestApproveFromConfiguredSource(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("zoom", "6.0.2-1", 42)

	dir := e.home + "/.config/aurtrust"
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(dir+"/sources", []byte("chaotic="+os.Getenv("AURTRUST_RPC_URL")+"\n"), 0644))

	out := e.mustRun(t, "approve", "chaotic/zoom")
	assert.Contains(t, out, "Approved chaotic/zoom at 6.0.2-1 (42)")
}

func TestRemoveIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.mustRun(t, "approve", "paru")

	out := e.mustRun(t, "remove", "paru")
	assert.Contains(t, out, "Removed aur/paru (was approved at 2.0.3-1 (100))")

	out = e.mustRun(t, "remove", "paru")
	assert.Contains(t, out, "aur/paru is not tracked")

	l, err := ledger.Load(e.ledgerPath)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestRemoveRecordsEvent(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.mustRun(t, "approve", "paru")
	e.mustRun(t, "remove", "paru")

	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()

	events, err := st.GetTrustEvents(trust.NewIdentity("aur", "paru"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, store.ActionApprove, events[0].Action)
	assert.Equal(t, store.ActionRemove, events[1].Action)
	require.NotNil(t, events[1].Fingerprint)
	assert.Equal(t, "100", events[1].Fingerprint.ContentMarker)
}

func TestListFormats(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "list")
	assert.Contains(t, out, "Ledger is empty")

	e.aur.set("paru", "2.0.3-1", 100)
	e.aur.set("yay", "12.3.5-1", 200)
	e.mustRun(t, "approve", "yay", "paru")

	out = e.mustRun(t, "list")
	assert.Contains(t, out, "aur/paru")
	assert.Contains(t, out, "aur/yay")

	out = e.mustRun(t, "list", "--format", "json")
	names := gjson.Get(out, "#.identity.name").Array()
	require.Len(t, names, 2)
	assert.Equal(t, "paru", names[0].String(), "records are ordered by identity")
	assert.Equal(t, "yay", names[1].String())
}

func TestHistory(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.mustRun(t, "approve", "paru")
	e.mustRun(t, "check")
	e.mustRun(t, "remove", "paru")

	out := e.mustRun(t, "history")
	assert.Contains(t, out, "Trust events:")
	assert.Contains(t, out, "approve")
	assert.Contains(t, out, "remove")
	assert.Contains(t, out, "Check runs:")

	out = e.mustRun(t, "history", "paru")
	assert.Contains(t, out, "aur/paru")

	out = e.mustRun(t, "history", "yay")
	assert.Contains(t, out, "No recorded approvals or removals of aur/yay")

	_, err := e.run(t, "history", "--limit", "0")
	assert.Error(t, err)
}
