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

func TestCheckCommandFlags(t *testing.T) {
	for _, name := range []string{"installed", "format"} {
		assert.NotNil(t, checkCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.NotEmpty(t, checkCmd.Long)
	assert.NotEmpty(t, checkCmd.Example)
}

func TestCheckEmptyLedger(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "check")
	assert.Contains(t, out, "No packages to check.")
}

func TestApproveThenCheckIsTrusted(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 1710000000)

	out := e.mustRun(t, "approve", "paru")
	assert.Contains(t, out, "Approved aur/paru at 2.0.3-1 (1710000000)")

	l, err := ledger.Load(e.ledgerPath)
	require.NoError(t, err)
	rec, ok := l.Get(trust.NewIdentity("aur", "paru"))
	require.True(t, ok)
	assert.Equal(t, trust.Fingerprint{Version: "2.0.3-1", ContentMarker: "1710000000"}, rec.Fingerprint)

	out = e.mustRun(t, "check")
	assert.Contains(t, out, "aur/paru")
	assert.Contains(t, out, "trusted")
	assert.Contains(t, out, "1 package: 1 trusted")
}

func TestCheckDetectsChange(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.mustRun(t, "approve", "paru")

	// Same version, new upload.
	e.aur.set("paru", "2.0.3-1", 200)

	out, err := e.run(t, "check", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitAttention, ExitCode(err))

	assert.True(t, gjson.Get(out, "needs_attention").Bool())
	entry := gjson.Get(out, `entries.#(identity.name=="paru")`)
	require.True(t, entry.Exists(), out)
	assert.Equal(t, "changed", entry.Get("classification.state").String())
	assert.Equal(t, "100", entry.Get("classification.approved.content_marker").String())
	assert.Equal(t, "200", entry.Get("classification.upstream.content_marker").String())

	// Re-approval restores trust.
	e.mustRun(t, "approve", "paru")
	out = e.mustRun(t, "check", "-o", "json")
	assert.Equal(t, "trusted", gjson.Get(out, "entries.0.classification.state").String())
}

func TestCheckRemovedUpstreamUntilRemoved(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("old-tool", "1.0-1", 100)
	e.mustRun(t, "approve", "old-tool")

	e.aur.delete("old-tool")

	for i := 0; i < 2; i++ {
		out, err := e.run(t, "check", "-o", "json")
		assert.Equal(t, ExitAttention, ExitCode(err))
		assert.Equal(t, "removed_upstream", gjson.Get(out, "entries.0.classification.state").String())
	}

	out := e.mustRun(t, "remove", "old-tool")
	assert.Contains(t, out, "Removed aur/old-tool")

	out = e.mustRun(t, "check", "-o", "json")
	assert.Equal(t, int64(0), gjson.Get(out, "entries.#").Int())
}

func TestCheckUnknownLeavesLedgerAlone(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("yay", "12.3.5-1", 100)

	out := e.mustRun(t, "check", "yay", "-o", "yaml")
	assert.Contains(t, out, "state: unknown")
	assert.Contains(t, out, "needs_attention: false")

	_, err := os.Stat(e.ledgerPath)
	assert.True(t, os.IsNotExist(err), "check must not write the ledger")
}

func TestCheckNotFoundIsInformational(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "check", "no-such-package", "-o", "json")
	assert.Equal(t, "no-such-package", gjson.Get(out, "not_found.0.name").String())
	assert.Equal(t, int64(0), gjson.Get(out, "entries.#").Int())
}

func TestCheckUpstreamFailureIsIndeterminate(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.aur.set("yay", "12.3.5-1", 100)
	e.mustRun(t, "approve", "paru", "yay")

	e.aur.fail("paru", http.StatusServiceUnavailable)

	out, err := e.run(t, "check", "-o", "json")
	assert.Equal(t, ExitAttention, ExitCode(err))

	paru := gjson.Get(out, `entries.#(identity.name=="paru").classification`)
	assert.Equal(t, "indeterminate", paru.Get("state").String())
	assert.Equal(t, "100", paru.Get("approved.content_marker").String(), "prior trust is preserved")
	assert.NotEmpty(t, paru.Get("cause").String())

	yay := gjson.Get(out, `entries.#(identity.name=="yay").classification`)
	assert.Equal(t, "trusted", yay.Get("state").String(), "one failure does not affect other packages")

	// The ledger is untouched by a failed fetch.
	l, err := ledger.Load(e.ledgerPath)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
}

func TestCheckMalformedMetadataIsExcluded(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("broken", "", 100)

	out, err := e.run(t, "check", "broken", "-o", "json")
	assert.Equal(t, ExitAttention, ExitCode(err))
	assert.Equal(t, "broken", gjson.Get(out, "excluded.0.identity.name").String())
	assert.Equal(t, int64(1), gjson.Get(out, "counts.excluded").Int())
}

func TestCheckCorruptLedgerIsFatal(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, os.MkdirAll(e.home+"/.config/aurtrust", 0755))
	require.NoError(t, os.WriteFile(e.ledgerPath, []byte("packages: [oops"), 0644))

	_, err := e.run(t, "check")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrCorruptLedger)
	assert.Equal(t, ExitFatal, ExitCode(err))
}

func TestCheckInvalidFormat(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run(t, "check", "--format", "xml")
	assert.Error(t, err)
	assert.Equal(t, ExitFatal, ExitCode(err))
}

func TestCheckRecordsRun(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.mustRun(t, "approve", "paru")
	e.mustRun(t, "check")

	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListCheckRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Counts.Trusted)

	states, err := st.LatestStates()
	require.NoError(t, err)
	assert.Equal(t, "trusted", string(states[trust.NewIdentity("aur", "paru")]))
}

func TestCheckInstalled(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.aur.set("local-only", "1-1", 100)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/pacman", []byte("#!/bin/sh\necho 'paru 2.0.3-1'\necho 'local-only 1-1'\n"), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("AURTRUST_IGNORE", "local-only")

	out := e.mustRun(t, "check", "--installed", "-o", "json")
	assert.Equal(t, int64(1), gjson.Get(out, "entries.#").Int())
	assert.Equal(t, "paru", gjson.Get(out, "entries.0.identity.name").String())
	assert.Equal(t, "unknown", gjson.Get(out, "entries.0.classification.state").String())
}

func TestCheckTrustedMaintainers(t *testing.T) {
	e := newTestEnv(t)
	e.aur.set("paru", "2.0.3-1", 100)
	e.mustRun(t, "approve", "paru")

	out := e.mustRun(t, "check", "-o", "json")
	assert.False(t, gjson.Get(out, "entries.0.maintainers").Exists(), "no check without trusted maintainers")

	t.Setenv("AURTRUST_TRUSTED_MAINTAINERS", "someone")
	out = e.mustRun(t, "check", "-o", "json")
	assert.Equal(t, "trusted", gjson.Get(out, "entries.0.maintainers.verdict").String())

	t.Setenv("AURTRUST_TRUSTED_MAINTAINERS", "somebody-else")
	out = e.mustRun(t, "check", "-o", "json")
	assert.Equal(t, "indeterminate", gjson.Get(out, "entries.0.maintainers.verdict").String())
	assert.Equal(t, "maintainer someone is not trusted", gjson.Get(out, "entries.0.maintainers.reasons.0").String())
	assert.Equal(t, "trusted", gjson.Get(out, "entries.0.classification.state").String(), "maintainers never change the state")
	assert.False(t, gjson.Get(out, "needs_attention").Bool())
}

func TestCheckBadCAFileIsFatal(t *testing.T) {
	e := newTestEnv(t)
	t.Setenv("AURTRUST_CA_FILE", e.home+"/missing.pem")

	_, err := e.run(t, "check")
	require.Error(t, err)
	assert.Equal(t, ExitFatal, ExitCode(err))
}
