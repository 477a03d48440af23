package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/aurtrust/internal/trust"
)

var approvedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func fp(version, marker string) trust.Fingerprint {
	return trust.Fingerprint{Version: version, ContentMarker: marker}
}

func TestApproveAndGet(t *testing.T) {
	l := New()
	id := trust.NewIdentity("aur", "foo")

	_, ok := l.Get(id)
	assert.False(t, ok)
	assert.False(t, l.Dirty())

	require.NoError(t, l.Approve(id, fp("1.0", "100"), approvedAt))
	assert.True(t, l.Dirty())

	rec, ok := l.Get(id)
	require.True(t, ok)
	assert.Equal(t, id, rec.Identity)
	assert.Equal(t, fp("1.0", "100"), rec.Fingerprint)
	assert.True(t, approvedAt.Equal(rec.ApprovedAt))

	// Re-approval overwrites fingerprint and timestamp.
	later := approvedAt.Add(time.Hour)
	require.NoError(t, l.Approve(id, fp("1.1", "110"), later))
	rec, _ = l.Get(id)
	assert.Equal(t, fp("1.1", "110"), rec.Fingerprint)
	assert.True(t, later.Equal(rec.ApprovedAt))
	assert.Equal(t, 1, l.Len())
}

func TestApproveRejectsInvalidInput(t *testing.T) {
	l := New()

	err := l.Approve(trust.NewIdentity("", "foo"), fp("1.0", "1"), approvedAt)
	assert.Error(t, err)

	err = l.Approve(trust.NewIdentity("aur", "foo"), fp("", "1"), approvedAt)
	assert.True(t, errors.Is(err, trust.ErrMalformedMetadata))

	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Dirty())
}

func TestRemoveIsIdempotent(t *testing.T) {
	l := New()
	id := trust.NewIdentity("aur", "bar")
	require.NoError(t, l.Approve(id, fp("2.0", "5"), approvedAt))

	assert.True(t, l.Remove(id))
	_, ok := l.Get(id)
	assert.False(t, ok)

	assert.False(t, l.Remove(id))
	assert.False(t, l.Remove(trust.NewIdentity("aur", "never-tracked")))
	assert.Equal(t, 0, l.Len())
}

func TestRecordsOrderedByIdentity(t *testing.T) {
	l := New()
	for _, id := range []trust.Identity{
		trust.NewIdentity("chaotic", "a"),
		trust.NewIdentity("aur", "zsh-theme"),
		trust.NewIdentity("aur", "bar"),
		trust.NewIdentity("aur", "Bar"),
	} {
		require.NoError(t, l.Approve(id, fp("1", "1"), approvedAt))
	}

	var got []string
	for _, rec := range l.Records() {
		got = append(got, rec.Identity.String())
	}
	assert.Equal(t, []string{"aur/Bar", "aur/bar", "aur/zsh-theme", "chaotic/a"}, got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.yaml")

	l := New()
	require.NoError(t, l.Approve(trust.NewIdentity("aur", "foo"), fp("1.0", "100"), approvedAt))
	require.NoError(t, l.Approve(trust.NewIdentity("aur", "bar"), fp("2.0-1", "5"), approvedAt.Add(1500*time.Millisecond)))
	require.NoError(t, l.Approve(trust.NewIdentity("chaotic", "baz"), fp("1:0.1", "1700000000"), approvedAt.Add(48*time.Hour)))

	require.NoError(t, l.Save(path))
	assert.False(t, l.Dirty())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.False(t, loaded.Dirty())

	want := l.Records()
	got := loaded.Records()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Identity, got[i].Identity)
		assert.Equal(t, want[i].Fingerprint, got[i].Fingerprint)
		assert.True(t, want[i].ApprovedAt.Equal(got[i].ApprovedAt), "approved_at for %s", want[i].Identity)
	}
}

func TestSaveLoadRoundTripYAMLSpecialStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")

	versions := []string{".inf", ".INF", "-.inf", ".nan", "1e3", "0x10", "true", "null", "~", "1.0"}
	l := New()
	for i, v := range versions {
		require.NoError(t, l.Approve(trust.NewIdentity("aur", fmt.Sprintf("pkg%02d", i)), fp(v, "100"), approvedAt))
	}
	require.NoError(t, l.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `version: ".inf"`)
	assert.Contains(t, string(data), `content_marker: "100"`)

	loaded, err := Load(path)
	require.NoError(t, err)
	for i, v := range versions {
		rec, ok := loaded.Get(trust.NewIdentity("aur", fmt.Sprintf("pkg%02d", i)))
		require.True(t, ok)
		assert.Equal(t, v, rec.Fingerprint.Version)
		assert.Equal(t, trust.Same, trust.Compare(fp(v, "100"), rec.Fingerprint))
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()

	build := func(order []string) *Ledger {
		l := New()
		for _, name := range order {
			require.NoError(t, l.Approve(trust.NewIdentity("aur", name), fp("1.0", "1"), approvedAt))
		}
		return l
	}

	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, build([]string{"x", "a", "m"}).Save(a))
	require.NoError(t, build([]string{"m", "x", "a"}).Save(b))

	dataA, err := os.ReadFile(a)
	require.NoError(t, err)
	dataB, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, string(dataA), string(dataB))
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestLoadEmptyFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0644))

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "not yaml",
			content: "version: [1\n",
		},
		{
			name:    "unsupported version",
			content: "version: 2\npackages: []\n",
		},
		{
			name:    "missing version",
			content: "packages: []\n",
		},
		{
			name: "unknown field",
			content: `version: 1
packages:
  - identity: {repo: aur, name: foo}
    approved_fingerprint: {version: "1.0", content_marker: "100"}
    approved_at: 2024-05-01T10:00:00Z
    trusted: yes
`,
		},
		{
			name: "duplicate identity",
			content: `version: 1
packages:
  - identity: {repo: aur, name: foo}
    approved_fingerprint: {version: "1.0", content_marker: "100"}
    approved_at: 2024-05-01T10:00:00Z
  - identity: {repo: aur, name: foo}
    approved_fingerprint: {version: "1.1", content_marker: "110"}
    approved_at: 2024-05-02T10:00:00Z
`,
		},
		{
			name: "missing content marker",
			content: `version: 1
packages:
  - identity: {repo: aur, name: foo}
    approved_fingerprint: {version: "1.0"}
    approved_at: 2024-05-01T10:00:00Z
`,
		},
		{
			name: "missing repository",
			content: `version: 1
packages:
  - identity: {name: foo}
    approved_fingerprint: {version: "1.0", content_marker: "100"}
    approved_at: 2024-05-01T10:00:00Z
`,
		},
		{
			name: "missing approved_at",
			content: `version: 1
packages:
  - identity: {repo: aur, name: foo}
    approved_fingerprint: {version: "1.0", content_marker: "100"}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			l, err := Load(path)
			require.Error(t, err)
			assert.Nil(t, l)
			assert.True(t, errors.Is(err, ErrCorruptLedger), "got %v", err)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestSaveFailureLeavesDestinationUntouched(t *testing.T) {
	dir := t.TempDir()
	// The destination is a non-empty directory, so the final rename fails.
	dest := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.MkdirAll(dest, 0755))
	keep := filepath.Join(dest, "keep")
	require.NoError(t, os.WriteFile(keep, []byte("previous"), 0644))

	l := New()
	require.NoError(t, l.Approve(trust.NewIdentity("aur", "foo"), fp("1.0", "100"), approvedAt))

	err := l.Save(dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence), "got %v", err)
	assert.True(t, l.Dirty(), "a failed save keeps the ledger dirty")

	data, err := os.ReadFile(keep)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file is left behind")
}

func TestSaveOverwritesPreviousDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	id := trust.NewIdentity("aur", "foo")

	first := New()
	require.NoError(t, first.Approve(id, fp("1.0", "100"), approvedAt))
	require.NoError(t, first.Save(path))

	second, err := Load(path)
	require.NoError(t, err)
	second.Remove(id)
	require.NoError(t, second.Save(path))

	third, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Len())
}
