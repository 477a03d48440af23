package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dchest/safefile"
	"github.com/goccy/go-yaml"

	"github.com/blackwell-systems/aurtrust/internal/trust"
)

// FormatVersion is the ledger document version written by Save.
const FormatVersion = 1

// document is the on-disk shape of the ledger. Packages are kept sorted by
// identity so the file diffs cleanly under version control.
type document struct {
	Version  int     `yaml:"version"`
	Packages []entry `yaml:"packages"`
}

type entry struct {
	Identity    identityDoc    `yaml:"identity"`
	Fingerprint fingerprintDoc `yaml:"approved_fingerprint"`
	ApprovedAt  time.Time      `yaml:"approved_at"`
}

type identityDoc struct {
	Repo quoted `yaml:"repo"`
	Name quoted `yaml:"name"`
}

type fingerprintDoc struct {
	Version       quoted `yaml:"version"`
	ContentMarker quoted `yaml:"content_marker"`
}

// quoted is written as a double-quoted scalar so plain YAML resolution can
// never turn a version such as ".inf" or "1e3" into a number on load.
type quoted string

// MarshalYAML implements yaml.BytesMarshaler.
func (q quoted) MarshalYAML() ([]byte, error) {
	return []byte(strconv.Quote(string(q))), nil
}

// Load reads the ledger at path. A missing file is a first run and yields an
// empty ledger; anything unreadable or malformed is ErrCorruptLedger.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, &CorruptLedgerError{Path: path, Reason: "unreadable", Err: err}
	}

	l, err := Decode(data)
	if err != nil {
		var cErr *CorruptLedgerError
		if errors.As(err, &cErr) {
			cErr.Path = path
		}
		return nil, err
	}
	return l, nil
}

// Decode parses a ledger document.
func Decode(data []byte) (*Ledger, error) {
	l := New()

	// A zero-length file is treated like a missing one.
	if len(bytes.TrimSpace(data)) == 0 {
		return l, nil
	}

	var doc document
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.DisallowUnknownField()); err != nil {
		return nil, &CorruptLedgerError{Reason: "invalid document", Err: err}
	}

	if doc.Version != FormatVersion {
		return nil, &CorruptLedgerError{Reason: fmt.Sprintf("unsupported format version %d", doc.Version)}
	}

	for i, e := range doc.Packages {
		id := trust.NewIdentity(string(e.Identity.Repo), string(e.Identity.Name))
		if err := id.Validate(); err != nil {
			return nil, &CorruptLedgerError{Reason: fmt.Sprintf("entry %d", i), Err: err}
		}
		if _, dup := l.records[id]; dup {
			return nil, &CorruptLedgerError{Reason: fmt.Sprintf("duplicate entry for %s", id)}
		}

		fp, err := trust.NewFingerprint(string(e.Fingerprint.Version), string(e.Fingerprint.ContentMarker))
		if err != nil {
			return nil, &CorruptLedgerError{Reason: fmt.Sprintf("entry %s", id), Err: err}
		}

		if e.ApprovedAt.IsZero() {
			return nil, &CorruptLedgerError{Reason: fmt.Sprintf("entry %s has no approved_at", id)}
		}

		l.records[id] = trust.Record{
			Identity:    id,
			Fingerprint: fp,
			ApprovedAt:  e.ApprovedAt.UTC(),
		}
	}

	return l, nil
}

// Encode serializes the full ledger, ordered by identity.
func (l *Ledger) Encode() ([]byte, error) {
	doc := document{
		Version:  FormatVersion,
		Packages: make([]entry, 0, len(l.records)),
	}
	for _, rec := range l.Records() {
		doc.Packages = append(doc.Packages, entry{
			Identity: identityDoc{
				Repo: quoted(rec.Identity.Repo),
				Name: quoted(rec.Identity.Name),
			},
			Fingerprint: fingerprintDoc{
				Version:       quoted(rec.Fingerprint.Version),
				ContentMarker: quoted(rec.Fingerprint.ContentMarker),
			},
			ApprovedAt: rec.ApprovedAt.UTC(),
		})
	}

	data, err := yaml.MarshalWithOptions(doc,
		yaml.Indent(2),
		yaml.IndentSequence(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger: %w", err)
	}
	return data, nil
}

// Save writes the full ledger to path through a temporary file that is renamed
// into place, so the previous document survives any failure. Errors match
// ErrPersistence.
func (l *Ledger) Save(path string) error {
	data, err := l.Encode()
	if err != nil {
		return &PersistenceError{Path: path, Op: "encode", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &PersistenceError{Path: path, Op: "create directory for", Err: err}
	}

	f, err := safefile.Create(path, 0644)
	if err != nil {
		return &PersistenceError{Path: path, Op: "create", Err: err}
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}

	if err := f.Commit(); err != nil {
		return &PersistenceError{Path: path, Op: "commit", Err: err}
	}

	l.dirty = false
	return nil
}
