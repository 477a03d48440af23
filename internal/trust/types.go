// Package trust defines the values aurtrust reasons about: package
// identities, upstream fingerprints and the trust records the ledger keeps.
package trust

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRepo is the repository assumed when an identity is given without one.
const DefaultRepo = "aur"

// ErrMalformedMetadata indicates upstream metadata that cannot produce a fingerprint.
var ErrMalformedMetadata = errors.New("malformed upstream metadata")

// MalformedMetadataError names the field that made upstream metadata unusable.
type MalformedMetadataError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *MalformedMetadataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed upstream metadata: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed upstream metadata: missing %s", e.Field)
}

// Is implements errors.Is support
func (e *MalformedMetadataError) Is(target error) bool {
	return target == ErrMalformedMetadata
}

// Identity is a package name scoped to the repository it comes from.
// Both parts are case-sensitive.
type Identity struct {
	Repo string `json:"repo" yaml:"repo"`
	Name string `json:"name" yaml:"name"`
}

// NewIdentity returns the identity of name in repo.
func NewIdentity(repo, name string) Identity {
	return Identity{Repo: repo, Name: name}
}

// ParseIdentity parses "repo/name" or a bare "name", which is placed in DefaultRepo.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identity{}, fmt.Errorf("empty package identity")
	}

	repo, name, found := strings.Cut(s, "/")
	if !found {
		return Identity{Repo: DefaultRepo, Name: s}, nil
	}
	if repo == "" || name == "" || strings.Contains(name, "/") {
		return Identity{}, fmt.Errorf("invalid package identity %q: want repo/name", s)
	}
	return Identity{Repo: repo, Name: name}, nil
}

// String returns the "repo/name" form of the identity.
func (id Identity) String() string {
	return id.Repo + "/" + id.Name
}

// Less orders identities by repository, then name.
func (id Identity) Less(other Identity) bool {
	if id.Repo != other.Repo {
		return id.Repo < other.Repo
	}
	return id.Name < other.Name
}

// Validate reports whether both parts of the identity are present.
func (id Identity) Validate() error {
	if id.Repo == "" {
		return fmt.Errorf("identity %q has no repository", id.Name)
	}
	if id.Name == "" {
		return fmt.Errorf("identity in %q has no package name", id.Repo)
	}
	return nil
}

// Fingerprint identifies one reviewable upstream revision of a package.
// Fingerprints are equal iff both fields match exactly and have no ordering.
type Fingerprint struct {
	Version       string `json:"version" yaml:"version"`
	ContentMarker string `json:"content_marker" yaml:"content_marker"`
}

// NewFingerprint builds a fingerprint from upstream data. Missing fields are
// an error rather than a default, since a wrong fingerprint would grant trust.
func NewFingerprint(version, contentMarker string) (Fingerprint, error) {
	if version == "" {
		return Fingerprint{}, &MalformedMetadataError{Field: "version"}
	}
	if contentMarker == "" {
		return Fingerprint{}, &MalformedMetadataError{Field: "content marker"}
	}
	return Fingerprint{Version: version, ContentMarker: contentMarker}, nil
}

// String renders the fingerprint as "version (marker)".
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s (%s)", f.Version, f.ContentMarker)
}

// Comparison is the outcome of comparing two fingerprints.
type Comparison int

const (
	// Same means both fingerprints identify the same revision.
	Same Comparison = iota
	// Different means the revisions differ in version or content marker.
	Different
)

// String returns "same" or "different".
func (c Comparison) String() string {
	if c == Same {
		return "same"
	}
	return "different"
}

// Compare structurally compares a stored fingerprint with a current one.
func Compare(stored, current Fingerprint) Comparison {
	if stored.Version == current.Version && stored.ContentMarker == current.ContentMarker {
		return Same
	}
	return Different
}

// Record is the ledger's proof that a user reviewed and approved a package
// at a specific fingerprint.
type Record struct {
	Identity    Identity
	Fingerprint Fingerprint
	ApprovedAt  time.Time
}
