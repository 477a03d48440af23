package trust

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Direction hints how a version moved between two fingerprints. It is only
// shown to the user and never affects classification.
type Direction string

const (
	Upgrade   Direction = "upgrade"
	Downgrade Direction = "downgrade"
	Unordered Direction = "unordered"
)

// VersionDirection compares the versions of old and new when both look like
// semantic versions. Epoch-prefixed or otherwise unparsable versions, and
// equal versions, are Unordered.
func VersionDirection(old, new Fingerprint) Direction {
	if strings.Contains(old.Version, ":") || strings.Contains(new.Version, ":") {
		return Unordered
	}

	ov, err := semver.NewVersion(old.Version)
	if err != nil {
		return Unordered
	}
	nv, err := semver.NewVersion(new.Version)
	if err != nil {
		return Unordered
	}

	switch ov.Compare(nv) {
	case -1:
		return Upgrade
	case 1:
		return Downgrade
	default:
		return Unordered
	}
}
