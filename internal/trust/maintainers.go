package trust

import (
	"fmt"
	"sort"
)

// MaintainerVerdict is the outcome of checking who maintains a package
// against the maintainers the user trusts. It is advisory and never affects
// fingerprint comparison.
type MaintainerVerdict string

const (
	// MaintainersTrusted means every maintainer of the package is trusted.
	MaintainersTrusted MaintainerVerdict = "trusted"
	// MaintainersIndeterminate means the package is orphaned or at least one
	// maintainer is not trusted.
	MaintainersIndeterminate MaintainerVerdict = "indeterminate"
)

// MaintainerCheck is a verdict together with the reasons for it.
type MaintainerCheck struct {
	Verdict MaintainerVerdict `json:"verdict" yaml:"verdict"`
	Reasons []string          `json:"reasons" yaml:"reasons"`
}

// CheckMaintainers returns MaintainersTrusted if and only if the package has
// maintainers and all of them are in trusted. An untrusted maintainer yields
// MaintainersIndeterminate rather than a negative verdict: not being on the
// list says nothing bad about a maintainer.
func CheckMaintainers(maintainers, trusted []string) MaintainerCheck {
	set := make(map[string]bool, len(trusted))
	for _, m := range trusted {
		set[m] = true
	}

	unique := make(map[string]bool, len(maintainers))
	for _, m := range maintainers {
		if m != "" {
			unique[m] = true
		}
	}
	if len(unique) == 0 {
		return MaintainerCheck{Verdict: MaintainersIndeterminate, Reasons: []string{"maintainers unknown"}}
	}

	var untrusted []string
	for m := range unique {
		if !set[m] {
			untrusted = append(untrusted, m)
		}
	}
	if len(untrusted) == 0 {
		return MaintainerCheck{Verdict: MaintainersTrusted, Reasons: []string{"all maintainers trusted"}}
	}

	sort.Strings(untrusted)
	reasons := make([]string, len(untrusted))
	for i, m := range untrusted {
		reasons[i] = fmt.Sprintf("maintainer %s is not trusted", m)
	}
	return MaintainerCheck{Verdict: MaintainersIndeterminate, Reasons: reasons}
}
