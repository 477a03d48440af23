// Package pacman lists packages installed outside the sync repositories.
//
// On Arch Linux, `pacman -Qm` reports "foreign" packages: everything not
// found in a configured sync database, which in practice means packages
// built from the AUR.
package pacman

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/blackwell-systems/aurtrust/internal/trust"
)

// Package is an installed foreign package.
type Package struct {
	Name    string
	Version string
}

// Identity returns the identity of the package in the AUR.
func (p Package) Identity() trust.Identity {
	return trust.NewIdentity(trust.DefaultRepo, p.Name)
}

// ListForeign returns all installed foreign packages.
func ListForeign(ctx context.Context) ([]Package, error) {
	cmd := exec.CommandContext(ctx, "pacman", "-Qm")
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// pacman exits 1 without output when there is nothing to list.
			if exitErr.ExitCode() == 1 && len(bytes.TrimSpace(output)) == 0 && len(bytes.TrimSpace(exitErr.Stderr)) == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("pacman -Qm failed: %w (stderr: %s)", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("pacman -Qm failed: %w", err)
	}

	return ParseForeign(output)
}

// ParseForeign parses `pacman -Qm` output: one "name version" pair per line.
func ParseForeign(output []byte) ([]Package, error) {
	var packages []Package

	scanner := bufio.NewScanner(bytes.NewReader(output))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("unexpected pacman output on line %d: %q", lineNo, line)
		}
		packages = append(packages, Package{Name: fields[0], Version: fields[1]})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pacman output: %w", err)
	}

	return packages, nil
}

// Identities returns the AUR identities of packages, skipping any listed in
// ignore. Ignore entries use the same "repo/name" or bare "name" form as the
// command line.
func Identities(packages []Package, ignore []string) ([]trust.Identity, error) {
	skip := make(map[trust.Identity]bool, len(ignore))
	for _, s := range ignore {
		id, err := trust.ParseIdentity(s)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore entry: %w", err)
		}
		skip[id] = true
	}

	ids := make([]trust.Identity, 0, len(packages))
	for _, pkg := range packages {
		if id := pkg.Identity(); !skip[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
