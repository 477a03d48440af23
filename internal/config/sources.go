package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// SourceConfig maps repository names to AUR-compatible RPC endpoints.
// The "aur" repository is always present and comes from Config.RPCURL.
type SourceConfig struct {
	Sources map[string]string
}

// LoadSources reads the sources file at {dir}/sources. Each line has the form
// "repo=https://host/rpc/". If the file does not exist, an empty config is
// returned without an error. Blank lines and "#" comments are skipped; any
// other malformed line is an error, since a wrong endpoint would decide trust.
func LoadSources(dir string) (*SourceConfig, error) {
	cfg := &SourceConfig{
		Sources: make(map[string]string),
	}

	path := filepath.Join(dir, "sources")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		repo, endpoint, found := strings.Cut(line, "=")
		repo = strings.TrimSpace(repo)
		endpoint = strings.TrimSpace(endpoint)
		if !found || repo == "" || endpoint == "" || strings.Contains(repo, "/") {
			return cfg, fmt.Errorf("%s:%d: want repo=url, got %q", path, lineNo, line)
		}

		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return cfg, fmt.Errorf("%s:%d: invalid endpoint %q", path, lineNo, endpoint)
		}

		if repo == "aur" {
			return cfg, fmt.Errorf("%s:%d: the aur endpoint is set with rpc_url", path, lineNo)
		}
		if _, dup := cfg.Sources[repo]; dup {
			return cfg, fmt.Errorf("%s:%d: repository %q defined twice", path, lineNo, repo)
		}
		cfg.Sources[repo] = endpoint
	}

	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
