// Package config provides configuration loading for aurtrust.
//
// Values are resolved in order of precedence:
//  1. Command-line flags (applied by the caller)
//  2. Environment variables prefixed with AURTRUST_
//  3. .env.local and .env in the working directory
//  4. config.yaml in the aurtrust config directory
//  5. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every aurtrust environment variable.
const EnvPrefix = "AURTRUST"

// Config holds the resolved aurtrust configuration.
type Config struct {
	LedgerPath     string
	DBPath         string
	RPCURL         string
	Concurrency    int
	Timeout        time.Duration
	RequestTimeout time.Duration
	Retries        int
	Backoff        time.Duration
	WatchInterval  time.Duration
	Ignore         []string

	// TrustedMaintainers enables the advisory maintainer check when non-empty.
	TrustedMaintainers []string

	// CAFile, when set, replaces the system roots for RPC requests.
	CAFile string

	LogLevel  string
	LogFormat string

	// ConfigFile is the config file that was read, if any.
	ConfigFile string
}

// Dir returns the aurtrust config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/aurtrust if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "aurtrust"), nil
}

// Load resolves configuration from env files, the environment and the config
// file. An explicit configFile must exist; the default one is optional.
func Load(configFile string) (*Config, error) {
	loadEnvFiles()

	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, dir)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		LedgerPath:         expandHome(v.GetString("ledger")),
		DBPath:             expandHome(v.GetString("db")),
		RPCURL:             v.GetString("rpc_url"),
		Concurrency:        v.GetInt("concurrency"),
		Timeout:            v.GetDuration("timeout"),
		RequestTimeout:     v.GetDuration("request_timeout"),
		Retries:            v.GetInt("retries"),
		Backoff:            v.GetDuration("backoff"),
		WatchInterval:      v.GetDuration("watch_interval"),
		Ignore:             v.GetStringSlice("ignore"),
		TrustedMaintainers: v.GetStringSlice("trusted_maintainers"),
		CAFile:             expandHome(v.GetString("ca_file")),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		ConfigFile:         v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("ledger", filepath.Join(dir, "ledger.yaml"))
	v.SetDefault("db", filepath.Join("~", ".aurtrust", "audit.db"))
	v.SetDefault("rpc_url", "https://aur.archlinux.org/rpc/")
	v.SetDefault("concurrency", 8)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("retries", 2)
	v.SetDefault("backoff", 500*time.Millisecond)
	v.SetDefault("watch_interval", time.Hour)
	v.SetDefault("ignore", []string{})
	v.SetDefault("trusted_maintainers", []string{})
	v.SetDefault("ca_file", "")
	v.SetDefault("log_level", "")
	v.SetDefault("log_format", "auto")
}

// Validate rejects values that would make the fetcher or watcher misbehave.
func (c *Config) Validate() error {
	switch {
	case c.LedgerPath == "":
		return fmt.Errorf("invalid config: ledger path is empty")
	case c.Concurrency < 1:
		return fmt.Errorf("invalid config: concurrency must be at least 1, got %d", c.Concurrency)
	case c.Retries < 0:
		return fmt.Errorf("invalid config: retries must not be negative, got %d", c.Retries)
	case c.Timeout <= 0:
		return fmt.Errorf("invalid config: timeout must be positive, got %s", c.Timeout)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("invalid config: request_timeout must be positive, got %s", c.RequestTimeout)
	case c.WatchInterval < time.Minute:
		return fmt.Errorf("invalid config: watch_interval must be at least 1m, got %s", c.WatchInterval)
	}
	return nil
}

// loadEnvFiles loads environment variables from .env files. godotenv never
// overrides variables that are already set, so .env.local is loaded first to
// take precedence over .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
