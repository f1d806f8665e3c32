// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gptkit/gptkit-cli/internal/auth"
)

// DefaultBaseURL is the production backend.
const DefaultBaseURL = "https://api.example.com"

// Config holds the resolved configuration.
type Config struct {
	// API settings
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"-"`

	// Credential storage
	KeyringService string `json:"keyring_service"`
	KeyringAccount string `json:"keyring_account"`

	// Output settings
	Format    string `json:"format"`
	LogFormat string `json:"log_format"`

	// Behavior preferences, overridable by flags
	Stats   *bool `json:"stats,omitempty"`
	Verbose *int  `json:"verbose,omitempty"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceDotenv  Source = "dotenv"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL string
	Format  string
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        30 * time.Second,
		KeyringService: auth.DefaultService,
		KeyringAccount: auth.DefaultAccount,
		Format:         "auto",
		LogFormat:      "console",
		Sources:        make(map[string]string),
	}
	for _, k := range []string{"base_url", "timeout", "keyring_service", "keyring_account", "format", "log_format"} {
		cfg.Sources[k] = string(SourceDefault)
	}
	return cfg
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > .env > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)

	dotenv, err := loadDotenv(".env")
	if err != nil {
		return nil, err
	}

	loadFromEnv(cfg, dotenv)
	ApplyOverrides(cfg, overrides)

	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	return cfg, nil
}

// loadDotenv merges path into the process environment without overriding
// variables that are already set. It returns the keys it supplied.
func loadDotenv(path string) (map[string]bool, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	supplied := make(map[string]bool)
	for k := range vals {
		if _, set := os.LookupEnv(k); !set {
			supplied[k] = true
		}
	}
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return supplied, nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}

	var fileCfg map[string]any
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	setString := func(key string, dst *string) {
		if v, ok := fileCfg[key].(string); ok && v != "" {
			*dst = v
			cfg.Sources[key] = string(source)
		}
	}
	setString("base_url", &cfg.BaseURL)
	setString("keyring_service", &cfg.KeyringService)
	setString("keyring_account", &cfg.KeyringAccount)
	setString("format", &cfg.Format)
	setString("log_format", &cfg.LogFormat)

	if v, ok := fileCfg["timeout"].(string); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
			cfg.Sources["timeout"] = string(source)
		} else {
			fmt.Fprintf(os.Stderr, "warning: ignoring invalid timeout %q in %s\n", v, path)
		}
	}
	if v, ok := fileCfg["stats"].(bool); ok {
		cfg.Stats = &v
		cfg.Sources["stats"] = string(source)
	}
	if v, ok := fileCfg["verbose"]; ok {
		if fv, ok := v.(float64); ok {
			iv := int(fv)
			if iv >= 0 && iv <= 2 && fv == float64(iv) {
				cfg.Verbose = &iv
				cfg.Sources["verbose"] = string(source)
			}
		}
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	loadFromEnv(cfg, nil)
}

func loadFromEnv(cfg *Config, dotenv map[string]bool) {
	sourceOf := func(name string) string {
		if dotenv[name] {
			return string(SourceDotenv)
		}
		return string(SourceEnv)
	}
	setString := func(name, key string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
			cfg.Sources[key] = sourceOf(name)
		}
	}
	setString("GPTKIT_BASE_URL", "base_url", &cfg.BaseURL)
	setString("GPTKIT_KEYRING_SERVICE", "keyring_service", &cfg.KeyringService)
	setString("GPTKIT_KEYRING_ACCOUNT", "keyring_account", &cfg.KeyringAccount)
	setString("GPTKIT_FORMAT", "format", &cfg.Format)
	setString("GPTKIT_LOG_FORMAT", "log_format", &cfg.LogFormat)

	if v := os.Getenv("GPTKIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
			cfg.Sources["timeout"] = sourceOf("GPTKIT_TIMEOUT")
		}
	}
	if v := os.Getenv("GPTKIT_STATS"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.Stats = &b
			cfg.Sources["stats"] = sourceOf("GPTKIT_STATS")
		}
	}
	if v := os.Getenv("GPTKIT_DEBUG"); v != "" {
		if level, ok := parseDebugLevel(v); ok {
			cfg.Verbose = &level
			cfg.Sources["verbose"] = sourceOf("GPTKIT_DEBUG")
		}
	}
}

// parseEnvBool parses a boolean environment variable strictly.
// Returns (value, true) for recognized values, (false, false) for unrecognized.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

// parseDebugLevel accepts 0-2, or a boolean where true means 2.
func parseDebugLevel(v string) (int, bool) {
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n > 2 {
			return 0, false
		}
		return n, true
	}
	b, ok := parseEnvBool(v)
	if !ok {
		return 0, false
	}
	if b {
		return 2, true
	}
	return 0, true
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
}

// Path helpers

func systemConfigPath() string {
	return "/etc/gptkit/config.json"
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

// GlobalConfigDir returns the global config directory path. The credential
// file fallback lives here too.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "gptkit")
}

// NormalizeBaseURL turns a bare host into a URL and drops any trailing
// slash. localhost and loopback addresses default to http://, everything
// else to https://.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if IsLocalhost(raw) {
			raw = "http://" + raw
		} else {
			raw = "https://" + raw
		}
	}
	return strings.TrimSuffix(raw, "/")
}

// IsLocalhost returns true if host is localhost, a .localhost subdomain,
// 127.0.0.1, or [::1] (with optional port and path).
func IsLocalhost(host string) bool {
	if i := strings.IndexByte(host, '/'); i != -1 {
		host = host[:i]
	}
	hostWithoutPort := host
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		// Bracketed IPv6 keeps its colons unless a port follows the bracket.
		if !strings.HasPrefix(host, "[") || strings.HasPrefix(host, "[::1]:") {
			hostWithoutPort = host[:idx]
		}
	}

	switch {
	case hostWithoutPort == "localhost", strings.HasSuffix(hostWithoutPort, ".localhost"):
		return true
	case hostWithoutPort == "127.0.0.1", hostWithoutPort == "[::1]":
		return true
	}
	return false
}
