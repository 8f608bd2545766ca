// ABOUTME: Configuration loading and parsing for stash-mcp
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvConfigPath = "STASH_CONFIG"
	EnvHTTPAddr   = "STASH_HTTP_ADDR"
	EnvArchiveURL = "STASH_ARCHIVE_URL"
)

// Defaults applied before the config file is decoded.
const (
	DefaultHTTPAddr        = "127.0.0.1:3000"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultArchiveTimeout  = 30 * time.Second
)

// Config represents the complete stash-mcp configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Archive   ArchiveConfig   `yaml:"archive" toml:"archive"`
	Tools     ToolsConfig     `yaml:"tools" toml:"tools"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Sentry    SentryConfig    `yaml:"sentry" toml:"sentry"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// ArchiveConfig configures the remote conversation archive.
// BaseURL may be empty; save_conversation fails at call time in that case.
type ArchiveConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`
	OAuth   OAuthConfig   `yaml:"oauth" toml:"oauth"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// OAuthConfig holds optional client-credentials settings for the archive service
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id" toml:"client_id"`
	ClientSecret string   `yaml:"client_secret" toml:"client_secret"`
	TokenURL     string   `yaml:"token_url" toml:"token_url"`
	Scopes       []string `yaml:"scopes" toml:"scopes"`
}

// Enabled reports whether client-credentials auth is configured.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.TokenURL != ""
}

// ToolsConfig selects which builtin tools are registered.
// An empty list registers every builtin tool.
type ToolsConfig struct {
	Enabled []string `yaml:"enabled" toml:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN         string `yaml:"dsn" toml:"dsn"`
	Environment string `yaml:"environment" toml:"environment"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        DefaultHTTPAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Archive: ArchiveConfig{
			Timeout: DefaultArchiveTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// The decoder is chosen by file extension: .toml uses TOML, anything else YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if isTOML(path) {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load, but a missing file yields the defaults
// (with environment overrides applied) instead of an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides lets STASH_* variables win over file values.
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv(EnvHTTPAddr); addr != "" {
		cfg.Server.HTTPAddr = addr
	}
	if archiveURL := os.Getenv(EnvArchiveURL); archiveURL != "" {
		cfg.Archive.BaseURL = archiveURL
	}
}

var (
	validLevels  = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"": true, "text": true, "json": true}
)

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Tools.Enabled))
	for _, name := range c.Tools.Enabled {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("tools.enabled contains an empty tool name")
		}
		if seen[name] {
			return fmt.Errorf("tools.enabled lists %q more than once", name)
		}
		seen[name] = true
	}

	if c.Archive.OAuth.ClientID != "" && c.Archive.OAuth.TokenURL == "" {
		return fmt.Errorf("archive.oauth.token_url is required when client_id is set")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	if cfg.Archive.TimeoutRaw != "" {
		cfg.Archive.Timeout, err = time.ParseDuration(cfg.Archive.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing archive timeout %q: %w", cfg.Archive.TimeoutRaw, err)
		}
	}

	return nil
}

// DefaultPath returns the path to the config file.
// Priority: STASH_CONFIG env var > XDG_CONFIG_HOME/stash/config.yaml > ~/.config/stash/config.yaml
func DefaultPath() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "stash", "config.yaml")
}

// DataPath returns the stash data directory.
// Priority: XDG_DATA_HOME/stash > ~/.local/share/stash
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "stash")
}
