// ABOUTME: Configuration loading and parsing for mwassistant-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied after decoding when a field is left empty.
const (
	DefaultLeewaySeconds  = 10
	DefaultSessionCookie  = "assistant_session"
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultQueueSize      = 256
	DefaultWorkers        = 2
)

// Config represents the complete mwassistant-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Assistant  AssistantConfig  `yaml:"assistant" toml:"assistant"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" toml:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr  string `yaml:"http_addr" toml:"http_addr"`
	PublicURL string `yaml:"public_url" toml:"public_url"` // used for chat log links
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AssistantConfig describes the assistant backend this host talks to.
type AssistantConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	MCPBaseURL string `yaml:"mcp_base_url" toml:"mcp_base_url"`
	WikiID     string `yaml:"wiki_id" toml:"wiki_id"`
	AutoEmbed  bool   `yaml:"auto_embed" toml:"auto_embed"`
	Retries    int    `yaml:"retries" toml:"retries"`

	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	RetryDelay     time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
	RetryDelayRaw     string `yaml:"retry_delay" toml:"retry_delay"`
}

// AuthConfig holds the two per-direction signing secrets and token timing.
type AuthConfig struct {
	MWToMCPSecret string `yaml:"mw_to_mcp_secret" toml:"mw_to_mcp_secret"`
	MCPToMWSecret string `yaml:"mcp_to_mw_secret" toml:"mcp_to_mw_secret"`
	TokenTTL      int    `yaml:"token_ttl" toml:"token_ttl"` // seconds
	Leeway        *int   `yaml:"leeway" toml:"leeway"`       // seconds, nil means default
	SessionCookie string `yaml:"session_cookie" toml:"session_cookie"`
}

// EmbeddingsConfig sizes the auto-embedding queue.
type EmbeddingsConfig struct {
	QueueSize int `yaml:"queue_size" toml:"queue_size"`
	Workers   int `yaml:"workers" toml:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, Format(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format returns "toml" or "yaml" depending on the file extension.
func Format(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// Parse decodes raw configuration bytes in the given format.
func Parse(data []byte, format string) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case "toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks the structural fields needed to start the process.
// Secrets, TTL and wiki id are deliberately not checked here; their
// accessors fail the first time a component needs them.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return &FieldError{Field: "server.http_addr", Problem: "is required"}
	}
	if c.Database.Path == "" {
		return &FieldError{Field: "database.path", Problem: "is required"}
	}
	if c.Assistant.Retries < 0 {
		return &FieldError{Field: "assistant.retries", Problem: "must not be negative"}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return &FieldError{Field: "logging.format", Problem: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Auth.SessionCookie == "" {
		cfg.Auth.SessionCookie = DefaultSessionCookie
	}
	if cfg.Assistant.RequestTimeout == 0 {
		cfg.Assistant.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Assistant.RetryDelay == 0 {
		cfg.Assistant.RetryDelay = DefaultRetryDelay
	}
	if cfg.Embeddings.QueueSize <= 0 {
		cfg.Embeddings.QueueSize = DefaultQueueSize
	}
	if cfg.Embeddings.Workers <= 0 {
		cfg.Embeddings.Workers = DefaultWorkers
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Assistant.RequestTimeoutRaw != "" {
		cfg.Assistant.RequestTimeout, err = time.ParseDuration(cfg.Assistant.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Assistant.RequestTimeoutRaw, err)
		}
	}

	if cfg.Assistant.RetryDelayRaw != "" {
		cfg.Assistant.RetryDelay, err = time.ParseDuration(cfg.Assistant.RetryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_delay %q: %w", cfg.Assistant.RetryDelayRaw, err)
		}
	}

	return nil
}
