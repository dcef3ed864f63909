// ABOUTME: Lazily validated accessors for values that are fatal when missing
// ABOUTME: Secrets, token TTL, wiki id and backend URL fail on first use, not at startup

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid marks every configuration error. Callers treat it as a
// deployment defect and abort the operation that needed the value.
var ErrInvalid = errors.New("invalid configuration")

// FieldError describes a single missing or malformed configuration value.
// It never includes the value itself.
type FieldError struct {
	Field   string
	Problem string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalid, e.Field, e.Problem)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalid
}

// MWToMCPSecret returns the secret used to sign host→backend assertions.
func (c *Config) MWToMCPSecret() ([]byte, error) {
	if strings.TrimSpace(c.Auth.MWToMCPSecret) == "" {
		return nil, &FieldError{Field: "auth.mw_to_mcp_secret", Problem: "must be configured"}
	}
	return []byte(c.Auth.MWToMCPSecret), nil
}

// MCPToMWSecret returns the secret used to verify backend→host assertions.
func (c *Config) MCPToMWSecret() ([]byte, error) {
	if strings.TrimSpace(c.Auth.MCPToMWSecret) == "" {
		return nil, &FieldError{Field: "auth.mcp_to_mw_secret", Problem: "must be configured"}
	}
	return []byte(c.Auth.MCPToMWSecret), nil
}

// TokenTTL returns the lifetime of host→backend assertions.
func (c *Config) TokenTTL() (time.Duration, error) {
	if c.Auth.TokenTTL <= 0 {
		return 0, &FieldError{Field: "auth.token_ttl", Problem: "must be a positive number of seconds"}
	}
	return time.Duration(c.Auth.TokenTTL) * time.Second, nil
}

// Leeway returns the clock-skew tolerance for verifying backend→host assertions.
func (c *Config) Leeway() (time.Duration, error) {
	if c.Auth.Leeway == nil {
		return DefaultLeewaySeconds * time.Second, nil
	}
	if *c.Auth.Leeway < 0 {
		return 0, &FieldError{Field: "auth.leeway", Problem: "must not be negative"}
	}
	return time.Duration(*c.Auth.Leeway) * time.Second, nil
}

// WikiID returns the tenant identifier embedded in host→backend assertions.
func (c *Config) WikiID() (string, error) {
	id := strings.TrimSpace(c.Assistant.WikiID)
	if id == "" {
		return "", &FieldError{Field: "assistant.wiki_id", Problem: "must be configured"}
	}
	return id, nil
}

// MCPBaseURL returns the backend base URL without a trailing slash.
func (c *Config) MCPBaseURL() (string, error) {
	u := strings.TrimRight(strings.TrimSpace(c.Assistant.MCPBaseURL), "/")
	if u == "" {
		return "", &FieldError{Field: "assistant.mcp_base_url", Problem: "must be configured"}
	}
	return u, nil
}

// PublicURL returns the externally visible base URL of this host.
// Falls back to http://<server.http_addr> when public_url is unset.
func (c *Config) PublicURL() string {
	if u := strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/"); u != "" {
		return u
	}
	return "http://" + c.Server.HTTPAddr
}
