// ABOUTME: init subcommand: prompts for the basics and writes a YAML config with fresh secrets
// ABOUTME: Both signing secrets are 48 random bytes, one per direction

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/labki-org/mwassistant-gateway/internal/config"
)

const (
	secretBytes     = 48
	defaultTokenTTL = 30 // seconds
)

// generateSecret returns secretBytes random bytes, base64url encoded.
func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// initAnswers are the values collected by runInit.
type initAnswers struct {
	HTTPAddr   string
	PublicURL  string
	DBPath     string
	WikiID     string
	MCPBaseURL string
	LogLevel   string
	LogFormat  string
}

// renderConfig builds the YAML for a new config file, minting both secrets.
// The result round-trips through config.Parse.
func renderConfig(a initAnswers) ([]byte, error) {
	toBackend, err := generateSecret()
	if err != nil {
		return nil, err
	}
	toHost, err := generateSecret()
	if err != nil {
		return nil, err
	}
	leeway := config.DefaultLeewaySeconds

	cfg := config.Config{
		Server:   config.ServerConfig{HTTPAddr: a.HTTPAddr, PublicURL: a.PublicURL},
		Database: config.DatabaseConfig{Path: a.DBPath},
		Assistant: config.AssistantConfig{
			Enabled:           a.MCPBaseURL != "",
			MCPBaseURL:        a.MCPBaseURL,
			WikiID:            a.WikiID,
			AutoEmbed:         a.MCPBaseURL != "",
			Retries:           2,
			RequestTimeoutRaw: config.DefaultRequestTimeout.String(),
			RetryDelayRaw:     config.DefaultRetryDelay.String(),
		},
		Auth: config.AuthConfig{
			MWToMCPSecret: toBackend,
			MCPToMWSecret: toHost,
			TokenTTL:      defaultTokenTTL,
			Leeway:        &leeway,
			SessionCookie: config.DefaultSessionCookie,
		},
		Embeddings: config.EmbeddingsConfig{
			QueueSize: config.DefaultQueueSize,
			Workers:   config.DefaultWorkers,
		},
		Logging: config.LoggingConfig{Level: a.LogLevel, Format: a.LogFormat},
	}

	body, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	header := "# mwassistant-gateway configuration\n# Generated by mwassistant-gateway init\n\n"
	return append([]byte(header), body...), nil
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "mwassistant-gateway configuration setup")
	fmt.Fprintln(out, "=======================================")
	fmt.Fprintln(out)

	defaultDBPath := filepath.Join(getDataPath(), "gateway.db")

	outputFile := prompt(reader, out, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := strings.ToLower(prompt(reader, out, "File exists. Overwrite?", "no"))
		if overwrite != "yes" && overwrite != "y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	var a initAnswers
	a.HTTPAddr = prompt(reader, out, "HTTP address", "localhost:8080")
	a.PublicURL = prompt(reader, out, "Public wiki URL", "http://"+a.HTTPAddr)
	a.WikiID = prompt(reader, out, "Wiki id", "wiki")

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	a.DBPath = prompt(reader, out, "SQLite database path", defaultDBPath)

	fmt.Fprintln(out, "\n--- Assistant Backend ---")
	a.MCPBaseURL = prompt(reader, out, "Backend base URL (leave empty to disable)", "")

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	data, err := renderConfig(a)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// secrets inside
	if err := os.WriteFile(outputFile, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(a.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	fmt.Fprintf(out, "Token TTL: %ds\n", defaultTokenTTL)
	fmt.Fprintln(out, "\nShare auth.mw_to_mcp_secret and auth.mcp_to_mw_secret with the assistant backend, then:")
	fmt.Fprintln(out, "  mwassistant-gateway serve")

	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
