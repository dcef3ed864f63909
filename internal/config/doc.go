// Package config handles configuration loading for mwassistant-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML when the file name ends in
// .toml) with environment variable expansion. The loaded Config is built once at
// startup and passed explicitly to every component; there is no package-level
// state.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from MWASSISTANT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/mwassistant/gateway.yaml
//  3. ~/.config/mwassistant/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  mw_to_mcp_secret: "${MWASSISTANT_MW_TO_MCP_SECRET}"
//	  mcp_to_mw_secret: "${MWASSISTANT_MCP_TO_MW_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  public_url: "https://wiki.example.org"
//
//	database:
//	  path: "/var/lib/mwassistant/gateway.db"
//
//	assistant:
//	  enabled: true
//	  mcp_base_url: "http://localhost:8000"
//	  wiki_id: "my-wiki"
//	  auto_embed: true
//	  request_timeout: "30s"
//	  retries: 1
//	  retry_delay: "500ms"
//
//	auth:
//	  mw_to_mcp_secret: "..."
//	  mcp_to_mw_secret: "..."
//	  token_ttl: 60     # seconds
//	  leeway: 10        # seconds of clock skew tolerated when verifying
//
//	embeddings:
//	  queue_size: 256
//	  workers: 2
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates only what is needed to start: the HTTP address, the database
// path, and the logging format. Secrets, the token TTL, the wiki id and the
// backend URL are checked by their accessors (MWToMCPSecret, MCPToMWSecret,
// TokenTTL, WikiID, MCPBaseURL) the first time a component asks for them. Their
// errors wrap ErrInvalid and never contain the configured value.
package config
