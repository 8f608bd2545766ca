// Package config handles configuration loading for stash-mcp.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Every field has a usable default, so the server starts without a
// config file at all.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from STASH_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/stash/config.yaml
//  4. ~/.config/stash/config.yaml
//
// Files ending in .toml are decoded as TOML; everything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	archive:
//	  base_url: "${ARCHIVE_ENDPOINT}"
//
// Two variables override the file directly: STASH_HTTP_ADDR and
// STASH_ARCHIVE_URL.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:3000"
//	  shutdown_timeout: "10s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "stash-mcp"
//	  auth_key: "${TS_AUTHKEY}"
//
//	archive:
//	  base_url: "https://archive.example.com"
//	  timeout: "30s"
//	  oauth:
//	    client_id: "stash"
//	    client_secret: "${ARCHIVE_CLIENT_SECRET}"
//	    token_url: "https://auth.example.com/oauth/token"
//
//	tools:
//	  enabled: ["add", "reverse", "save_conversation"]
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	sentry:
//	  dsn: "${SENTRY_DSN}"
//
// The archive base URL is intentionally optional: its absence only fails the
// save_conversation tool when it is invoked.
package config
