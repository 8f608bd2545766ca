// Package server runs the stash-mcp HTTP server.
//
// It mounts the MCP transport on /mcp and a liveness probe on /health, then
// listens either on plain TCP (server.http_addr) or on a Tailscale node via
// tsnet when tailscale.enabled is set. Run blocks until its context is
// cancelled and then shuts down gracefully within server.shutdown_timeout.
package server
