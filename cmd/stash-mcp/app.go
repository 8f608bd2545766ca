// ABOUTME: Wires config into the running components: reporter, archive, tools, dispatcher, server.
// ABOUTME: Everything is built explicitly here and handed down; nothing is global.

package main

import (
	"fmt"
	"log/slog"

	"github.com/2389/stash-mcp/internal/archive"
	"github.com/2389/stash-mcp/internal/builtins"
	"github.com/2389/stash-mcp/internal/config"
	"github.com/2389/stash-mcp/internal/mcp"
	"github.com/2389/stash-mcp/internal/server"
	"github.com/2389/stash-mcp/internal/telemetry"
	"github.com/2389/stash-mcp/internal/tools"
)

const serverName = "stash-mcp"

type app struct {
	reporter   *telemetry.Reporter
	registry   *tools.Registry
	dispatcher *mcp.Dispatcher
	server     *server.Server
}

// newRegistry builds the tool registry for the configured tool selection.
func newRegistry(cfg *config.Config, logger *slog.Logger) (*tools.Registry, error) {
	archiveCfg := archive.Config{
		BaseURL: cfg.Archive.BaseURL,
		Timeout: cfg.Archive.Timeout,
		Logger:  logger,
	}
	if oauth := cfg.Archive.OAuth; oauth.Enabled() {
		archiveCfg.OAuth = &archive.OAuthConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			TokenURL:     oauth.TokenURL,
			Scopes:       oauth.Scopes,
		}
	}
	archiver := archive.NewClient(archiveCfg)
	if !archiver.Configured() {
		logger.Warn("archive base URL not set; save_conversation will fail until it is configured")
	}

	selected, err := builtins.Select(builtins.Deps{Archiver: archiver}, cfg.Tools.Enabled)
	if err != nil {
		return nil, fmt.Errorf("selecting tools: %w", err)
	}

	registry, err := tools.NewRegistry(selected...)
	if err != nil {
		return nil, fmt.Errorf("creating tool registry: %w", err)
	}
	return registry, nil
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	reporter, err := telemetry.New(telemetry.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Version:     version,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing error reporting: %w", err)
	}

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher, err := mcp.NewDispatcher(mcp.Config{
		Registry:   registry,
		Logger:     logger,
		Reporter:   reporter,
		ServerName: serverName,
		Version:    version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.ServerConfig{
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	srv, err := server.New(cfg, mcpServer, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	return &app{
		reporter:   reporter,
		registry:   registry,
		dispatcher: dispatcher,
		server:     srv,
	}, nil
}
