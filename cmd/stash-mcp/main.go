// ABOUTME: Entry point for the stash-mcp JSON-RPC tool server
// ABOUTME: Cobra commands to serve, check health, list tools, and print the version

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/stash-mcp/internal/config"
	"github.com/2389/stash-mcp/internal/server"
	"github.com/2389/stash-mcp/internal/telemetry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _            _
 ___| |_ __ _ ___| |__        _ __ ___   ___ _ __
/ __| __/ _' / __| '_ \ _____| '_ ' _ \ / __| '_ \
\__ \ || (_| \__ \ | | |_____| | | | | | (__| |_) |
|___/\__\__,_|___/_| |_|     |_| |_| |_|\___| .__/
                                            |_|
`

var errUnhealthy = errors.New("unhealthy")

// loadConfig loads the file named by --config, or the default path. A missing
// file is only an error when it was named explicitly.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("loading config: %w", err)
		}
		return cfg, path, nil
	}

	path = config.DefaultPath()
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "stash-mcp",
		Short:         "stash-mcp - JSON-RPC tool server with a conversation archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default $STASH_CONFIG or ~/.config/stash/config.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the MCP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Check server health",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runHealth(cmd.Context(), configPath, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "tools",
			Short: "Print the enabled tool descriptors as JSON",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTools(configPath, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "stash-mcp %s\n", version)
			},
		},
	)

	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath string, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.reporter.Flush(telemetry.DefaultFlushTimeout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", path)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Tools:     %d\n", len(a.registry.Names()))
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Archive:   ")
	if cfg.Archive.BaseURL != "" {
		cyan.Fprintln(out, cfg.Archive.BaseURL)
	} else {
		yellow.Fprintln(out, "not configured")
	}

	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	}
	if a.reporter.Enabled() {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintln(out, "Sentry:    enabled")
	}

	fmt.Fprintln(out)

	logger.Info("starting stash-mcp",
		"config", path,
		"http_addr", cfg.Server.HTTPAddr,
		"tools", a.registry.Names(),
	)

	return a.server.Run(ctx)
}

func runHealth(ctx context.Context, configPath string, out io.Writer) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, server.HealthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", errUnhealthy, resp.StatusCode)
	}

	fmt.Fprintln(out, "healthy")
	return nil
}

func runTools(configPath string, out io.Writer) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(config.LoggingConfig{Level: "error"}, io.Discard)
	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(registry.Descriptors())
}
