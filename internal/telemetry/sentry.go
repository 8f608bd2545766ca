// ABOUTME: Sentry-backed error reporter for internal errors and recovered panics.
// ABOUTME: Uses its own hub so reporting never depends on global SDK state.

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	gosentry "github.com/getsentry/sentry-go"
)

// DefaultFlushTimeout bounds how long Flush waits for buffered events.
const DefaultFlushTimeout = 2 * time.Second

// Config holds configuration for the Reporter.
type Config struct {
	DSN         string
	Environment string
	Version     string
	Logger      *slog.Logger

	// beforeSend intercepts events; tests use it to capture them.
	beforeSend func(*gosentry.Event, *gosentry.EventHint) *gosentry.Event
}

// Reporter sends errors to Sentry with per-call tags.
type Reporter struct {
	hub    *gosentry.Hub
	logger *slog.Logger
}

// New creates a Reporter. An empty DSN yields a disabled Reporter.
func New(cfg Config) (*Reporter, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telemetry")

	if cfg.DSN == "" {
		return &Reporter{logger: logger}, nil
	}

	client, err := gosentry.NewClient(gosentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          "stash-mcp@" + cfg.Version,
		AttachStacktrace: true,
		SampleRate:       1.0,
		BeforeSend:       cfg.beforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sentry client: %w", err)
	}

	hub := gosentry.NewHub(client, gosentry.NewScope())
	hub.ConfigureScope(func(scope *gosentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
		scope.SetTag("version", cfg.Version)
	})

	logger.Info("sentry reporting enabled", "environment", cfg.Environment)
	return &Reporter{hub: hub, logger: logger}, nil
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Report captures err with the given tags.
func (r *Reporter) Report(_ context.Context, err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}

	hub := r.hub.Clone()
	hub.WithScope(func(scope *gosentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if id := hub.CaptureException(err); id != nil {
			r.logger.Debug("reported error", "event_id", string(*id))
		}
	})
}

// Flush waits up to timeout for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
