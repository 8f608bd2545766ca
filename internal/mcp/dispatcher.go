// ABOUTME: Dispatcher that classifies JSON-RPC envelopes and routes them by method.
// ABOUTME: Maps every failure to a JSON-RPC error and never answers a notification.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/2389/stash-mcp/internal/tools"
)

// MethodHandler produces the result of a call. Returning a *jsonrpc2.Error
// sends that error as-is; any other error becomes an internal error.
type MethodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler reacts to a notification. Its error is only logged.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// Reporter receives internal errors for out-of-band reporting.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, error, map[string]string) {}

// ServerInfo identifies the server in initialize results.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertised by initialize. Only tools are offered.
type Capabilities struct {
	Tools struct{} `json:"tools"`
}

// InitializeResult is the result for initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []tools.Descriptor `json:"tools"`
}

// CancelledParams are the params of notifications/cancelled.
type CancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}

// Config holds configuration for the Dispatcher.
type Config struct {
	Registry   *tools.Registry
	Logger     *slog.Logger
	Reporter   Reporter
	ServerName string
	Version    string
}

// Dispatcher routes decoded requests. It holds only immutable state and is
// safe for concurrent use.
type Dispatcher struct {
	registry      *tools.Registry
	logger        *slog.Logger
	reporter      Reporter
	info          ServerInfo
	methods       map[string]MethodHandler
	notifications map[string]NotificationHandler
}

// NewDispatcher creates a Dispatcher with the initialize, tools/list and
// tools/call methods bound to the given registry.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}

	name := cfg.ServerName
	if name == "" {
		name = "stash-mcp"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	d := &Dispatcher{
		registry: cfg.Registry,
		logger:   logger.With("component", "mcp"),
		reporter: reporter,
		info:     ServerInfo{Name: name, Version: version},
	}
	d.methods = map[string]MethodHandler{
		"initialize": d.handleInitialize,
		"tools/list": d.handleToolsList,
		"tools/call": d.handleToolsCall,
	}
	d.notifications = map[string]NotificationHandler{
		"notifications/initialized": d.handleInitialized,
		"notifications/cancelled":   d.handleCancelled,
	}

	return d, nil
}

// Info returns the server identity advertised by initialize.
func (d *Dispatcher) Info() ServerInfo {
	return d.info
}

// Registry returns the tool registry the dispatcher routes tools/call to.
func (d *Dispatcher) Registry() *tools.Registry {
	return d.registry
}

// Methods returns the names of the routable methods, sorted.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch classifies and routes one request.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) Outcome {
	if req.IsNotification() {
		d.notify(ctx, req)
		return noContent()
	}

	id := req.responseID()

	if req.JSONRPC == "" || req.Method == "" || !req.HasID() {
		return failure(id, invalidRequest("missing required fields"))
	}

	handler, ok := d.methods[req.Method]
	if !ok {
		return failure(id, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "Method not found: " + req.Method,
		})
	}

	result, err := d.call(ctx, req.Method, handler, req.Params)
	if err != nil {
		return failure(id, d.classify(ctx, req.Method, err))
	}
	return success(id, result)
}

// call runs handler, converting a panic into an error.
func (d *Dispatcher) call(ctx context.Context, method string, handler MethodHandler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in method handler",
				"method", method,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic in %s: %v", method, r)
		}
	}()
	return handler(ctx, params)
}

// classify keeps typed JSON-RPC errors and maps everything else to an
// internal error, reporting it.
func (d *Dispatcher) classify(ctx context.Context, method string, err error) *jsonrpc2.Error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	tags := map[string]string{"method": method}
	var tf *toolFailure
	if errors.As(err, &tf) {
		tags["tool"] = tf.tool
		tags["request_id"] = tf.requestID
	}

	d.logger.Warn("internal error", "method", method, "error", err)
	d.reporter.Report(ctx, err, tags)

	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
}

// notify runs the notification handler, if any. Nothing it does can reach
// the client.
func (d *Dispatcher) notify(ctx context.Context, req *Request) {
	handler, ok := d.notifications[req.Method]
	if !ok {
		d.logger.Warn("unrecognized notification", "method", req.Method)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in notification handler",
				"method", req.Method,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			d.reporter.Report(ctx, fmt.Errorf("panic in %s: %v", req.Method, r), map[string]string{"method": req.Method})
		}
	}()

	if err := handler(ctx, req.Params); err != nil {
		d.logger.Warn("notification handling failed", "method", req.Method, "error", err)
	}
}

func (d *Dispatcher) handleInitialize(context.Context, json.RawMessage) (any, error) {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      d.info,
	}, nil
}

func (d *Dispatcher) handleToolsList(context.Context, json.RawMessage) (any, error) {
	descriptors := d.registry.Descriptors()
	d.logger.Debug("tools/list", "count", len(descriptors))
	return ListToolsResult{Tools: descriptors}, nil
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	// Generate request ID for correlation
	requestID := uuid.New().String()

	d.logger.Debug("tools/call", "request_id", requestID)

	result, err := d.registry.Call(ctx, params)
	if err != nil {
		var callErr *tools.CallError
		if !errors.As(err, &callErr) {
			return nil, err
		}
		d.logger.Warn("tool call failed",
			"tool_name", callErr.Tool,
			"request_id", requestID,
			"error", callErr.Err,
		)
		return nil, &toolFailure{tool: callErr.Tool, requestID: requestID, err: err}
	}

	d.logger.Debug("tools/call complete", "request_id", requestID)
	return result, nil
}

func (d *Dispatcher) handleInitialized(context.Context, json.RawMessage) error {
	d.logger.Info("client initialized")
	return nil
}

func (d *Dispatcher) handleCancelled(_ context.Context, params json.RawMessage) error {
	var p CancelledParams
	if !isNull(params) {
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("decoding cancelled params: %w", err)
		}
	}
	d.logger.Info("client cancelled request",
		"request_id", string(p.RequestID),
		"reason", p.Reason,
	)
	return nil
}

// toolFailure annotates a tools/call error with the tool and correlation id.
// Its message is the underlying error's.
type toolFailure struct {
	tool      string
	requestID string
	err       error
}

func (e *toolFailure) Error() string { return e.err.Error() }

func (e *toolFailure) Unwrap() error { return e.err }
