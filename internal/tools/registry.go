// ABOUTME: Immutable registry mapping tool names to their schema and handler.
// ABOUTME: Validates tools/call params and arguments before running the matched handler.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
)

// ErrDuplicateTool indicates two tools were registered under one name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Handler executes a tool with arguments that already passed schema validation.
// It returns the human-readable text placed in the tool result.
type Handler func(ctx context.Context, args Arguments) (string, error)

// Tool couples a tool's advertised metadata with its handler.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Handler     Handler
}

// Descriptor returns the tools/list entry for the tool.
func (t Tool) Descriptor() Descriptor {
	return Descriptor{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.Schema,
	}
}

// Descriptor is a tool as advertised by tools/list.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"inputSchema"`
}

// Content is one item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result of a successful tools/call.
type CallResult struct {
	Content []Content `json:"content"`
}

// TextResult wraps text as a single text content item.
func TextResult(text string) *CallResult {
	return &CallResult{Content: []Content{{Type: "text", Text: text}}}
}

// invocation is a decoded tools/call request.
type invocation struct {
	name string
	args Arguments
}

// CallError is a failure returned by a tool's handler. Routing and validation
// failures are never wrapped in it.
type CallError struct {
	Tool string
	Err  error
}

func (e *CallError) Error() string { return e.Tool + ": " + e.Err.Error() }

func (e *CallError) Unwrap() error { return e.Err }

// Registry holds the tools known to the server. It is not modified after
// NewRegistry returns, so it is safe for concurrent use.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry validates and stores the given tools in order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(tools)),
		tools: make(map[string]Tool, len(tools)),
	}

	for _, tool := range tools {
		if tool.Name == "" {
			return nil, errors.New("tool name is required")
		}
		if tool.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", tool.Name)
		}
		if _, exists := r.tools[tool.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name)
		}
		if err := tool.Schema.check(); err != nil {
			return nil, fmt.Errorf("tool %q: %w", tool.Name, err)
		}
		r.order = append(r.order, tool.Name)
		r.tools[tool.Name] = tool
	}

	return r, nil
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Descriptors returns every tool's descriptor in registration order.
func (r *Registry) Descriptors() []Descriptor {
	descriptors := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		descriptors = append(descriptors, r.tools[name].Descriptor())
	}
	return descriptors
}

// Call resolves, validates, and runs the tool described by params.
//
// Routing and validation failures are *jsonrpc2.Error values
// (CodeInvalidParams or CodeMethodNotFound). Errors from the handler itself are
// returned as *CallError and left unclassified.
func (r *Registry) Call(ctx context.Context, params json.RawMessage) (*CallResult, error) {
	inv, err := decodeParams(params)
	if err != nil {
		return nil, err
	}

	tool, ok := r.tools[inv.name]
	if !ok {
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "Unknown tool: " + inv.name,
		}
	}

	if problems := tool.Schema.Validate(inv.args); len(problems) > 0 {
		return nil, invalidParams(strings.Join(problems, "; "))
	}

	text, err := tool.Handler(ctx, inv.args)
	if err != nil {
		return nil, &CallError{Tool: inv.name, Err: err}
	}

	return TextResult(text), nil
}

func decodeParams(params json.RawMessage) (*invocation, error) {
	if isAbsent(params) {
		return nil, invalidParams("missing tool name")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(params, &fields); err != nil {
		return nil, invalidParams("params must be an object")
	}

	rawName, ok := fields["name"]
	if !ok || isAbsent(rawName) {
		return nil, invalidParams("missing tool name")
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil {
		return nil, invalidParams("tool name must be a string")
	}
	if name == "" {
		return nil, invalidParams("missing tool name")
	}

	args := Arguments{}
	if rawArgs, ok := fields["arguments"]; ok && !isAbsent(rawArgs) {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, invalidParams("arguments must be an object")
		}
	}

	return &invocation{name: name, args: args}, nil
}

func invalidParams(detail string) *jsonrpc2.Error {
	return &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidParams,
		Message: "Invalid params - " + detail,
	}
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
