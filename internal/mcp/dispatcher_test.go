// ABOUTME: Tests for envelope classification, method routing, and error mapping.
// ABOUTME: Covers the notification rule, typed errors, internal errors, and panic recovery.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/stash-mcp/internal/builtins"
	"github.com/2389/stash-mcp/internal/tools"
)

type fakeArchiver struct {
	url string
	err error
}

func (f *fakeArchiver) Archive(context.Context, string, string) (string, error) {
	return f.url, f.err
}

// recordingReporter implements Reporter for testing.
type recordingReporter struct {
	mu      sync.Mutex
	errs    []error
	tagSets []map[string]string
}

func (r *recordingReporter) Report(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tagSets = append(r.tagSets, tags)
}

func panicTool() tools.Tool {
	return tools.Tool{
		Name:        "explode",
		Description: "Always panics",
		Schema:      tools.ObjectSchema(nil),
		Handler: func(context.Context, tools.Arguments) (string, error) {
			panic("kaboom")
		},
	}
}

func newTestDispatcher(t *testing.T, archiver *fakeArchiver, reporter Reporter, extra ...tools.Tool) *Dispatcher {
	t.Helper()
	if archiver == nil {
		archiver = &fakeArchiver{url: "https://archive.example.com/c/1"}
	}
	all := append(builtins.All(builtins.Deps{Archiver: archiver}), extra...)
	registry, err := tools.NewRegistry(all...)
	require.NoError(t, err)

	d, err := NewDispatcher(Config{
		Registry:   registry,
		Logger:     slog.Default(),
		Reporter:   reporter,
		ServerName: "stash-test",
		Version:    "1.2.3",
	})
	require.NoError(t, err)
	return d
}

func decode(t *testing.T, body string) *Request {
	t.Helper()
	req, rpcErr := DecodeRequest([]byte(body))
	require.Nil(t, rpcErr)
	return req
}

func dispatch(t *testing.T, d *Dispatcher, body string) Outcome {
	t.Helper()
	return d.Dispatch(context.Background(), decode(t, body))
}

func requireFailure(t *testing.T, outcome Outcome, code int64) *jsonrpc2.Error {
	t.Helper()
	require.Equal(t, Failure, outcome.Kind)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, code, outcome.Err.Code)
	return outcome.Err
}

func TestNewDispatcher_RequiresRegistry(t *testing.T) {
	_, err := NewDispatcher(Config{})
	assert.Error(t, err)
}

func TestDispatch_Notifications(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, panicTool())

	bodies := []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":3,"reason":"user"}}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":"not an object"}`,
		`{"jsonrpc":"2.0","method":"notifications/whatever"}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"explode"}}`,
		`{"jsonrpc":"2.0","method":"no/such/method"}`,
		`{"method":"initialize"}`,
		`{"jsonrpc":"1.0","method":"tools/list","id":null}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			outcome := dispatch(t, d, body)
			assert.Equal(t, NoContent, outcome.Kind)
			assert.Nil(t, outcome.Response())
		})
	}
}

func TestDispatch_NotificationPanicIsSwallowed(t *testing.T) {
	reporter := &recordingReporter{}
	d := newTestDispatcher(t, nil, reporter)
	d.notifications["notifications/boom"] = func(context.Context, json.RawMessage) error {
		panic("notification failure")
	}

	outcome := dispatch(t, d, `{"jsonrpc":"2.0","method":"notifications/boom"}`)
	assert.Equal(t, NoContent, outcome.Kind)
	assert.Len(t, reporter.errs, 1)
}

func TestDispatch_InvalidRequests(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	tests := []struct {
		name    string
		body    string
		id      string
		message string
	}{
		{"missing jsonrpc", `{"method":"tools/list","id":1}`, "1", "Invalid Request - missing required fields"},
		{"missing method", `{"jsonrpc":"2.0","id":"abc"}`, `"abc"`, "Invalid Request - missing required fields"},
		{"missing everything", `{}`, "null", "Invalid Request - missing required fields"},
		{"missing method and id", `{"jsonrpc":"2.0"}`, "null", "Invalid Request - missing required fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := dispatch(t, d, tt.body)
			rpcErr := requireFailure(t, outcome, jsonrpc2.CodeInvalidRequest)
			assert.Equal(t, tt.message, rpcErr.Message)

			data, err := json.Marshal(outcome.Response())
			require.NoError(t, err)
			var env map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &env))
			assert.JSONEq(t, tt.id, string(env["id"]))
			assert.NotContains(t, env, "result")
		})
	}
}

func TestDispatch_RoutesAnyJSONRPCValue(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	outcome := dispatch(t, d, `{"jsonrpc":"1.0","id":7,"method":"initialize"}`)
	require.Equal(t, Success, outcome.Kind)
	assert.JSONEq(t, "7", string(outcome.ID))

	resp := outcome.Response()
	assert.Equal(t, Version, resp.JSONRPC)
}

func TestDispatch_NotificationWithMistypedFields(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	bodies := []string{
		`{"jsonrpc":2,"method":"notifications/initialized"}`,
		`{"jsonrpc":["2.0"],"method":"tools/call","id":null,"params":{"name":"add"}}`,
		`{"jsonrpc":true,"method":"notifications/cancelled","params":{"requestId":1}}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			outcome := dispatch(t, d, body)
			assert.Equal(t, NoContent, outcome.Kind)
			assert.Nil(t, outcome.Response())
		})
	}
}

func TestDecodeRequest_MistypedCallIsInvalid(t *testing.T) {
	tests := []string{
		`{"jsonrpc":2,"method":"tools/list","id":1}`,
		`{"jsonrpc":2,"method":5}`,
		`{"jsonrpc":2}`,
	}

	for _, body := range tests {
		t.Run(body, func(t *testing.T) {
			req, rpcErr := DecodeRequest([]byte(body))
			assert.Nil(t, req)
			require.NotNil(t, rpcErr)
			assert.Equal(t, int64(jsonrpc2.CodeInvalidRequest), rpcErr.Code)
		})
	}
}

func TestDispatch_MethodNotFound(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	outcome := dispatch(t, d, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	rpcErr := requireFailure(t, outcome, jsonrpc2.CodeMethodNotFound)
	assert.Equal(t, "Method not found: resources/list", rpcErr.Message)
}

func TestDispatch_Initialize(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	first := dispatch(t, d, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	second := dispatch(t, d, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01","clientInfo":{"name":"x"}}}`)

	require.Equal(t, Success, first.Kind)
	require.Equal(t, Success, second.Kind)
	assert.Equal(t, first.Result, second.Result)

	data, err := json.Marshal(first.Response())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonrpc": "2.0",
		"id": 1,
		"result": {
			"protocolVersion": "2024-11-05",
			"capabilities": {"tools": {}},
			"serverInfo": {"name": "stash-test", "version": "1.2.3"}
		}
	}`, string(data))
}

func TestDispatch_ToolsList(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	first := dispatch(t, d, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Equal(t, Success, first.Kind)

	result, ok := first.Result.(ListToolsResult)
	require.True(t, ok)
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"add", "reverse", "save_conversation"}, names)

	dispatch(t, d, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":1,"b":1}}}`)
	again := dispatch(t, d, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	assert.Equal(t, first.Result, again.Result)
}

func TestDispatch_ToolsCall(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	tests := []struct {
		name string
		body string
		code int64
	}{
		{"absent params", `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`, jsonrpc2.CodeInvalidParams},
		{"absent name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`, jsonrpc2.CodeInvalidParams},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"multiply"}}`, jsonrpc2.CodeMethodNotFound},
		{"wrong type", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add","arguments":{"a":"2","b":3}}}`, jsonrpc2.CodeInvalidParams},
		{"missing argument", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"reverse","arguments":{}}}`, jsonrpc2.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireFailure(t, dispatch(t, d, tt.body), tt.code)
		})
	}
}

func TestDispatch_ToolsCallSuccess(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	outcome := dispatch(t, d, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`)
	require.Equal(t, Success, outcome.Kind)

	data, err := json.Marshal(outcome.Response())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"Result: 5"}]}}`, string(data))
}

func TestDispatch_ZeroAndStringIDsAreCalls(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	for _, id := range []string{`0`, `""`, `"req-1"`, `-4`} {
		outcome := dispatch(t, d, `{"jsonrpc":"2.0","id":`+id+`,"method":"tools/list"}`)
		require.Equal(t, Success, outcome.Kind, "id %s", id)
		assert.JSONEq(t, id, string(outcome.ID))
	}
}

func TestDispatch_ArchiveFailureIsInternalError(t *testing.T) {
	reporter := &recordingReporter{}
	d := newTestDispatcher(t, &fakeArchiver{err: errors.New("archive returned 503")}, reporter)

	outcome := dispatch(t, d, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"save_conversation","arguments":{"content":"hello","model":"claude"}}}`)
	rpcErr := requireFailure(t, outcome, jsonrpc2.CodeInternalError)
	assert.Contains(t, rpcErr.Message, "archive returned 503")
	assert.JSONEq(t, "9", string(outcome.ID))

	require.Len(t, reporter.tagSets, 1)
	assert.Equal(t, "tools/call", reporter.tagSets[0]["method"])
	assert.Equal(t, "save_conversation", reporter.tagSets[0]["tool"])
	assert.NotEmpty(t, reporter.tagSets[0]["request_id"])
}

func TestDispatch_ArchiveSuccessReturnsURL(t *testing.T) {
	d := newTestDispatcher(t, &fakeArchiver{url: "https://stash.example.com/s/abc123"}, nil)

	outcome := dispatch(t, d, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"save_conversation","arguments":{"content":"hello","model":"grok"}}}`)
	require.Equal(t, Success, outcome.Kind)

	result, ok := outcome.Result.(*tools.CallResult)
	require.True(t, ok)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "https://stash.example.com/s/abc123")
}

func TestDispatch_PanicBecomesInternalError(t *testing.T) {
	reporter := &recordingReporter{}
	d := newTestDispatcher(t, nil, reporter, panicTool())

	outcome := dispatch(t, d, `{"jsonrpc":"2.0","id":"p","method":"tools/call","params":{"name":"explode"}}`)
	rpcErr := requireFailure(t, outcome, jsonrpc2.CodeInternalError)
	assert.Contains(t, rpcErr.Message, "kaboom")
	assert.Len(t, reporter.errs, 1)

	// The dispatcher keeps working after a panic.
	next := dispatch(t, d, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	assert.Equal(t, Success, next.Kind)
}

func TestDispatch_TypedErrorsAreNotReported(t *testing.T) {
	reporter := &recordingReporter{}
	d := newTestDispatcher(t, nil, reporter)

	dispatch(t, d, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`)
	dispatch(t, d, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{}}}`)

	assert.Empty(t, reporter.errs)
}

func TestDispatch_Concurrent(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := d.Dispatch(context.Background(), &Request{
				JSONRPC: Version,
				Method:  "tools/call",
				ID:      json.RawMessage(`1`),
				Params:  json.RawMessage(`{"name":"reverse","arguments":{"text":"abc"}}`),
			})
			assert.Equal(t, Success, outcome.Kind)
		}()
	}
	wg.Wait()
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    int64
		message string
	}{
		{"empty body", ``, jsonrpc2.CodeParseError, "Parse error"},
		{"invalid json", `{"jsonrpc":`, jsonrpc2.CodeParseError, "Parse error"},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"tools/list"}]`, jsonrpc2.CodeInvalidRequest, "Invalid Request - batch requests are not supported"},
		{"scalar", `42`, jsonrpc2.CodeInvalidRequest, "Invalid Request"},
		{"numeric method", `{"jsonrpc":"2.0","id":1,"method":5}`, jsonrpc2.CodeInvalidRequest, "Invalid Request"},
		{"object id", `{"jsonrpc":"2.0","id":{},"method":"tools/list"}`, jsonrpc2.CodeInvalidRequest, "Invalid Request - id must be a string or number"},
		{"bool id", `{"jsonrpc":"2.0","id":true,"method":"tools/list"}`, jsonrpc2.CodeInvalidRequest, "Invalid Request - id must be a string or number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rpcErr := DecodeRequest([]byte(tt.body))
			assert.Nil(t, req)
			require.NotNil(t, rpcErr)
			assert.Equal(t, tt.code, rpcErr.Code)
			assert.Equal(t, tt.message, rpcErr.Message)
		})
	}
}

func TestRequest_Classification(t *testing.T) {
	assert.True(t, decode(t, `{"method":"x"}`).IsNotification())
	assert.True(t, decode(t, `{"method":"x","id":null}`).IsNotification())
	assert.False(t, decode(t, `{"method":"x","id":0}`).IsNotification())
	assert.False(t, decode(t, `{"id":1}`).IsNotification())
	assert.False(t, decode(t, `{}`).IsNotification())
}
