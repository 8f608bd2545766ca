// ABOUTME: Tests for the MCP HTTP transport on /mcp.
// ABOUTME: Checks status mapping, empty notification bodies, CORS, and the GET info page.

package mcp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(t *testing.T, archiver *fakeArchiver) *http.ServeMux {
	t.Helper()
	server, err := NewServer(ServerConfig{
		Dispatcher: newTestDispatcher(t, archiver, nil, panicTool()),
		Logger:     slog.Default(),
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	return mux
}

func post(t *testing.T, mux http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, Endpoint, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestNewServer_RequiresDispatcher(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestPost_EndToEndAdd(t *testing.T) {
	mux := newTestMux(t, nil)

	rr := post(t, mux, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"Result: 5"}]}}`, rr.Body.String())
}

func TestPost_NotificationsHaveNoBody(t *testing.T) {
	mux := newTestMux(t, nil)

	bodies := []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/unknown"}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"explode"}}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"add","arguments":{"a":"x"}}}`,
		`{"jsonrpc":2,"method":"notifications/initialized"}`,
		`{"jsonrpc":{"v":2},"method":"tools/list","id":null}`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			rr := post(t, mux, body)
			assert.Equal(t, http.StatusNoContent, rr.Code)
			assert.Zero(t, rr.Body.Len())
		})
	}
}

func TestPost_StatusMapping(t *testing.T) {
	mux := newTestMux(t, &fakeArchiver{err: errors.New("connection refused")})

	tests := []struct {
		name   string
		body   string
		status int
		code   int64
	}{
		{"parse error", `{not json`, http.StatusBadRequest, jsonrpc2.CodeParseError},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"tools/list"}]`, http.StatusBadRequest, jsonrpc2.CodeInvalidRequest},
		{"missing fields", `{"method":"tools/list","id":1}`, http.StatusBadRequest, jsonrpc2.CodeInvalidRequest},
		{"mistyped call", `{"jsonrpc":2,"method":"tools/list","id":1}`, http.StatusBadRequest, jsonrpc2.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`, http.StatusBadRequest, jsonrpc2.CodeMethodNotFound},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`, http.StatusBadRequest, jsonrpc2.CodeMethodNotFound},
		{"invalid params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, http.StatusBadRequest, jsonrpc2.CodeInvalidParams},
		{"archive failure", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"save_conversation","arguments":{"content":"c","model":"other"}}}`, http.StatusInternalServerError, jsonrpc2.CodeInternalError},
		{"panic", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"explode"}}`, http.StatusInternalServerError, jsonrpc2.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, mux, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			resp := decodeResponse(t, rr)
			assert.Equal(t, Version, resp.JSONRPC)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestPost_InternalErrorCarriesReason(t *testing.T) {
	mux := newTestMux(t, &fakeArchiver{err: errors.New("archive responded 502")})

	rr := post(t, mux, `{"jsonrpc":"2.0","id":"abc","method":"tools/call","params":{"name":"save_conversation","arguments":{"content":"c","model":"claude"}}}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	resp := decodeResponse(t, rr)
	assert.JSONEq(t, `"abc"`, string(resp.ID))
	assert.Contains(t, resp.Error.Message, "archive responded 502")
}

func TestPost_BodyTooLarge(t *testing.T) {
	mux := newTestMux(t, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"reverse","arguments":{"text":"` +
		strings.Repeat("a", MaxRequestBodySize) + `"}}}`
	rr := post(t, mux, body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidRequest), resp.Error.Code)
}

func TestPost_NullIDOnShapeErrors(t *testing.T) {
	mux := newTestMux(t, nil)

	rr := post(t, mux, `{"jsonrpc":"2.0"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "null", string(env["id"]))
}

func TestGet_InfoJSON(t *testing.T) {
	mux := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, Endpoint, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{
		"name": "stash-test",
		"version": "1.2.3",
		"message": "MCP endpoint. POST JSON-RPC 2.0 requests to this URL.",
		"endpoint": "/mcp"
	}`, rr.Body.String())
}

func TestGet_InfoHTML(t *testing.T) {
	mux := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodGet, Endpoint, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.Contains(t, body, "<h1>stash-test 1.2.3</h1>")
	assert.Contains(t, body, "<code>tools/call</code>")
	assert.Contains(t, body, "<strong>save_conversation</strong>")
}

func TestPrefersHTML(t *testing.T) {
	assert.True(t, prefersHTML("text/html"))
	assert.True(t, prefersHTML("text/html;q=0.9, application/json"))
	assert.False(t, prefersHTML("application/json, text/html"))
	assert.False(t, prefersHTML("*/*"))
	assert.False(t, prefersHTML(""))
}

func TestOptions_Preflight(t *testing.T) {
	mux := newTestMux(t, nil)

	req := httptest.NewRequest(http.MethodOptions, Endpoint, nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestCORSOnPost(t *testing.T) {
	mux := newTestMux(t, nil)
	rr := post(t, mux, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestMux(t, nil)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, Endpoint, nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, method)
		assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Allow"))
	}
}
