// ABOUTME: HTTP transport for the dispatcher on the single /mcp endpoint.
// ABOUTME: Maps dispatch outcomes to status codes and serves an info page on GET.

package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/yuin/goldmark"
)

// Endpoint is the path the transport is mounted on.
const Endpoint = "/mcp"

const infoMessage = "MCP endpoint. POST JSON-RPC 2.0 requests to this URL."

// ServerConfig holds configuration for the HTTP transport.
type ServerConfig struct {
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// Server serves the dispatcher over HTTP.
type Server struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	infoPage   []byte
}

// NewServer creates the HTTP transport for a dispatcher.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		dispatcher: cfg.Dispatcher,
		logger:     logger.With("component", "mcp-http"),
	}
	s.infoPage = s.renderInfoPage()
	return s, nil
}

// Info returns the identity of the server behind the endpoint.
func (s *Server) Info() ServerInfo {
	return s.dispatcher.Info()
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(Endpoint, s)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleInfo(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Mcp-Protocol-Version")
	h.Set("Access-Control-Max-Age", "86400")
}

// handlePost processes one JSON-RPC message sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeParseError,
			Message: "failed to read request body",
		})
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendError(w, http.StatusRequestEntityTooLarge, nil, invalidRequest("request body too large"))
		return
	}

	req, rpcErr := DecodeRequest(body)
	if rpcErr != nil {
		s.logger.Debug("rejected MCP request", "code", rpcErr.Code, "message", rpcErr.Message)
		s.sendError(w, http.StatusBadRequest, nil, rpcErr)
		return
	}

	outcome := s.dispatcher.Dispatch(r.Context(), req)

	s.logger.Debug("MCP request",
		"method", req.Method,
		"id", string(req.ID),
		"outcome", outcome.Kind.String(),
	)

	switch outcome.Kind {
	case NoContent:
		w.WriteHeader(http.StatusNoContent)
	case Success:
		s.writeJSON(w, http.StatusOK, outcome.Response())
	default:
		s.writeJSON(w, statusForCode(outcome.Err.Code), outcome.Response())
	}
}

// statusForCode maps a JSON-RPC error code to an HTTP status.
func statusForCode(code int64) int {
	switch code {
	case jsonrpc2.CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// infoResponse is the JSON body of GET /mcp.
type infoResponse struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Message  string `json:"message"`
	Endpoint string `json:"endpoint"`
}

// handleInfo serves the informational message, as HTML for browsers.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if prefersHTML(r.Header.Get("Accept")) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(s.infoPage); err != nil {
			s.logger.Warn("failed to write info page", "error", err)
		}
		return
	}

	info := s.dispatcher.Info()
	s.writeJSON(w, http.StatusOK, infoResponse{
		Name:     info.Name,
		Version:  info.Version,
		Message:  infoMessage,
		Endpoint: Endpoint,
	})
}

// renderInfoPage converts the markdown description of the server to HTML.
func (s *Server) renderInfoPage() []byte {
	info := s.dispatcher.Info()

	var md strings.Builder
	fmt.Fprintf(&md, "# %s %s\n\n", info.Name, info.Version)
	fmt.Fprintf(&md, "%s\n\n", infoMessage)
	md.WriteString("## Methods\n\n")
	for _, method := range s.dispatcher.Methods() {
		fmt.Fprintf(&md, "- `%s`\n", method)
	}
	md.WriteString("\n## Tools\n\n")
	for _, tool := range s.dispatcher.Registry().Descriptors() {
		fmt.Fprintf(&md, "- **%s**: %s\n", tool.Name, tool.Description)
	}

	var body bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &body); err != nil {
		s.logger.Error("failed to convert markdown", "error", err)
		body.Reset()
		body.WriteString("<p>" + html.EscapeString(infoMessage) + "</p>")
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	page.WriteString(html.EscapeString(info.Name))
	page.WriteString("</title></head><body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body></html>\n")
	return page.Bytes()
}

// prefersHTML reports whether text/html is listed before application/json
// in an Accept header. Quality values are ignored.
func prefersHTML(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case "text/html":
			return true
		case "application/json":
			return false
		}
	}
	return false
}

// sendError sends a JSON-RPC error response that was not produced by dispatch.
func (s *Server) sendError(w http.ResponseWriter, status int, id json.RawMessage, rpcErr *jsonrpc2.Error) {
	s.writeJSON(w, status, failure(id, rpcErr).Response())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}
