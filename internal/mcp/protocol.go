// ABOUTME: JSON-RPC 2.0 envelope types and the Outcome produced by a dispatch.
// ABOUTME: Decodes raw request bodies and classifies malformed ones before routing.

package mcp

import (
	"bytes"
	"encoding/json"

	"github.com/sourcegraph/jsonrpc2"
)

// Version is the only JSON-RPC version accepted and emitted.
const Version = "2.0"

// ProtocolVersion is the MCP protocol version advertised by initialize.
const ProtocolVersion = "2024-11-05"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// Request is a decoded JSON-RPC request envelope. Missing string fields decode
// as "". An absent or null id leaves ID empty or "null".
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// HasID reports whether the request carries a non-null id. An id of 0 or ""
// still counts.
func (r *Request) HasID() bool {
	return !isNull(r.ID)
}

// IsNotification reports whether the request names a method but has no id.
func (r *Request) IsNotification() bool {
	return !r.HasID() && r.Method != ""
}

// responseID is the id echoed in a response: the request's id, or null.
func (r *Request) responseID() json.RawMessage {
	if !r.HasID() {
		return nil
	}
	return r.ID
}

// Response is a JSON-RPC response envelope. Exactly one of Result and Error is
// set. A nil ID encodes as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonrpc2.Error `json:"error,omitempty"`
}

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	// NoContent means nothing is sent back: the request was a notification.
	NoContent OutcomeKind = iota
	// Success carries a result for the caller.
	Success
	// Failure carries a JSON-RPC error for the caller.
	Failure
)

func (k OutcomeKind) String() string {
	switch k {
	case NoContent:
		return "no_content"
	case Success:
		return "success"
	case Failure:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the result of dispatching one request.
type Outcome struct {
	Kind   OutcomeKind
	ID     json.RawMessage
	Result any
	Err    *jsonrpc2.Error
}

func noContent() Outcome {
	return Outcome{Kind: NoContent}
}

func success(id json.RawMessage, result any) Outcome {
	return Outcome{Kind: Success, ID: id, Result: result}
}

func failure(id json.RawMessage, err *jsonrpc2.Error) Outcome {
	return Outcome{Kind: Failure, ID: id, Err: err}
}

// Response returns the envelope to send for the outcome, or nil for NoContent.
func (o Outcome) Response() *Response {
	switch o.Kind {
	case Success:
		result := o.Result
		if result == nil {
			result = struct{}{}
		}
		return &Response{JSONRPC: Version, ID: o.ID, Result: result}
	case Failure:
		return &Response{JSONRPC: Version, ID: o.ID, Error: o.Err}
	default:
		return nil
	}
}

// DecodeRequest parses a request body. Failures are returned as
// *jsonrpc2.Error values with CodeParseError or CodeInvalidRequest.
func DecodeRequest(body []byte) (*Request, *jsonrpc2.Error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeParseError, Message: "Parse error"}
	}

	switch trimmed[0] {
	case '{':
	case '[':
		return nil, invalidRequest("batch requests are not supported")
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: "Invalid Request"}
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		if n, ok := lenientNotification(trimmed); ok {
			return n, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: "Invalid Request"}
	}
	if !validID(req.ID) {
		return nil, invalidRequest("id must be a string or number")
	}

	return &req, nil
}

// lenientNotification recovers a notification from an envelope whose other
// fields have the wrong JSON types. Only method and params are kept.
func lenientNotification(body []byte) (*Request, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, false
	}
	if !isNull(fields["id"]) {
		return nil, false
	}
	var method string
	if err := json.Unmarshal(fields["method"], &method); err != nil || method == "" {
		return nil, false
	}
	return &Request{Method: method, Params: fields["params"]}, true
}

func invalidRequest(detail string) *jsonrpc2.Error {
	return &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidRequest,
		Message: "Invalid Request - " + detail,
	}
}

func validID(id json.RawMessage) bool {
	if isNull(id) {
		return true
	}
	switch c := bytes.TrimSpace(id)[0]; {
	case c == '"', c == '-', c >= '0' && c <= '9':
		return true
	default:
		return false
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
