// Package mcp implements the JSON-RPC dispatcher and its HTTP transport.
//
// # Overview
//
// Clients POST one JSON-RPC 2.0 envelope per request to /mcp. The Dispatcher
// classifies it as a notification (no id) or a call (id present), validates
// its shape, and routes calls through a dispatch table:
//
//   - initialize - static protocol version, capabilities and server info
//   - tools/list - every registered tool descriptor, in registration order
//   - tools/call - the named tool in the tools.Registry
//
// # Outcomes
//
// Every dispatch yields exactly one Outcome:
//
//   - NoContent - notifications, always, even when handling them fails
//   - Success - a result envelope, HTTP 200
//   - Failure - an error envelope with a JSON-RPC code
//
// Error codes:
//
//	-32700  parse error (transport)           HTTP 400
//	-32600  invalid request shape             HTTP 400 (413 when too large)
//	-32601  unknown method or tool            HTTP 400
//	-32602  invalid params or arguments       HTTP 400
//	-32603  internal error while handling     HTTP 500
//
// Handlers signal protocol errors by returning a *jsonrpc2.Error. Any other
// error, or a panic, becomes -32603 carrying the error text and is passed to
// the configured Reporter.
//
// # Example
//
//	{"jsonrpc":"2.0","id":1,"method":"tools/call",
//	 "params":{"name":"add","arguments":{"a":2,"b":3}}}
//
// returns
//
//	{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"Result: 5"}]}}
//
// # Usage
//
//	dispatcher, err := mcp.NewDispatcher(mcp.Config{Registry: registry, Logger: logger})
//	server, err := mcp.NewServer(mcp.ServerConfig{Dispatcher: dispatcher, Logger: logger})
//	server.RegisterRoutes(mux)
package mcp
