// Package tools holds the tool registry behind tools/list and tools/call.
//
// A Tool pairs a name and description with an argument Schema and a Handler.
// The Registry is built once, keeps registration order for listing, and
// validates every declared argument before a handler runs. Routing and
// validation failures are returned as *jsonrpc2.Error values; handler
// failures are returned as ordinary wrapped errors.
package tools
