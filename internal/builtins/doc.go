// Package builtins provides the tools stash-mcp serves over tools/call.
//
// # Tools
//
//   - add: add two numbers ("Result: 5")
//   - reverse: reverse a string by Unicode code point ("Result: cba")
//   - save_conversation: archive a conversation remotely and return its URL
//
// Each tool is a tools.Tool: a name, a description, an input schema enforced
// by the registry before the handler runs, and a handler returning text.
//
// # Selection
//
// Select builds the tool list for a deployment from the tools.enabled config
// list. An empty list enables every builtin, in the order above:
//
//	list, err := builtins.Select(builtins.Deps{Archiver: client}, cfg.Tools.Enabled)
//	registry, err := tools.NewRegistry(list...)
package builtins
