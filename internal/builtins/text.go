// ABOUTME: Text tools.
// ABOUTME: reverse flips a string by Unicode code point, not by byte.

package builtins

import (
	"context"

	"github.com/2389/stash-mcp/internal/tools"
)

// ReverseTool returns the reverse tool.
func ReverseTool() tools.Tool {
	return tools.Tool{
		Name:        "reverse",
		Description: "Reverse a string",
		Schema: tools.ObjectSchema(map[string]tools.Property{
			"text": {Type: tools.TypeString, Description: "Text to reverse"},
		}, "text"),
		Handler: handleReverse,
	}
}

func handleReverse(_ context.Context, args tools.Arguments) (string, error) {
	text := args.String("text")
	if text == "" {
		return "", nil
	}
	return "Result: " + reverseRunes(text), nil
}

// reverseRunes reverses s by code point. Invalid UTF-8 bytes become U+FFFD.
func reverseRunes(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
