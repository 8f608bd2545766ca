// ABOUTME: Arithmetic tools.
// ABOUTME: add sums two numbers and formats the result without trailing zeros.

package builtins

import (
	"context"
	"strconv"

	"github.com/2389/stash-mcp/internal/tools"
)

// AddTool returns the add tool.
func AddTool() tools.Tool {
	return tools.Tool{
		Name:        "add",
		Description: "Add two numbers",
		Schema: tools.ObjectSchema(map[string]tools.Property{
			"a": {Type: tools.TypeNumber, Description: "First number"},
			"b": {Type: tools.TypeNumber, Description: "Second number"},
		}, "a", "b"),
		Handler: handleAdd,
	}
}

func handleAdd(_ context.Context, args tools.Arguments) (string, error) {
	sum := args.Number("a") + args.Number("b")
	return "Result: " + formatNumber(sum), nil
}

// formatNumber prints integral values without a decimal point ("5", not "5.0").
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
