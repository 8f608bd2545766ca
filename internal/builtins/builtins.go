// ABOUTME: Catalog of builtin tools and selection by configured name.
// ABOUTME: Keeps a fixed registration order so tools/list output is stable.

package builtins

import (
	"errors"
	"fmt"

	"github.com/2389/stash-mcp/internal/archive"
	"github.com/2389/stash-mcp/internal/tools"
)

// ErrUnknownTool indicates a configured tool name has no builtin.
var ErrUnknownTool = errors.New("unknown builtin tool")

// Deps are the collaborators builtin tools need.
type Deps struct {
	Archiver archive.Archiver
}

// All returns every builtin tool in registration order.
func All(deps Deps) []tools.Tool {
	return []tools.Tool{
		AddTool(),
		ReverseTool(),
		SaveConversationTool(deps.Archiver),
	}
}

// Select returns the builtins named in enabled, in catalog order.
// An empty enabled list selects all of them.
func Select(deps Deps, enabled []string) ([]tools.Tool, error) {
	all := All(deps)
	if len(enabled) == 0 {
		return all, nil
	}

	byName := make(map[string]bool, len(all))
	for _, tool := range all {
		byName[tool.Name] = true
	}

	wanted := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		if !byName[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		wanted[name] = true
	}

	selected := make([]tools.Tool, 0, len(wanted))
	for _, tool := range all {
		if wanted[tool.Name] {
			selected = append(selected, tool)
		}
	}
	return selected, nil
}
