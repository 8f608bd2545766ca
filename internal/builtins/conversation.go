// ABOUTME: save_conversation tool backed by the remote archive client.
// ABOUTME: Archive failures are returned as errors so the dispatcher reports them as internal errors.

package builtins

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/stash-mcp/internal/archive"
	"github.com/2389/stash-mcp/internal/tools"
)

// KnownModels are the providers save_conversation accepts.
var KnownModels = []string{"claude", "chatgpt", "gemini", "grok", "deepseek", "other"}

var errNoArchiver = errors.New("no archive client configured")

// SaveConversationTool returns the save_conversation tool. A nil archiver is
// allowed; the tool then fails when called.
func SaveConversationTool(archiver archive.Archiver) tools.Tool {
	h := &conversationHandlers{archiver: archiver}
	return tools.Tool{
		Name:        "save_conversation",
		Description: "Save a conversation to the archive and return a shareable URL",
		Schema: tools.ObjectSchema(map[string]tools.Property{
			"content": {Type: tools.TypeString, Description: "Full conversation text"},
			"model": {
				Type:        tools.TypeString,
				Description: "Model provider the conversation was held with",
				Enum:        KnownModels,
			},
		}, "content", "model"),
		Handler: h.Save,
	}
}

type conversationHandlers struct {
	archiver archive.Archiver
}

// Save archives the conversation and returns the URL verbatim.
func (h *conversationHandlers) Save(ctx context.Context, args tools.Arguments) (string, error) {
	if h.archiver == nil {
		return "", errNoArchiver
	}

	url, err := h.archiver.Archive(ctx, args.String("content"), args.String("model"))
	if err != nil {
		return "", fmt.Errorf("saving conversation: %w", err)
	}

	return "Conversation saved: " + url, nil
}
