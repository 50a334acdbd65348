package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/identify_prompt.txt
var identifyPrompt string

// RenderIdentify renders the service identification prompt via the Eino
// prompt component. Context may be empty when retrieval found nothing.
func RenderIdentify(ctx context.Context, userMessage, knowledgeContext string) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(identifyPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"UserMessage": userMessage,
		"Context":     knowledgeContext,
	})
	if err != nil {
		return "", fmt.Errorf("identify prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("identify prompt render: empty result")
	}
	return msgs[0].Content, nil
}
