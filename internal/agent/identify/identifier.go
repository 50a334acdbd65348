// Package identify resolves a user's first message into a service
// descriptor with a single model call. Identification never fails a turn:
// any model, prompt or parse problem degrades to the fallback descriptor.
package identify

import (
	"context"

	"github.com/civicdesk/server/internal/agent/llm"
	"github.com/civicdesk/server/internal/agent/model"
	"github.com/civicdesk/server/internal/agent/parsers"
	"github.com/civicdesk/server/internal/agent/prompts"
	logx "github.com/civicdesk/server/pkg/logger"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel is the narrow slice of the Eino chat model the identifier
// needs; tests substitute a fake.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

// ContextProvider supplies best-effort retrieval context for a query.
type ContextProvider interface {
	ContextFor(ctx context.Context, namespace, query string) string
}

type Identifier struct {
	model     ChatModel
	modelName string
	retriever ContextProvider
}

// New builds an Identifier. retriever may be nil when no knowledge base is
// configured.
func New(chatModel ChatModel, modelName string, retriever ContextProvider) *Identifier {
	return &Identifier{
		model:     chatModel,
		modelName: modelName,
		retriever: retriever,
	}
}

// Identify sends the user message plus optional retrieved context to the
// model and parses the JSON reply. One call, no retries; every failure
// path returns the fallback descriptor.
func (i *Identifier) Identify(ctx context.Context, namespace, userMessage string) *model.ServiceDescriptor {
	knowledgeContext := ""
	if i.retriever != nil {
		knowledgeContext = i.retriever.ContextFor(ctx, namespace, userMessage)
	}

	promptText, err := prompts.RenderIdentify(ctx, userMessage, knowledgeContext)
	if err != nil {
		logx.Error().Err(err).Msg("failed to render identification prompt, using fallback descriptor")
		return model.FallbackDescriptor()
	}

	out, err := i.model.Generate(ctx, []*schema.Message{schema.UserMessage(promptText)})
	if err != nil {
		logx.Error().Err(err).Str("model", i.modelName).Msg("identification model call failed, using fallback descriptor")
		return model.FallbackDescriptor()
	}
	llm.LogUsageCost(i.modelName, out)

	desc, err := parsers.ParseServiceReply(out.Content)
	if err != nil {
		logx.Warn().Err(err).Msg("could not parse identification reply, using fallback descriptor")
		return model.FallbackDescriptor()
	}

	logx.Info().
		Str("service_name", desc.ServiceName).
		Str("confidence", desc.Confidence).
		Int("required_fields", len(desc.RequiredFields)).
		Msg("service identified")
	return desc
}
