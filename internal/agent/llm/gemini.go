package llm

import (
	"context"
	"fmt"

	"github.com/civicdesk/server/internal/agent/model"
	logx "github.com/civicdesk/server/pkg/logger"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Config holds what is needed to construct the identification chat model.
type Config struct {
	APIKey   string
	BaseURL  string
	Identify *model.IdentifyModelConfig
}

// Models bundles the constructed chat models with their names for cost
// accounting.
type Models struct {
	Identify          *gemini.ChatModel
	IdentifyModelName string
}

// NewModels creates the Gemini chat model used for service identification.
func NewModels(ctx context.Context, cfg Config) (*Models, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	identifyModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Identify.Model,
		Temperature: &cfg.Identify.Temperature,
		MaxTokens:   &cfg.Identify.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating identification model")
		return nil, fmt.Errorf("error creating identification model: %w", err)
	}

	return &Models{
		Identify:          identifyModel,
		IdentifyModelName: cfg.Identify.Model,
	}, nil
}

// LogUsageCost computes and logs the USD cost of one model invocation from
// the token usage the provider reports.
func LogUsageCost(modelName string, out *schema.Message) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	logx.Debug().
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
