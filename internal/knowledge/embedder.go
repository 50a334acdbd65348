package knowledge

import (
	"context"

	logx "github.com/civicdesk/server/pkg/logger"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder generates vector embeddings from text for similarity search.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in one batch,
	// returned in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder implements Embedder against an OpenAI-compatible
// embedding API (a local model server in the default configuration).
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
}

// NewOpenAIEmbedder builds an embedder from the knowledge configuration.
// The "none" token satisfies local services that skip authentication.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &OpenAIEmbedder{embedder: embedder}, nil
}

func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		logx.Error().Err(err).Msg("failed to generate embedding")
		return nil, err
	}
	if len(vecs) == 0 {
		logx.Warn().Msg("embedder returned empty result")
		return []float32{}, nil
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		logx.Error().Err(err).Int("count", len(texts)).Msg("failed to generate embeddings")
		return nil, err
	}
	return vecs, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
