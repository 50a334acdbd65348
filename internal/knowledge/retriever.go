package knowledge

import (
	"context"
	"strings"

	"github.com/civicdesk/server/internal/agent/model"
	logx "github.com/civicdesk/server/pkg/logger"
)

// Retriever assembles best-effort context for service identification. Any
// failure degrades to empty context; retrieval never fails a turn.
type Retriever struct {
	store     *Store
	embedder  Embedder
	topK      int
	threshold float64
}

func NewRetriever(store *Store, embedder Embedder, cfg model.RetrievalConfig) *Retriever {
	return &Retriever{
		store:     store,
		embedder:  embedder,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
	}
}

// ContextFor returns relevant snippet text for the query from the
// namespace's collection, or empty on any failure.
func (r *Retriever) ContextFor(ctx context.Context, namespace, query string) string {
	collection := CollectionForNamespace(namespace)

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		logx.Warn().Err(err).Str("collection", collection).Msg("could not embed query, continuing without context")
		return ""
	}

	matches, err := r.store.Search(ctx, collection, vector, r.threshold, r.topK)
	if err != nil {
		logx.Warn().Err(err).Str("collection", collection).Msg("could not search collection, continuing without context")
		return ""
	}
	if len(matches) == 0 {
		return ""
	}

	snippets := make([]string, 0, len(matches))
	for _, m := range matches {
		snippets = append(snippets, m.Chunk.Text)
	}
	logx.Debug().Str("collection", collection).Int("snippets", len(snippets)).Msg("retrieved context for identification")
	return strings.Join(snippets, "\n")
}
