package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "github.com/civicdesk/server/pkg/logger"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// Ingestion statuses.
const (
	IngestSuccess      = "success"
	IngestPartialError = "partial_error"
	IngestError        = "error"
)

// Summary reports the outcome of ingesting one file.
type Summary struct {
	ChunksProcessed int    `json:"chunks_processed"`
	TotalChunks     int    `json:"total_chunks"`
	CollectionName  string `json:"collection_name"`
	Status          string `json:"status"`
}

// Ingestor chunks uploaded files and stores their embeddings in the
// namespace-derived collection.
type Ingestor struct {
	store    *Store
	embedder Embedder
	splitter textsplitter.TextSplitter
}

func NewIngestor(store *Store, embedder Embedder, cfg Config) *Ingestor {
	return &Ingestor{
		store:    store,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
	}
}

// IngestFile loads the file at path, splits it into overlapping chunks,
// embeds them and stores each chunk independently. Per-chunk storage
// failures are logged and skipped; the summary status reflects how many
// chunks made it in.
func (i *Ingestor) IngestFile(ctx context.Context, path, namespace string) (*Summary, error) {
	collection := CollectionForNamespace(namespace)
	summary := &Summary{CollectionName: collection, Status: IngestError}

	docs, err := i.load(ctx, path)
	if err != nil {
		logx.Error().Err(err).Str("path", path).Msg("failed to load document")
		return summary, err
	}
	summary.TotalChunks = len(docs)
	if len(docs) == 0 {
		return summary, fmt.Errorf("document produced no chunks")
	}

	texts := make([]string, len(docs))
	for n, d := range docs {
		texts[n] = d.PageContent
	}
	vectors, err := i.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		logx.Error().Err(err).Str("collection", collection).Msg("failed to embed document chunks")
		return summary, err
	}
	if len(vectors) != len(docs) {
		return summary, fmt.Errorf("embedding result mismatch: expected %d, received %d", len(docs), len(vectors))
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for n := range docs {
		chunk := Chunk{
			ID:     fmt.Sprintf("%s_%d_%s", stem, n, uuid.NewString()[:8]),
			Text:   docs[n].PageContent,
			Source: filepath.Base(path),
			Vector: vectors[n],
		}
		if err := i.store.SaveChunk(ctx, collection, chunk); err != nil {
			logx.Warn().Err(err).Str("chunk_id", chunk.ID).Msg("failed to save chunk, skipping")
			continue
		}
		summary.ChunksProcessed++
	}

	switch {
	case summary.ChunksProcessed == summary.TotalChunks:
		summary.Status = IngestSuccess
	case summary.ChunksProcessed > 0:
		summary.Status = IngestPartialError
	default:
		summary.Status = IngestError
		return summary, fmt.Errorf("no chunks stored for %s", filepath.Base(path))
	}

	logx.Info().
		Str("collection", collection).
		Int("chunks_processed", summary.ChunksProcessed).
		Int("total_chunks", summary.TotalChunks).
		Str("status", summary.Status).
		Msg("document ingested")
	return summary, nil
}

// load branches on the file extension: dedicated loaders for plain text and
// PDF, a plain-text fallback for everything else.
func (i *Ingestor) load(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return documentloaders.NewPDF(f, info.Size()).LoadAndSplit(ctx, i.splitter)
	default:
		return documentloaders.NewText(f).LoadAndSplit(ctx, i.splitter)
	}
}
