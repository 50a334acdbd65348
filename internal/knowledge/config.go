package knowledge

// Config drives the knowledge base: where badger keeps collections, which
// OpenAI-compatible endpoint generates embeddings, and how documents are
// chunked.
type Config struct {
	Dir            string `envconfig:"KNOWLEDGE_DIR" default:"data/knowledge"`
	EmbeddingHost  string `envconfig:"EMBEDDING_HOST" default:"http://localhost:11434/v1"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"all-minilm"`
	ChunkSize      int    `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap   int    `envconfig:"CHUNK_OVERLAP" default:"200"`
}
