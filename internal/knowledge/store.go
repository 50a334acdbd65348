// Package knowledge implements the document knowledge base behind service
// identification: ingesting uploaded files into namespaced vector
// collections and retrieving context snippets by similarity.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	logx "github.com/civicdesk/server/pkg/logger"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Chunk is one embedded document fragment stored in a collection.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredChunk pairs a chunk with its similarity to a query vector.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Store keeps embedded chunks in BadgerDB, partitioned by collection name.
type Store struct {
	db *badger.DB
}

type badgerLoggerAdapter struct{}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (badgerLoggerAdapter) Errorf(msg string, items ...any)   { logx.Error().Msgf(msg, items...) }
func (badgerLoggerAdapter) Warningf(msg string, items ...any) { logx.Warn().Msgf(msg, items...) }
func (badgerLoggerAdapter) Infof(msg string, items ...any)    { logx.Debug().Msgf(msg, items...) }
func (badgerLoggerAdapter) Debugf(msg string, items ...any)   { logx.Debug().Msgf(msg, items...) }

// OpenStore opens the badger-backed store at dir, creating it as needed.
// An empty dir opens an in-memory store, used by tests.
func OpenStore(dir string) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create knowledge dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = badgerLoggerAdapter{}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func chunkKey(collection, id string) []byte {
	return []byte("chunk:" + collection + ":" + id)
}

func collectionKey(collection string) []byte {
	return []byte("collection:" + collection)
}

// SaveChunk stores one chunk under the collection, registering the
// collection on first write.
func (s *Store) SaveChunk(ctx context.Context, collection string, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk id is required")
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(chunkKey(collection, chunk.ID), b); err != nil {
			return err
		}
		return txn.Set(collectionKey(collection), []byte{1})
	})
}

// Collections lists every registered collection name.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("collection:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			out = append(out, strings.TrimPrefix(key, "collection:"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// CountChunks returns the number of chunks stored in a collection.
func (s *Store) CountChunks(ctx context.Context, collection string) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = chunkKey(collection, "")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Search scans the collection and returns up to topK chunks whose cosine
// similarity to the query vector meets the threshold, best first. An
// unknown collection yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, threshold float64, topK int) ([]ScoredChunk, error) {
	var matches []ScoredChunk
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkKey(collection, "")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk Chunk
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &chunk)
			})
			if err != nil {
				logx.Warn().Err(err).Str("collection", collection).Msg("skipping undecodable chunk")
				continue
			}
			score := cosineSimilarity(vector, chunk.Vector)
			if score >= threshold {
				matches = append(matches, ScoredChunk{Chunk: chunk, Score: score})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, zero
// when dimensions differ or either vector is degenerate.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
