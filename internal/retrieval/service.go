// Package retrieval orchestrates embedding and vector storage to provide
// semantic search over the note corpus.
//
// The external note store remains the source of truth for note content; the
// index maintained here is a derived, rebuildable cache. Public operations
// never propagate a raw model or storage error to callers: failures are
// caught, logged, and converted to typed empty/false outcomes so the bot
// degrades gracefully instead of crashing a chat session.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/embeddings"
	"github.com/fyrsmithlabs/voxnote/internal/vectorstore"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

const (
	// MinNoteChars is the minimum trimmed text length for a note to be
	// indexed. Shorter notes are rejected as noise.
	MinNoteChars = 20

	// MinQueryChars is the minimum trimmed query length for a search.
	MinQueryChars = 3
)

// Reason classifies why an operation did not index anything.
type Reason string

const (
	// ReasonNone means the operation succeeded.
	ReasonNone Reason = ""

	// ReasonTooShort means the note text was below MinNoteChars.
	ReasonTooShort Reason = "text_too_short"

	// ReasonEmbedFailed means the embedding provider failed.
	ReasonEmbedFailed Reason = "embedding_failed"

	// ReasonStoreFailed means the vector store write failed.
	ReasonStoreFailed Reason = "store_failed"
)

// AddOutcome reports the result of AddNote. Indexed is false for both
// validation rejections and internal failures; Reason tells them apart.
type AddOutcome struct {
	Indexed bool
	Reason  Reason
}

// SearchResult is a read-only projection of one matching note.
type SearchResult struct {
	// ID is the note identifier.
	ID string

	// Text is the full indexed content.
	Text string

	// Metadata contains the stored key-value pairs.
	Metadata map[string]string

	// Similarity is 1 - cosine distance, in [0,1]; 1 = identical.
	Similarity float32
}

// Stats describes the current state of the index.
type Stats struct {
	TotalNotes  int
	StoragePath string
	Model       string
}

// Service provides semantic indexing and search over notes.
type Service struct {
	embedder embeddings.Provider
	store    vectorstore.PathStore
	model    string
	logger   *zap.Logger
}

// NewService creates a retrieval service. The model string is the embedding
// model identifier reported by Stats.
func NewService(embedder embeddings.Provider, store vectorstore.PathStore, model string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		model:    model,
		logger:   logger,
	}
}

// AddNote embeds text and upserts it into the vector index under id.
//
// Notes shorter than MinNoteChars (trimmed) are rejected with
// ReasonTooShort and no side effect. Embedding or storage failures are
// logged and reported as typed outcomes, never raised.
func (s *Service) AddNote(ctx context.Context, id, text string, metadata map[string]any) AddOutcome {
	if len(strings.TrimSpace(text)) < MinNoteChars {
		s.logger.Warn("note too short, skipping",
			zap.String("id", id),
			zap.Int("length", len(strings.TrimSpace(text))),
		)
		return AddOutcome{Reason: ReasonTooShort}
	}

	vector, err := s.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil || len(vector) == 0 {
		s.logger.Error("embedding note failed",
			zap.String("id", id),
			zap.Error(err),
		)
		return AddOutcome{Reason: ReasonEmbedFailed}
	}

	meta := stampMetadata(metadata, len(text))

	if err := s.store.Upsert(ctx, id, vector[0], text, meta); err != nil {
		s.logger.Error("indexing note failed",
			zap.String("id", id),
			zap.Error(err),
		)
		return AddOutcome{Reason: ReasonStoreFailed}
	}

	s.logger.Info("indexed note",
		zap.String("id", id),
		zap.Int("chars", len(text)),
	)
	return AddOutcome{Indexed: true}
}

// Search returns up to nResults notes similar to query, most similar first.
//
// Queries shorter than MinQueryChars (trimmed) yield an empty result, as do
// embedding and store failures; callers see "nothing found" either way and
// the distinction lives in the logs.
func (s *Service) Search(ctx context.Context, query string, nResults int, minSimilarity float32) []SearchResult {
	if len(strings.TrimSpace(query)) < MinQueryChars {
		return []SearchResult{}
	}
	if nResults <= 0 {
		nResults = 5
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Error("embedding query failed", zap.Error(err))
		return []SearchResult{}
	}

	neighbors, err := s.store.Query(ctx, vector, nResults)
	if err != nil {
		s.logger.Error("vector query failed", zap.Error(err))
		return []SearchResult{}
	}

	// Neighbors arrive in ascending distance order; converting to similarity
	// preserves it as descending. The threshold is a hard floor: nothing
	// below minSimilarity may reach the caller.
	results := make([]SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		similarity := 1 - n.Distance
		if similarity < minSimilarity {
			continue
		}
		results = append(results, SearchResult{
			ID:         n.ID,
			Text:       n.Document,
			Metadata:   n.Metadata,
			Similarity: similarity,
		})
	}

	s.logger.Info("search complete",
		zap.String("query", truncate(query, 50)),
		zap.Int("results", len(results)),
	)
	return results
}

// DeleteNote removes a note from the index. Returns false only on a store
// failure; deleting an absent id succeeds.
func (s *Service) DeleteNote(ctx context.Context, id string) bool {
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error("deleting note failed",
			zap.String("id", id),
			zap.Error(err),
		)
		return false
	}
	s.logger.Info("deleted note", zap.String("id", id))
	return true
}

// Stats returns the current index statistics.
func (s *Service) Stats(ctx context.Context) Stats {
	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Error("counting notes failed", zap.Error(err))
	}
	return Stats{
		TotalNotes:  count,
		StoragePath: s.store.Path(),
		Model:       s.model,
	}
}

// ClearAll drops the entire index. Destructive; reserved for explicit
// recovery or reset, never invoked from normal flows.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.Drop(ctx); err != nil {
		s.logger.Error("clearing index failed", zap.Error(err))
		return fmt.Errorf("clearing index: %w", err)
	}
	s.logger.Warn("cleared all notes from vector index")
	return nil
}

// stampMetadata converts caller metadata to the stored string form, drops
// nil values, and stamps indexed_at and text_length.
func stampMetadata(metadata map[string]any, textLength int) map[string]string {
	meta := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			meta[k] = val
		case int:
			meta[k] = fmt.Sprintf("%d", val)
		case int64:
			meta[k] = fmt.Sprintf("%d", val)
		case float64:
			meta[k] = fmt.Sprintf("%f", val)
		case bool:
			meta[k] = fmt.Sprintf("%t", val)
		default:
			meta[k] = fmt.Sprintf("%v", val)
		}
	}
	meta["indexed_at"] = timeNow().Format(time.RFC3339)
	meta["text_length"] = fmt.Sprintf("%d", textLength)
	return meta
}

// truncate shortens s to n runes for logging. Queries are chat text and
// often multi-byte; cutting on runes keeps the logged value valid UTF-8.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
