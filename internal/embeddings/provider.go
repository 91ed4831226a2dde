// Package embeddings provides text embedding generation for the note index.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrModelUnavailable indicates the local model could not be loaded.
	// Every embedding-dependent call fails with this until the environment is
	// fixed; unrelated capabilities keep working.
	ErrModelUnavailable = errors.New("embedding model unavailable")
)

// Provider generates vector embeddings from text.
//
// Embeddings are deterministic for a fixed model version and safe to request
// from multiple goroutines. Inference is CPU-bound, so implementations bound
// their own concurrency rather than relying on callers.
type Provider interface {
	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
