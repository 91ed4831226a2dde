// Package vectorstore defines the interface for persistent vector index operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the store backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmptyID indicates a missing document ID.
	ErrEmptyID = errors.New("empty document id")

	// ErrEmptyVector indicates a missing embedding vector.
	ErrEmptyVector = errors.New("empty embedding vector")
)

// Neighbor is a single nearest-neighbor hit returned by Query.
type Neighbor struct {
	// ID is the note identifier the vector was stored under.
	ID string

	// Document is the indexed text content.
	Document string

	// Metadata contains the stored key-value pairs.
	Metadata map[string]string

	// Distance is the cosine distance to the query vector (0 = identical).
	Distance float32
}

// Store is the interface for persistent nearest-neighbor storage keyed by note id.
//
// All mutating operations are durable before they return: a Query after process
// restart reflects every prior successful Upsert and Delete.
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default)
//   - QdrantStore: external Qdrant gRPC client
type Store interface {
	// Upsert inserts or replaces the entry stored under id. At most one live
	// entry exists per id at any time; re-adding replaces, never duplicates.
	Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]string) error

	// Query returns up to k nearest neighbors by cosine distance, closest
	// first. k is clamped to the current corpus size. An empty corpus yields
	// an empty slice, not an error.
	Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error)

	// Delete removes the entry stored under id. Deleting an absent id is a
	// no-op, not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the current number of entries.
	Count(ctx context.Context) (int, error)

	// Drop removes the entire index. Destructive; used only for explicit
	// recovery or reset.
	Drop(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
