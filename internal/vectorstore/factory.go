package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names for the factory.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// Config selects and configures a vector store backend.
type Config struct {
	// Provider is the backend to use: "chromem" (default) or "qdrant".
	Provider string

	// Chromem configures the embedded chromem-go backend.
	Chromem ChromemConfig

	// Qdrant configures the external Qdrant backend.
	Qdrant QdrantConfig
}

// PathStore is a Store that can report where it persists data.
type PathStore interface {
	Store
	Path() string
}

// New creates a vector store for the configured provider.
//
// The backend is a configuration-time choice; chromem is the default because
// it needs no external service.
func New(cfg Config, logger *zap.Logger) (PathStore, error) {
	switch cfg.Provider {
	case ProviderChromem, "":
		return NewChromemStore(cfg.Chromem, logger)
	case ProviderQdrant:
		return NewQdrantStore(cfg.Qdrant, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
