// Package transcription converts recorded audio into text, either through a
// remote speech-to-text API or a local whisper.cpp binary.
package transcription

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Provider selects the transcription backend.
type Provider string

const (
	// ProviderAPI sends audio to a remote speech-to-text service.
	ProviderAPI Provider = "api"

	// ProviderLocal runs a whisper.cpp binary on the host.
	ProviderLocal Provider = "local"
)

var (
	// ErrInvalidConfig indicates invalid transcriber configuration.
	ErrInvalidConfig = errors.New("invalid transcription configuration")

	// ErrTranscriptionFailed indicates the backend failed to produce text.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrEmptyTranscript indicates the audio produced no usable text.
	ErrEmptyTranscript = errors.New("empty transcript")
)

// Transcriber converts an audio file into text.
type Transcriber interface {
	// Transcribe returns the text spoken in the audio file at path.
	Transcribe(ctx context.Context, path string) (string, error)
}

// Config holds transcription configuration for both backends.
type Config struct {
	// Provider selects the backend. Default: api.
	Provider Provider

	// API backend.
	API APIConfig

	// Local backend.
	Local LocalConfig

	// Language is a hint for the model, e.g. "en". Empty means autodetect.
	Language string
}

// ApplyDefaults fills in default values.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderAPI
	}
	c.API.ApplyDefaults()
	c.Local.ApplyDefaults()
}

// New creates the configured transcriber.
func New(cfg Config, logger *zap.Logger) (Transcriber, error) {
	cfg.ApplyDefaults()

	switch cfg.Provider {
	case ProviderAPI:
		return NewAPITranscriber(cfg.API, cfg.Language, logger)
	case ProviderLocal:
		return NewLocalTranscriber(cfg.Local, cfg.Language, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
