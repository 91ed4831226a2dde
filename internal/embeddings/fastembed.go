package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	// Model is the embedding model to use.
	// Supported: BAAI/bge-small-en-v1.5 (default), BAAI/bge-base-en-v1.5,
	// sentence-transformers/all-MiniLM-L6-v2, etc.
	Model string

	// CacheDir is the directory to cache model files.
	// Defaults to ~/.cache/voxnote/models resolution left to the caller;
	// falls back to ./local_cache.
	CacheDir string

	// MaxLength is the maximum input sequence length.
	// Defaults to 512.
	MaxLength int

	// MaxInflight bounds concurrent inference calls.
	// Defaults to GOMAXPROCS.
	MaxInflight int
}

// modelMapping maps friendly model names to fastembed model constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// modelDimensions maps fastembed models to their embedding dimensions.
var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.BGESmallZH:    512,
	fastembed.AllMiniLML6V2: 384,
}

// FastEmbedProvider provides embedding generation using local ONNX models.
//
// The model is loaded lazily on first use and retained for process lifetime.
// Construction never touches the model weights, so a misconfigured
// environment surfaces as ErrModelUnavailable on the first embedding call
// instead of crashing startup. A load failure is remembered: every later call
// fails fast with the same error until the process is restarted with a fixed
// environment.
type FastEmbedProvider struct {
	config    FastEmbedConfig
	modelKind fastembed.EmbeddingModel
	dimension int
	logger    *zap.Logger

	// inflight caps concurrent inference so CPU-bound embedding work cannot
	// starve the request-handling goroutines.
	inflight *semaphore.Weighted

	loadOnce sync.Once
	model    *fastembed.FlagEmbedding
	loadErr  error

	mu sync.RWMutex
}

// NewFastEmbedProvider creates a new FastEmbed embedding provider.
// The underlying model is not loaded until the first embedding call.
func NewFastEmbedProvider(cfg FastEmbedConfig, logger *zap.Logger) (*FastEmbedProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-small-en-v1.5"
	}

	model, ok := modelMapping[cfg.Model]
	if !ok {
		// Accept fastembed model names directly.
		model = fastembed.EmbeddingModel(cfg.Model)
		if _, known := modelDimensions[model]; !known {
			return nil, fmt.Errorf("%w: unsupported model %q (supported: BAAI/bge-small-en-v1.5, BAAI/bge-base-en-v1.5, sentence-transformers/all-MiniLM-L6-v2)", ErrInvalidConfig, cfg.Model)
		}
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}
	if cfg.MaxInflight == 0 {
		cfg.MaxInflight = runtime.GOMAXPROCS(0)
	}

	return &FastEmbedProvider{
		config:    cfg,
		modelKind: model,
		dimension: modelDimensions[model],
		logger:    logger,
		inflight:  semaphore.NewWeighted(int64(cfg.MaxInflight)),
	}, nil
}

// Model returns the configured model identifier.
func (p *FastEmbedProvider) Model() string {
	return p.config.Model
}

// ensureLoaded loads the ONNX model exactly once.
func (p *FastEmbedProvider) ensureLoaded() error {
	p.loadOnce.Do(func() {
		p.logger.Info("loading embedding model",
			zap.String("model", p.config.Model),
			zap.String("cache_dir", p.config.CacheDir),
		)

		showProgress := false
		model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
			Model:                p.modelKind,
			CacheDir:             p.config.CacheDir,
			MaxLength:            p.config.MaxLength,
			ShowDownloadProgress: &showProgress,
		})
		if err != nil {
			p.loadErr = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
			p.logger.Error("embedding model load failed", zap.Error(err))
			return
		}

		p.model = model
		p.logger.Info("embedding model loaded",
			zap.String("model", p.config.Model),
			zap.Int("dimension", p.dimension),
		)
	})
	return p.loadErr
}

// acquire blocks until an inference slot is free or ctx is done.
func (p *FastEmbedProvider) acquire(ctx context.Context) (release func(), err error) {
	if err := p.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.inflight.Release(1) }, nil
}

// EmbedDocuments generates embeddings for multiple texts.
// Uses the "passage: " prefix for document embeddings as recommended by BGE models.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	p.mu.RLock()
	defer p.mu.RUnlock()

	embeddings, err := p.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	return embeddings, nil
}

// EmbedQuery generates an embedding for a single query.
// Uses the "query: " prefix for query embeddings as recommended by BGE models.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	p.mu.RLock()
	defer p.mu.RUnlock()

	embedding, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	return embedding, nil
}

// Dimension returns the embedding dimension for the current model.
func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close releases resources held by the FastEmbed provider.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model.Destroy()
	}
	return nil
}

// Ensure FastEmbedProvider implements Provider.
var _ Provider = (*FastEmbedProvider)(nil)
