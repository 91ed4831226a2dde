// Package config provides configuration loading for voxnote.
package config

import (
	"fmt"
	"time"
)

// Config is the full voxnote configuration.
type Config struct {
	Telegram    TelegramConfig    `koanf:"telegram"`
	NoteStore   NoteStoreConfig   `koanf:"notestore"`
	LLM         LLMConfig         `koanf:"llm"`
	Whisper     WhisperConfig     `koanf:"whisper"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// TelegramConfig configures the bot transport.
type TelegramConfig struct {
	// Token is the bot API token. Required for serve.
	Token string `koanf:"token"`

	// AllowedUsers is the user-id allow list. Empty allows everyone.
	AllowedUsers []int64 `koanf:"allowed_users"`
}

// NoteStoreConfig configures the Anytype-compatible note store.
type NoteStoreConfig struct {
	APIURL      string        `koanf:"api_url"`
	BearerToken string        `koanf:"bearer_token"`
	SpaceID     string        `koanf:"space_id"`
	Timeout     time.Duration `koanf:"timeout"`
}

// LLMConfig configures the summarization model.
type LLMConfig struct {
	APIKey    string `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	MaxTokens int    `koanf:"max_tokens"`

	// Temperature is a pointer so an explicit 0 survives defaulting.
	Temperature *float64 `koanf:"temperature"`
}

// WhisperConfig configures speech-to-text.
type WhisperConfig struct {
	// Provider is "api" or "local".
	Provider string `koanf:"provider"`

	// API backend.
	APIURL   string `koanf:"api_url"`
	APIKey   string `koanf:"api_key"`
	Endpoint string `koanf:"endpoint"`
	Model    string `koanf:"model"`

	// Local backend.
	BinaryPath string `koanf:"binary_path"`
	ModelPath  string `koanf:"model_path"`

	// Language hint, empty for autodetect.
	Language string `koanf:"language"`

	// FFmpegPath for audio conversion. Default: ffmpeg via PATH.
	FFmpegPath string `koanf:"ffmpeg_path"`
}

// EmbeddingsConfig configures local embedding generation.
type EmbeddingsConfig struct {
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
}

// VectorStoreConfig configures the vector index backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (default, embedded) or "qdrant".
	Provider string `koanf:"provider"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem store.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// QdrantConfig configures a remote qdrant store.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level: debug, info, warn, error. Default: info.
	Level string `koanf:"level"`

	// Format: json or console. Default: json.
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.NoteStore.APIURL == "" {
		cfg.NoteStore.APIURL = "http://localhost:31009"
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.deepseek.com"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "deepseek-chat"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.Temperature == nil {
		t := 0.3
		cfg.LLM.Temperature = &t
	}

	if cfg.Whisper.Provider == "" {
		cfg.Whisper.Provider = "api"
	}
	if cfg.Whisper.APIURL == "" {
		cfg.Whisper.APIURL = "http://localhost:9000"
	}

	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/voxnote/vectorstore"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "notes"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "notes"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks cross-field consistency. Component-specific requirements
// (tokens, keys) are validated by the components that need them, so read-only
// commands work without a fully provisioned config.
func (c *Config) Validate() error {
	switch c.Whisper.Provider {
	case "api", "local":
	default:
		return fmt.Errorf("whisper.provider must be api or local, got %q", c.Whisper.Provider)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}
