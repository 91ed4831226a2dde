// Voxnote is a Telegram voice-notes bot: it transcribes voice messages,
// summarizes them with an LLM, stores the notes in an Anytype-compatible
// store, and answers questions over the accumulated notes with semantic
// search.
//
// Usage:
//
//	voxnote serve            Run the bot (default command)
//	voxnote sync             Rebuild the search index from the note store
//	voxnote search <query>   Search indexed notes from the terminal
//	voxnote stats            Show index statistics
//	voxnote clear --yes      Drop the search index
//
// Configuration lives in ~/.config/voxnote/config.yaml, overridable with
// VOXNOTE_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/config"
	"github.com/fyrsmithlabs/voxnote/internal/embeddings"
	"github.com/fyrsmithlabs/voxnote/internal/logging"
	"github.com/fyrsmithlabs/voxnote/internal/notestore"
	"github.com/fyrsmithlabs/voxnote/internal/retrieval"
	"github.com/fyrsmithlabs/voxnote/internal/vectorstore"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "voxnote",
	Short: "Voice notes bot with AI summaries and semantic search",
	// Bare `voxnote` runs the bot.
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("voxnote %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/voxnote/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger every command needs.
func setup() (*config.Config, *zap.Logger, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}

// newRetrievalService wires the embedding provider, vector store, and
// retrieval service from config.
func newRetrievalService(cfg *config.Config, logger *zap.Logger) (*retrieval.Service, func(), error) {
	embedder, err := embeddings.NewFastEmbedProvider(embeddings.FastEmbedConfig{
		Model:    cfg.Embeddings.Model,
		CacheDir: cfg.Embeddings.CacheDir,
	}, logger.Named("embeddings"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}

	store, err := vectorstore.New(vectorstore.Config{
		Provider: cfg.VectorStore.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Collection: cfg.VectorStore.Chromem.Collection,
			Compress:   cfg.VectorStore.Chromem.Compress,
			VectorSize: embedder.Dimension(),
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			Collection: cfg.VectorStore.Qdrant.Collection,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			VectorSize: uint64(embedder.Dimension()),
		},
	}, logger.Named("vectorstore"))
	if err != nil {
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("creating vector store: %w", err)
	}

	cleanup := func() {
		_ = store.Close()
		_ = embedder.Close()
	}
	service := retrieval.NewService(embedder, store, embedder.Model(), logger.Named("retrieval"))
	return service, cleanup, nil
}

// newNoteStore builds the note store client from config.
func newNoteStore(cfg *config.Config, logger *zap.Logger) (*notestore.Client, error) {
	return notestore.NewClient(notestore.Config{
		APIURL:      cfg.NoteStore.APIURL,
		BearerToken: cfg.NoteStore.BearerToken,
		SpaceID:     cfg.NoteStore.SpaceID,
		Timeout:     cfg.NoteStore.Timeout,
	}, logger.Named("notestore"))
}
