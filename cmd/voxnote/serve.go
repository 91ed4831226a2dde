package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voxnote/internal/audio"
	"github.com/fyrsmithlabs/voxnote/internal/bot"
	"github.com/fyrsmithlabs/voxnote/internal/retrieval"
	"github.com/fyrsmithlabs/voxnote/internal/summarizer"
	"github.com/fyrsmithlabs/voxnote/internal/transcription"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Long: `Run the Telegram bot until interrupted.

The bot transcribes incoming voice messages, summarizes them, saves notes to
the note store, and indexes them for /ask searches. SIGINT or SIGTERM stops
it gracefully.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required to run the bot")
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required to run the bot")
	}

	retrievalSvc, cleanup, err := newRetrievalService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	notes, err := newNoteStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating note store client: %w", err)
	}

	chatClient, err := summarizer.NewChatClient(summarizer.ClientConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logger.Named("llm"))
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	transcriber, err := transcription.New(transcription.Config{
		Provider: transcription.Provider(cfg.Whisper.Provider),
		API: transcription.APIConfig{
			URL:      cfg.Whisper.APIURL,
			Endpoint: cfg.Whisper.Endpoint,
			APIKey:   cfg.Whisper.APIKey,
			Model:    cfg.Whisper.Model,
		},
		Local: transcription.LocalConfig{
			BinaryPath: cfg.Whisper.BinaryPath,
			ModelPath:  cfg.Whisper.ModelPath,
		},
		Language: cfg.Whisper.Language,
	}, logger.Named("transcription"))
	if err != nil {
		return fmt.Errorf("creating transcriber: %w", err)
	}

	b, err := bot.New(bot.Config{
		Token:        cfg.Telegram.Token,
		AllowedUsers: cfg.Telegram.AllowedUsers,
	}, bot.Services{
		Retrieval:   retrievalSvc,
		Syncer:      retrieval.NewSyncer(notes, retrievalSvc, logger.Named("sync")),
		Summarizer:  summarizer.NewService(chatClient, logger.Named("summarizer")),
		Completion:  chatClient,
		Transcriber: transcriber,
		Converter:   audio.NewConverter(cfg.Whisper.FFmpegPath, logger.Named("audio")),
		Notes:       notes,
	}, logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
