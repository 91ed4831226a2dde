// Package bot is the Telegram transport: it receives voice messages and
// commands, drives the transcription/summarization pipeline, and answers
// questions from the note index.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/audio"
	"github.com/fyrsmithlabs/voxnote/internal/capture"
	"github.com/fyrsmithlabs/voxnote/internal/logging"
	"github.com/fyrsmithlabs/voxnote/internal/notestore"
	"github.com/fyrsmithlabs/voxnote/internal/retrieval"
	"github.com/fyrsmithlabs/voxnote/internal/summarizer"
	"github.com/fyrsmithlabs/voxnote/internal/transcription"
)

// telegramAPI is the slice of tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Retriever indexes and searches notes.
type Retriever interface {
	AddNote(ctx context.Context, id, text string, metadata map[string]any) retrieval.AddOutcome
	Search(ctx context.Context, query string, nResults int, minSimilarity float32) []retrieval.SearchResult
	Stats(ctx context.Context) retrieval.Stats
}

// Syncer rebuilds the index from the note store.
type Syncer interface {
	SyncAll(ctx context.Context) (retrieval.SyncStats, error)
}

// NoteSummarizer produces summaries for notes and session chunks.
type NoteSummarizer interface {
	Summarize(ctx context.Context, transcription string) (string, error)
	SummarizeChunk(ctx context.Context, chunkNumber int, title, transcription string) (summarizer.ChunkSummary, error)
	CombineSummaries(ctx context.Context, title string, chunks []summarizer.ChunkSummary) (string, error)
}

// NoteCreator persists finished notes.
type NoteCreator interface {
	CreateVoiceNote(ctx context.Context, summary, fullText string, timestamp time.Time, username string) (*notestore.CreatedObject, error)
}

// Services bundles everything the bot drives.
type Services struct {
	Retrieval   Retriever
	Syncer      Syncer
	Summarizer  NoteSummarizer
	Completion  summarizer.CompletionClient
	Transcriber transcription.Transcriber
	Converter   *audio.Converter
	Notes       NoteCreator
}

// Config holds bot configuration.
type Config struct {
	// Token is the Telegram bot API token.
	Token string

	// AllowedUsers restricts who may talk to the bot. Empty allows everyone.
	AllowedUsers []int64
}

// Bot runs the Telegram update loop.
type Bot struct {
	api      telegramAPI
	config   Config
	services Services
	sessions *capture.Manager
	// downloads fetches voice files from Telegram's file servers.
	downloads *http.Client
	logger    *zap.Logger
}

// New connects to the Telegram API and creates the bot.
func New(cfg Config, services Services, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}

	logger.Info("telegram bot authorized",
		zap.String("username", api.Self.UserName),
		logging.RedactedString("token", cfg.Token),
	)
	return newWithAPI(api, cfg, services, logger), nil
}

// newWithAPI wires a bot over an existing API connection.
func newWithAPI(api telegramAPI, cfg Config, services Services, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		config:   cfg,
		services: services,
		sessions: capture.NewManager(),
		downloads: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger,
	}
}

// Run polls for updates until ctx is cancelled. Each update is handled on
// its own goroutine: the voice pipeline blocks on downloads, ffmpeg, and
// model calls, and one chat's recording must never stall another chat's
// commands. Run waits for in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30

	updates := b.api.GetUpdatesChan(updateConfig)
	b.logger.Info("bot started, polling for updates")

	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("bot stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			handlers.Add(1)
			go func() {
				defer handlers.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// userAllowed checks the allow list. An empty list allows everyone.
func (b *Bot) userAllowed(userID int64) bool {
	if len(b.config.AllowedUsers) == 0 {
		return true
	}
	for _, id := range b.config.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// reply sends plain text to the chat. Send failures are logged, not
// propagated: there is nothing useful a handler can do about them.
func (b *Bot) reply(chatID int64, text string) tgbotapi.Message {
	msg, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		b.logger.Warn("sending message failed", zap.Error(err))
	}
	return msg
}

// edit replaces a previously sent status message.
func (b *Bot) edit(chatID int64, messageID int, text string) {
	if messageID == 0 {
		b.reply(chatID, text)
		return
	}
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		b.logger.Warn("editing message failed", zap.Error(err))
	}
}
