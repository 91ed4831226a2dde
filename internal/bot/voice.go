package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/capture"
)

// timeRounding trims durations shown to users.
const timeRounding = time.Second

// previewChars caps the transcript preview in confirmations.
const previewChars = 200

// handleVoice runs the voice pipeline: download, convert, transcribe, then
// either feed an active session or save a standalone note.
func (b *Bot) handleVoice(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	status := b.reply(chatID, "🎤 Processing your voice message...")

	tempDir, err := os.MkdirTemp("", "voxnote-*")
	if err != nil {
		b.logger.Error("creating temp dir failed", zap.Error(err))
		b.edit(chatID, status.MessageID, "❌ Internal error, please try again.")
		return
	}
	defer os.RemoveAll(tempDir)

	b.edit(chatID, status.MessageID, "📥 Downloading audio...")
	oggPath := filepath.Join(tempDir, fmt.Sprintf("voice_%d.ogg", message.MessageID))
	if err := b.downloadVoice(ctx, message.Voice.FileID, oggPath); err != nil {
		b.logger.Error("downloading voice failed", zap.Error(err))
		b.edit(chatID, status.MessageID, "❌ Could not download the voice message.")
		return
	}

	b.edit(chatID, status.MessageID, "🔄 Converting audio format...")
	wavPath, err := b.services.Converter.ToWAV(ctx, oggPath)
	if err != nil {
		b.logger.Error("converting audio failed", zap.Error(err))
		b.edit(chatID, status.MessageID, "❌ Could not convert the audio.")
		return
	}

	b.edit(chatID, status.MessageID, "🎤 Transcribing speech to text...")
	text, err := b.services.Transcriber.Transcribe(ctx, wavPath)
	if err != nil {
		b.logger.Error("transcription failed", zap.Error(err))
		b.edit(chatID, status.MessageID, "⚠️ Could not transcribe the audio. Please try again with clearer speech.")
		return
	}

	b.logger.Info("transcribed voice message",
		zap.Int64("chat_id", chatID),
		zap.Int("chars", len(text)),
	)

	if session, ok := b.sessions.Get(chatID); ok {
		b.handleSessionChunk(ctx, session, chatID, status.MessageID, text)
		return
	}

	b.edit(chatID, status.MessageID, "🤖 Generating AI summary...")
	summary, err := b.services.Summarizer.Summarize(ctx, text)
	if err != nil {
		b.logger.Error("summarization failed", zap.Error(err))
		b.edit(chatID, status.MessageID, "❌ Could not summarize. Here is the raw transcription:\n\n"+text)
		return
	}

	b.edit(chatID, status.MessageID, "💾 Saving note...")
	saved := b.persistNote(ctx, summary, text, message)

	b.edit(chatID, status.MessageID, fmt.Sprintf(
		"✅ Voice note saved!\n\n📝 Summary:\n%s\n\n📄 Full text:\n%s\n\n%s",
		summary, preview(text), saved,
	))
}

// handleSessionChunk feeds one transcription into the active session.
func (b *Bot) handleSessionChunk(ctx context.Context, session *capture.Session, chatID int64, statusID int, text string) {
	chunkNumber, eligible, err := session.AddTranscript(text)
	if err != nil {
		b.edit(chatID, statusID, "⚠️ The session is no longer recording; /meeting_stop to finish it.")
		return
	}

	if eligible {
		chunk, err := b.services.Summarizer.SummarizeChunk(ctx, chunkNumber, session.Title(), text)
		if err != nil {
			// The transcript is already in the session; the final summary
			// will just lean on the full text for this part.
			b.logger.Warn("chunk summarization failed",
				zap.Int("chunk", chunkNumber),
				zap.Error(err),
			)
		} else if err := session.AddChunkSummary(chunk); err != nil {
			b.logger.Warn("recording chunk summary failed", zap.Error(err))
		}
	}

	b.edit(chatID, statusID, fmt.Sprintf("🎙 Part %d captured (%d chars). Keep going, or /meeting_stop to finish.", chunkNumber, len(text)))
}

// persistNote saves the note to the store and indexes it for search.
// Returns a status line for the user; persistence failures degrade to a
// warning instead of losing the summary the user already sees.
func (b *Bot) persistNote(ctx context.Context, summary, fullText string, message *tgbotapi.Message) string {
	username := ""
	if message.From != nil {
		username = message.From.UserName
		if username == "" {
			username = message.From.FirstName
		}
	}

	created, err := b.services.Notes.CreateVoiceNote(ctx, summary, fullText, time.Now(), username)
	if err != nil {
		b.logger.Error("saving note failed", zap.Error(err))
		return "⚠️ Could not save to the note store."
	}

	outcome := b.services.Retrieval.AddNote(ctx, created.ObjectID, summary+"\n\n"+fullText, map[string]any{
		"source":   "voice",
		"title":    created.Name,
		"username": username,
	})
	if !outcome.Indexed {
		b.logger.Warn("indexing note failed",
			zap.String("id", created.ObjectID),
			zap.String("reason", string(outcome.Reason)),
		)
	}

	return "🔗 Saved to your notes"
}

// downloadVoice fetches a Telegram voice file to disk.
func (b *Bot) downloadVoice(ctx context.Context, fileID, destPath string) error {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("resolving file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating download request: %w", err)
	}

	resp, err := b.downloads.Do(req)
	if err != nil {
		return fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewChars {
		return string(runes[:previewChars]) + "..."
	}
	return text
}
