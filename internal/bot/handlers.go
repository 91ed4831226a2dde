package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/capture"
)

// askMinSimilarity filters out weakly related notes before they reach the
// answer prompt.
const askMinSimilarity = 0.3

// askResultLimit caps how many notes feed one answer.
const askResultLimit = 5

const welcomeText = `👋 Welcome to Voice Notes Bot!

Send me a voice message and I will:
1. 🎤 Transcribe it to text
2. 📝 Create a summary using AI
3. 💾 Save it to your notes

Just record and send a voice message to get started!`

const helpText = `📖 Voice Notes Bot Help

Commands:
/start - Start the bot
/help - Show this help message
/status - Check service status
/ask <question> - Answer a question from your notes
/sync - Rebuild the search index from the note store
/stats - Show search index statistics
/meeting [title] - Start a long recording session
/meeting_stop - End the session and save one combined note

Usage:
Send a voice message and the bot will transcribe it, summarize it, and save both. During a meeting session, voice messages accumulate into a single note instead.`

const askSystemPrompt = "You answer questions using only the provided notes. If the notes do not contain the answer, say so plainly. Answer in the language of the question."

// handleUpdate routes one update. Run dispatches every update on its own
// goroutine, so handlers may block on downloads and model calls; shared
// state (sessions, services) is concurrency-safe.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	chatID := message.Chat.ID
	if !b.userAllowed(message.From.ID) {
		b.logger.Warn("rejected message from unauthorized user",
			zap.Int64("user_id", message.From.ID),
		)
		b.reply(chatID, "⛔ You are not authorized to use this bot.")
		return
	}

	switch {
	case message.IsCommand():
		b.handleCommand(ctx, message)
	case message.Voice != nil:
		b.handleVoice(ctx, message)
	default:
		b.reply(chatID, "💡 This bot is designed for voice messages.\n\nRecord and send a voice message to create a note, or use /ask to search your notes. /help for more.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		b.reply(chatID, welcomeText)
	case "help":
		b.reply(chatID, helpText)
	case "status":
		b.handleStatus(ctx, chatID)
	case "ask":
		b.handleAsk(ctx, chatID, message.CommandArguments())
	case "sync":
		b.handleSync(ctx, chatID)
	case "stats":
		b.handleStats(ctx, chatID)
	case "meeting":
		b.handleMeetingStart(chatID, message.CommandArguments())
	case "meeting_stop":
		b.handleMeetingStop(ctx, message)
	default:
		b.reply(chatID, "Unknown command. /help lists what I understand.")
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	stats := b.services.Retrieval.Stats(ctx)

	var sb strings.Builder
	sb.WriteString("📊 Service Status\n\n")
	fmt.Fprintf(&sb, "🔎 Search index: %d notes (%s)\n", stats.TotalNotes, stats.Model)
	fmt.Fprintf(&sb, "🎙 Active sessions: %d\n", b.sessions.Active())
	b.reply(chatID, sb.String())
}

func (b *Bot) handleAsk(ctx context.Context, chatID int64, question string) {
	question = strings.TrimSpace(question)
	if question == "" {
		b.reply(chatID, "Usage: /ask <question>")
		return
	}

	results := b.services.Retrieval.Search(ctx, question, askResultLimit, askMinSimilarity)
	if len(results) == 0 {
		b.reply(chatID, "🤷 Nothing in your notes matches that question.")
		return
	}

	var sb strings.Builder
	for i, r := range results {
		title := r.Metadata["title"]
		if title == "" {
			title = r.ID
		}
		fmt.Fprintf(&sb, "Note %d (%s):\n%s\n\n", i+1, title, r.Text)
	}

	prompt := fmt.Sprintf("Notes:\n\n%sQuestion: %s", sb.String(), question)
	answer, err := b.services.Completion.Complete(ctx, askSystemPrompt, prompt)
	if err != nil {
		b.logger.Error("answering question failed", zap.Error(err))
		b.reply(chatID, "❌ Could not generate an answer, please try again.")
		return
	}
	b.reply(chatID, strings.TrimSpace(answer))
}

func (b *Bot) handleSync(ctx context.Context, chatID int64) {
	status := b.reply(chatID, "🔄 Syncing notes into the search index...")

	stats, err := b.services.Syncer.SyncAll(ctx)
	if err != nil {
		b.logger.Error("sync failed", zap.Error(err))
		b.edit(chatID, status.MessageID, "❌ Sync failed: could not list notes from the store.")
		return
	}

	b.edit(chatID, status.MessageID, fmt.Sprintf(
		"✅ Sync complete\n\nIndexed: %d\nSkipped (too short): %d\nErrors: %d",
		stats.Synced, stats.Skipped, stats.Errors,
	))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	stats := b.services.Retrieval.Stats(ctx)
	b.reply(chatID, fmt.Sprintf(
		"📈 Search Index\n\nNotes: %d\nModel: %s\nStorage: %s",
		stats.TotalNotes, stats.Model, stats.StoragePath,
	))
}

func (b *Bot) handleMeetingStart(chatID int64, title string) {
	title = strings.TrimSpace(title)

	if _, err := b.sessions.Start(chatID, title); err != nil {
		b.reply(chatID, "⚠️ A recording session is already running. /meeting_stop to finish it first.")
		return
	}

	name := title
	if name == "" {
		name = "untitled"
	}
	b.logger.Info("meeting session started",
		zap.Int64("chat_id", chatID),
		zap.String("title", name),
	)
	b.reply(chatID, fmt.Sprintf("🎙 Recording session started (%s).\n\nSend voice messages as the meeting goes on; /meeting_stop saves everything as one note.", name))
}

func (b *Bot) handleMeetingStop(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	session, err := b.sessions.Remove(chatID)
	if err != nil {
		b.reply(chatID, "There is no recording session to stop.")
		return
	}

	if err := session.Stop(); err != nil {
		if err == capture.ErrEmptySession {
			b.reply(chatID, "Session ended. No voice messages were recorded, nothing to save.")
			return
		}
		b.logger.Error("stopping session failed", zap.Error(err))
		b.reply(chatID, "❌ Could not stop the session cleanly.")
		return
	}

	status := b.reply(chatID, "🧩 Combining the session into one note...")

	summary, err := b.finalizeSession(ctx, session)
	if err != nil {
		b.logger.Error("finalizing session failed", zap.Error(err))
		// The transcript must not be lost: hand it back raw.
		b.edit(chatID, status.MessageID, "❌ Could not summarize the session. Here is the raw transcript:\n\n"+session.FullTranscript())
		return
	}

	saved := b.persistNote(ctx, summary, session.FullTranscript(), message)
	duration := session.Duration().Round(timeRounding)
	b.edit(chatID, status.MessageID, fmt.Sprintf(
		"✅ Session saved (%s, %d parts).\n\n📝 Summary:\n%s\n\n%s",
		duration, session.Chunks(), summary, saved,
	))
}

// finalizeSession runs the combine or direct-summary path for a stopped
// session and marks it finalized.
func (b *Bot) finalizeSession(ctx context.Context, session *capture.Session) (string, error) {
	state, err := session.BeginFinalize()
	if err != nil {
		return "", err
	}

	var summary string
	switch state {
	case capture.StateCombining:
		summary, err = b.services.Summarizer.CombineSummaries(ctx, session.Title(), session.ChunkSummaries())
	case capture.StateDirectSummary:
		summary, err = b.services.Summarizer.Summarize(ctx, session.FullTranscript())
	default:
		err = capture.ErrWrongState
	}
	if err != nil {
		return "", err
	}

	if err := session.Finalize(); err != nil {
		return "", err
	}
	return summary, nil
}
