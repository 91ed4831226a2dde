package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/audio"
	"github.com/fyrsmithlabs/voxnote/internal/notestore"
	"github.com/fyrsmithlabs/voxnote/internal/retrieval"
	"github.com/fyrsmithlabs/voxnote/internal/summarizer"
)

// fakeAPI records every outbound message.
type fakeAPI struct {
	mu      sync.Mutex
	sent    []string
	nextID  int
	fileURL string
	updates chan tgbotapi.Update
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.sent = append(f.sent, m.Text)
	case tgbotapi.EditMessageTextConfig:
		f.sent = append(f.sent, m.Text)
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	return f.fileURL, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) hasMessage(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sent {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func (f *fakeAPI) lastMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) allMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeRetriever captures AddNote calls and serves canned search results.
type fakeRetriever struct {
	added   map[string]string
	results []retrieval.SearchResult
}

func (f *fakeRetriever) AddNote(_ context.Context, id, text string, _ map[string]any) retrieval.AddOutcome {
	if f.added == nil {
		f.added = make(map[string]string)
	}
	f.added[id] = text
	return retrieval.AddOutcome{Indexed: true}
}

func (f *fakeRetriever) Search(_ context.Context, _ string, _ int, _ float32) []retrieval.SearchResult {
	return f.results
}

func (f *fakeRetriever) Stats(context.Context) retrieval.Stats {
	return retrieval.Stats{TotalNotes: len(f.added), Model: "test-model", StoragePath: "/tmp/index"}
}

type fakeSyncer struct {
	stats retrieval.SyncStats
	err   error
}

func (f *fakeSyncer) SyncAll(context.Context) (retrieval.SyncStats, error) {
	return f.stats, f.err
}

// fakeSummarizer echoes deterministic summaries.
type fakeSummarizer struct {
	failSummarize bool
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	if f.failSummarize {
		return "", errors.New("model down")
	}
	return "summary of: " + preview(text), nil
}

func (f *fakeSummarizer) SummarizeChunk(_ context.Context, n int, _ string, _ string) (summarizer.ChunkSummary, error) {
	return summarizer.ChunkSummary{ChunkNumber: n, Text: fmt.Sprintf("chunk %d summary", n)}, nil
}

func (f *fakeSummarizer) CombineSummaries(_ context.Context, _ string, chunks []summarizer.ChunkSummary) (string, error) {
	return fmt.Sprintf("combined %d chunks", len(chunks)), nil
}

type fakeCompletion struct {
	prompt string
	reply  string
	err    error
}

func (f *fakeCompletion) Complete(_ context.Context, _ string, userPrompt string) (string, error) {
	f.prompt = userPrompt
	return f.reply, f.err
}

type fakeTranscriber struct {
	text  string
	err   error
	delay time.Duration
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type fakeNotes struct {
	created []string
	err     error
}

func (f *fakeNotes) CreateVoiceNote(_ context.Context, summary, _ string, _ time.Time, _ string) (*notestore.CreatedObject, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := fmt.Sprintf("note-%d", len(f.created)+1)
	f.created = append(f.created, summary)
	return &notestore.CreatedObject{ObjectID: id, SpaceID: "space", Name: "🎤 " + preview(summary)}, nil
}

// fakeFFmpeg builds a stand-in converter binary.
func fakeFFmpeg(t *testing.T) *audio.Converter {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\neval \"out=\\${$#}\"\necho RIFF > \"$out\"\n"), 0o700))
	return audio.NewConverter(script, zap.NewNop())
}

type fixture struct {
	bot        *Bot
	api        *fakeAPI
	retriever  *fakeRetriever
	syncer     *fakeSyncer
	completion *fakeCompletion
	notes      *fakeNotes
	trans      *fakeTranscriber
	summ       *fakeSummarizer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OggS fake audio"))
	}))
	t.Cleanup(srv.Close)

	f := &fixture{
		api:        &fakeAPI{fileURL: srv.URL + "/file.ogg", updates: make(chan tgbotapi.Update, 8)},
		retriever:  &fakeRetriever{},
		syncer:     &fakeSyncer{stats: retrieval.SyncStats{Synced: 3, Skipped: 1, Errors: 0}},
		completion: &fakeCompletion{reply: "the answer"},
		notes:      &fakeNotes{},
		trans:      &fakeTranscriber{text: "we agreed to ship the release on friday morning after review"},
		summ:       &fakeSummarizer{},
	}
	f.bot = newWithAPI(f.api, cfg, Services{
		Retrieval:   f.retriever,
		Syncer:      f.syncer,
		Summarizer:  f.summ,
		Completion:  f.completion,
		Transcriber: f.trans,
		Converter:   fakeFFmpeg(t),
		Notes:       f.notes,
	}, zap.NewNop())
	return f
}

func commandMessage(userID, chatID int64, text string) *tgbotapi.Message {
	cmdLen := len(text)
	if i := strings.Index(text, " "); i > 0 {
		cmdLen = i
	}
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func voiceMessage(userID, chatID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: userID, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Voice:     &tgbotapi.Voice{FileID: "voice-file-1", Duration: 12},
	}
}

func (f *fixture) dispatch(msg *tgbotapi.Message) {
	f.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func TestBot_AllowList(t *testing.T) {
	f := newFixture(t, Config{AllowedUsers: []int64{100}})

	f.dispatch(commandMessage(200, 1, "/start"))
	assert.Contains(t, f.api.lastMessage(), "not authorized")

	f.dispatch(commandMessage(100, 1, "/start"))
	assert.Contains(t, f.api.lastMessage(), "Welcome")
}

func TestBot_EmptyAllowListAllowsEveryone(t *testing.T) {
	f := newFixture(t, Config{})

	f.dispatch(commandMessage(999, 1, "/start"))
	assert.Contains(t, f.api.lastMessage(), "Welcome")
}

func TestBot_HelpAndUnknown(t *testing.T) {
	f := newFixture(t, Config{})

	f.dispatch(commandMessage(1, 1, "/help"))
	assert.Contains(t, f.api.lastMessage(), "/meeting_stop")

	f.dispatch(commandMessage(1, 1, "/frobnicate"))
	assert.Contains(t, f.api.lastMessage(), "Unknown command")
}

func TestBot_TextGetsHint(t *testing.T) {
	f := newFixture(t, Config{})
	msg := commandMessage(1, 1, "hello")
	msg.Entities = nil

	f.dispatch(msg)
	assert.Contains(t, f.api.lastMessage(), "voice messages")
}

func TestBot_Ask(t *testing.T) {
	f := newFixture(t, Config{})
	f.retriever.results = []retrieval.SearchResult{
		{ID: "n1", Text: "budget is 40k", Metadata: map[string]string{"title": "Budget"}, Similarity: 0.8},
	}

	f.dispatch(commandMessage(1, 1, "/ask what is the budget"))

	assert.Equal(t, "the answer", f.api.lastMessage())
	assert.Contains(t, f.completion.prompt, "budget is 40k")
	assert.Contains(t, f.completion.prompt, "what is the budget")
	assert.Contains(t, f.completion.prompt, "Budget")
}

func TestBot_Ask_NoArgs(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(commandMessage(1, 1, "/ask"))
	assert.Contains(t, f.api.lastMessage(), "Usage")
}

func TestBot_Ask_NoMatches(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(commandMessage(1, 1, "/ask anything at all"))
	assert.Contains(t, f.api.lastMessage(), "Nothing in your notes")
}

func TestBot_Ask_CompletionFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.retriever.results = []retrieval.SearchResult{{ID: "n1", Text: "x", Similarity: 0.9}}
	f.completion.err = errors.New("api down")

	f.dispatch(commandMessage(1, 1, "/ask what"))
	assert.Contains(t, f.api.lastMessage(), "Could not generate an answer")
}

func TestBot_Sync(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(commandMessage(1, 1, "/sync"))

	last := f.api.lastMessage()
	assert.Contains(t, last, "Indexed: 3")
	assert.Contains(t, last, "Skipped (too short): 1")
}

func TestBot_Sync_Failure(t *testing.T) {
	f := newFixture(t, Config{})
	f.syncer.err = errors.New("store offline")

	f.dispatch(commandMessage(1, 1, "/sync"))
	assert.Contains(t, f.api.lastMessage(), "Sync failed")
}

func TestBot_Stats(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(commandMessage(1, 1, "/stats"))

	last := f.api.lastMessage()
	assert.Contains(t, last, "test-model")
	assert.Contains(t, last, "/tmp/index")
}

func TestBot_VoiceNotePipeline(t *testing.T) {
	f := newFixture(t, Config{})

	f.dispatch(voiceMessage(1, 1))

	last := f.api.lastMessage()
	assert.Contains(t, last, "Voice note saved")
	assert.Contains(t, last, "summary of:")
	assert.Contains(t, last, "ship the release")

	// Note persisted and indexed under the store id.
	require.Len(t, f.notes.created, 1)
	require.Len(t, f.retriever.added, 1)
	indexed := f.retriever.added["note-1"]
	assert.Contains(t, indexed, "summary of:")
	assert.Contains(t, indexed, "friday morning")
}

func TestBot_Voice_TranscriptionFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.trans.err = errors.New("whisper crashed")

	f.dispatch(voiceMessage(1, 1))
	assert.Contains(t, f.api.lastMessage(), "Could not transcribe")
	assert.Empty(t, f.notes.created)
}

func TestBot_Voice_SummarizeFailureReturnsTranscript(t *testing.T) {
	f := newFixture(t, Config{})
	f.summ.failSummarize = true

	f.dispatch(voiceMessage(1, 1))
	last := f.api.lastMessage()
	assert.Contains(t, last, "raw transcription")
	assert.Contains(t, last, "ship the release")
}

func TestBot_Voice_StoreFailureStillAnswers(t *testing.T) {
	f := newFixture(t, Config{})
	f.notes.err = errors.New("store down")

	f.dispatch(voiceMessage(1, 1))
	last := f.api.lastMessage()
	assert.Contains(t, last, "Could not save")
	// Summary still shown despite the persistence failure.
	assert.Contains(t, last, "summary of:")
}

func TestBot_MeetingFlow(t *testing.T) {
	f := newFixture(t, Config{})

	f.dispatch(commandMessage(1, 1, "/meeting weekly sync"))
	assert.Contains(t, f.api.lastMessage(), "Recording session started")

	// Second start in the same chat is refused.
	f.dispatch(commandMessage(1, 1, "/meeting another"))
	assert.Contains(t, f.api.lastMessage(), "already running")

	// Two voice parts go into the session, not standalone notes.
	f.dispatch(voiceMessage(1, 1))
	assert.Contains(t, f.api.lastMessage(), "Part 1 captured")
	f.dispatch(voiceMessage(1, 1))
	assert.Contains(t, f.api.lastMessage(), "Part 2 captured")
	assert.Empty(t, f.notes.created)

	f.dispatch(commandMessage(1, 1, "/meeting_stop"))
	last := f.api.lastMessage()
	assert.Contains(t, last, "Session saved")
	assert.Contains(t, last, "combined 2 chunks")

	require.Len(t, f.notes.created, 1)
	assert.Equal(t, "combined 2 chunks", f.notes.created[0])
	require.Len(t, f.retriever.added, 1)

	// Session is gone; a new one may start.
	f.dispatch(commandMessage(1, 1, "/meeting"))
	assert.Contains(t, f.api.lastMessage(), "Recording session started")
}

func TestBot_MeetingStop_NoSession(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(commandMessage(1, 1, "/meeting_stop"))
	assert.Contains(t, f.api.lastMessage(), "no recording session")
}

func TestBot_MeetingStop_EmptySession(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(commandMessage(1, 1, "/meeting"))
	f.dispatch(commandMessage(1, 1, "/meeting_stop"))
	assert.Contains(t, f.api.lastMessage(), "nothing to save")
}

func TestBot_Run_SlowVoiceDoesNotBlockOtherChats(t *testing.T) {
	f := newFixture(t, Config{})
	f.trans.delay = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.bot.Run(ctx) }()

	// A long transcription in chat 1, then a command from chat 2.
	f.api.updates <- tgbotapi.Update{Message: voiceMessage(1, 1)}
	time.Sleep(50 * time.Millisecond)
	f.api.updates <- tgbotapi.Update{Message: commandMessage(2, 2, "/start")}

	// Chat 2 must get its welcome while chat 1 is still transcribing.
	start := time.Now()
	require.Eventually(t, func() bool {
		return f.api.hasMessage("Welcome")
	}, time.Second, 10*time.Millisecond)
	assert.Less(t, time.Since(start), f.trans.delay)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestBot_Status(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatch(commandMessage(1, 1, "/meeting"))
	f.dispatch(commandMessage(1, 1, "/status"))

	last := f.api.lastMessage()
	assert.Contains(t, last, "Active sessions: 1")
	assert.Contains(t, last, "test-model")
}
