// Package capture tracks live recording sessions: long recordings arrive as a
// stream of transcribed chunks that are summarized incrementally and folded
// into one note when the session ends.
package capture

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/voxnote/internal/summarizer"
)

// MinChunkChars is the minimum transcript length for a chunk to get its own
// summary. Shorter chunks still join the full transcript but are not worth a
// model call on their own.
const MinChunkChars = 50

// State is a session lifecycle state.
type State string

const (
	// StateRecording accepts transcript chunks.
	StateRecording State = "recording"

	// StateStopped no longer accepts chunks; finalization has not started.
	StateStopped State = "stopped"

	// StateCombining is finalizing a session that produced chunk summaries.
	StateCombining State = "combining"

	// StateDirectSummary is finalizing a session with no chunk summaries;
	// the full transcript gets one direct summary call.
	StateDirectSummary State = "direct_summary"

	// StateFinalized is terminal.
	StateFinalized State = "finalized"
)

var (
	// ErrWrongState indicates an operation invalid in the current state.
	ErrWrongState = errors.New("operation not valid in current session state")

	// ErrEmptySession indicates a session stopped with no transcript at all.
	ErrEmptySession = errors.New("session captured no transcript")
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// Session is one live recording session. All methods are safe for concurrent
// use; the transport layer may feed chunks from multiple handler goroutines.
type Session struct {
	mu sync.Mutex

	chatID    int64
	title     string
	startedAt time.Time
	state     State

	nextChunk  int
	transcript []string
	summaries  []summarizer.ChunkSummary
}

// newSession creates a recording session. Sessions are created through a
// Manager, which enforces one active session per chat.
func newSession(chatID int64, title string) *Session {
	return &Session{
		chatID:    chatID,
		title:     title,
		startedAt: timeNow(),
		state:     StateRecording,
		nextChunk: 1,
	}
}

// ChatID returns the owning chat.
func (s *Session) ChatID() int64 { return s.chatID }

// Title returns the session title, possibly empty.
func (s *Session) Title() string { return s.title }

// StartedAt returns when recording began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Duration returns how long the session has been (or was) recording.
func (s *Session) Duration() time.Duration {
	return timeNow().Sub(s.startedAt)
}

// AddTranscript appends one transcribed chunk. It returns the assigned chunk
// number and whether the chunk is long enough to deserve its own summary.
// Short chunks are kept in the full transcript either way.
func (s *Session) AddTranscript(text string) (chunkNumber int, eligible bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return 0, false, ErrWrongState
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false, nil
	}

	n := s.nextChunk
	s.nextChunk++
	s.transcript = append(s.transcript, trimmed)
	return n, len(trimmed) >= MinChunkChars, nil
}

// AddChunkSummary records the summary produced for an eligible chunk.
// Summaries may arrive after Stop: the model call for the last chunk can
// still be in flight when the user stops the session.
func (s *Session) AddChunkSummary(cs summarizer.ChunkSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording && s.state != StateStopped {
		return ErrWrongState
	}
	s.summaries = append(s.summaries, cs)
	return nil
}

// Stop ends recording. The session refuses further chunks.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return ErrWrongState
	}
	if len(s.transcript) == 0 {
		s.state = StateFinalized
		return ErrEmptySession
	}
	s.state = StateStopped
	return nil
}

// BeginFinalize moves a stopped session into its finalization path and
// returns the state chosen: StateCombining when chunk summaries exist,
// StateDirectSummary otherwise.
func (s *Session) BeginFinalize() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return s.state, ErrWrongState
	}
	if len(s.summaries) > 0 {
		s.state = StateCombining
	} else {
		s.state = StateDirectSummary
	}
	return s.state, nil
}

// Finalize marks the session complete.
func (s *Session) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCombining && s.state != StateDirectSummary {
		return ErrWrongState
	}
	s.state = StateFinalized
	return nil
}

// Chunks returns how many transcript chunks the session captured.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

// FullTranscript returns every chunk joined in arrival order.
func (s *Session) FullTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.transcript, "\n\n")
}

// ChunkSummaries returns a copy of the recorded chunk summaries.
func (s *Session) ChunkSummaries() []summarizer.ChunkSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]summarizer.ChunkSummary, len(s.summaries))
	copy(out, s.summaries)
	return out
}
