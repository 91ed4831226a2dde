package capture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxnote/internal/summarizer"
)

const longChunk = "We walked through the deployment plan and agreed to ship the release on Friday morning."

func TestSession_Lifecycle_WithChunks(t *testing.T) {
	s := newSession(42, "Sprint planning")
	assert.Equal(t, StateRecording, s.State())
	assert.Equal(t, int64(42), s.ChatID())

	n, eligible, err := s.AddTranscript(longChunk)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, eligible)

	require.NoError(t, s.AddChunkSummary(summarizer.ChunkSummary{ChunkNumber: 1, Text: "deploy friday"}))

	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())

	state, err := s.BeginFinalize()
	require.NoError(t, err)
	assert.Equal(t, StateCombining, state)

	require.NoError(t, s.Finalize())
	assert.Equal(t, StateFinalized, s.State())
}

func TestSession_Lifecycle_DirectSummary(t *testing.T) {
	s := newSession(1, "")

	// Below MinChunkChars: stays in transcript, no chunk summary expected.
	n, eligible, err := s.AddTranscript("quick thought")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, eligible)

	require.NoError(t, s.Stop())

	state, err := s.BeginFinalize()
	require.NoError(t, err)
	assert.Equal(t, StateDirectSummary, state)
	require.NoError(t, s.Finalize())
}

func TestSession_EmptySessionFinalizesOnStop(t *testing.T) {
	s := newSession(1, "")
	err := s.Stop()
	assert.ErrorIs(t, err, ErrEmptySession)
	assert.Equal(t, StateFinalized, s.State())
}

func TestSession_ChunkNumbersIncrement(t *testing.T) {
	s := newSession(1, "")

	for want := 1; want <= 3; want++ {
		n, _, err := s.AddTranscript(longChunk)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// Blank input is ignored and does not consume a number.
	n, eligible, err := s.AddTranscript("   ")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, eligible)

	n, _, err = s.AddTranscript(longChunk)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSession_FullTranscriptJoinsChunks(t *testing.T) {
	s := newSession(1, "")
	_, _, err := s.AddTranscript("first part")
	require.NoError(t, err)
	_, _, err = s.AddTranscript("second part")
	require.NoError(t, err)

	full := s.FullTranscript()
	assert.Equal(t, "first part\n\nsecond part", full)
	assert.Less(t, strings.Index(full, "first"), strings.Index(full, "second"))
}

func TestSession_RejectsChunksAfterStop(t *testing.T) {
	s := newSession(1, "")
	_, _, err := s.AddTranscript(longChunk)
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	_, _, err = s.AddTranscript(longChunk)
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestSession_LateChunkSummaryAfterStop(t *testing.T) {
	s := newSession(1, "")
	_, _, err := s.AddTranscript(longChunk)
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	// The model call for the last chunk may finish after the user stops.
	require.NoError(t, s.AddChunkSummary(summarizer.ChunkSummary{ChunkNumber: 1, Text: "late"}))

	state, err := s.BeginFinalize()
	require.NoError(t, err)
	assert.Equal(t, StateCombining, state)

	assert.ErrorIs(t, s.AddChunkSummary(summarizer.ChunkSummary{ChunkNumber: 2, Text: "too late"}), ErrWrongState)
}

func TestSession_StateGuards(t *testing.T) {
	s := newSession(1, "")

	_, err := s.BeginFinalize()
	assert.ErrorIs(t, err, ErrWrongState)
	assert.ErrorIs(t, s.Finalize(), ErrWrongState)

	_, _, err = s.AddTranscript(longChunk)
	require.NoError(t, err)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrWrongState)
}

func TestManager_OneSessionPerChat(t *testing.T) {
	m := NewManager()

	s1, err := m.Start(7, "standup")
	require.NoError(t, err)
	require.NotNil(t, s1)

	_, err = m.Start(7, "another")
	assert.ErrorIs(t, err, ErrSessionActive)

	// Different chats are independent.
	_, err = m.Start(8, "")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Active())
}

func TestManager_GetAndRemove(t *testing.T) {
	m := NewManager()

	_, ok := m.Get(7)
	assert.False(t, ok)
	_, err := m.Remove(7)
	assert.ErrorIs(t, err, ErrNoSession)

	started, err := m.Start(7, "")
	require.NoError(t, err)

	got, ok := m.Get(7)
	require.True(t, ok)
	assert.Same(t, started, got)

	removed, err := m.Remove(7)
	require.NoError(t, err)
	assert.Same(t, started, removed)
	assert.Equal(t, 0, m.Active())

	// Removing frees the chat for a new session.
	_, err = m.Start(7, "")
	assert.NoError(t, err)
}
