package summarizer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/summarizer"
)

func chatReply(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func newChatClient(t *testing.T, handler http.Handler) *summarizer.ChatClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := summarizer.NewChatClient(summarizer.ClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewChatClient_RequiresAPIKey(t *testing.T) {
	_, err := summarizer.NewChatClient(summarizer.ClientConfig{}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, summarizer.ErrInvalidConfig)
}

func TestChatClient_Complete(t *testing.T) {
	var gotReq map[string]any
	var gotAuth string
	client := newChatClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatReply("the summary"))
	}))

	reply, err := client.Complete(context.Background(), "be brief", "summarize this")
	require.NoError(t, err)
	assert.Equal(t, "the summary", reply)
	assert.Equal(t, "Bearer test-key", gotAuth)

	assert.Equal(t, "deepseek-chat", gotReq["model"])
	assert.EqualValues(t, 1000, gotReq["max_tokens"])
	assert.InDelta(t, 0.3, gotReq["temperature"], 0.001)

	messages, ok := gotReq["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "be brief", first["content"])
}

func TestChatClient_ExplicitZeroTemperature(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatReply("ok"))
	}))
	t.Cleanup(srv.Close)

	zero := 0.0
	client, err := summarizer.NewChatClient(summarizer.ClientConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		Temperature: &zero,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)

	// A configured 0 must reach the wire, not be replaced by the default.
	assert.Zero(t, gotReq["temperature"])
}

func TestChatClient_RetriesServerError(t *testing.T) {
	attempts := 0
	client := newChatClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatReply("recovered"))
	}))

	reply, err := client.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, 2, attempts)
}

func TestChatClient_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	client := newChatClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad model name"},
		})
	}))

	_, err := client.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model name")
	assert.Equal(t, 1, attempts)
}

func TestChatClient_EmptyChoices(t *testing.T) {
	client := newChatClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))

	_, err := client.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestChatClient_ContextCancelledDuringBackoff(t *testing.T) {
	client := newChatClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, "sys", "user")
	require.Error(t, err)
}
