package notestore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/notestore"
)

func newTestClient(t *testing.T, handler http.Handler) (*notestore.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := notestore.NewClient(notestore.Config{
		APIURL:      srv.URL,
		BearerToken: "test-token",
		SpaceID:     "space-1",
	}, zap.NewNop())
	require.NoError(t, err)
	return client, srv
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     notestore.Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  notestore.Config{APIURL: "http://localhost:31009", SpaceID: "s"},
		},
		{
			name:    "missing URL",
			cfg:     notestore.Config{SpaceID: "s"},
			wantErr: true,
		},
		{
			name:    "missing space",
			cfg:     notestore.Config{APIURL: "http://localhost:31009"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, notestore.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_RequestHeaders(t *testing.T) {
	var gotAuth, gotVersion, gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Anytype-Version")
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	}))

	_, err := client.SearchObjects(context.Background(), "", nil, 10)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, notestore.APIVersion, gotVersion)
	// Base URL without /v1 gets the prefix added.
	assert.Equal(t, "/v1/spaces/space-1/objects/search", gotPath)
}

func TestClient_VersionedBaseURLNotDoubled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/spaces/space-1/objects/search", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	}))
	t.Cleanup(srv.Close)

	client, err := notestore.NewClient(notestore.Config{
		APIURL:  srv.URL + "/v1",
		SpaceID: "space-1",
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.SearchObjects(context.Background(), "", nil, 10)
	require.NoError(t, err)
}

func TestClient_SearchObjects(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "meeting", req["query"])
		assert.EqualValues(t, 50, req["limit"])

		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": "obj-1", "name": "Team meeting notes"},
				{"id": "obj-2", "name": "Project meeting"},
			},
		})
	}))

	objects, err := client.SearchObjects(context.Background(), "meeting", []string{notestore.NoteTypeKey}, 50)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "obj-1", objects[0].ID)
	assert.Equal(t, "Team meeting notes", objects[0].Name)
}

func TestClient_GetObject(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/spaces/space-1/objects/obj-1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"object": map[string]any{
				"id":   "obj-1",
				"name": "Budget",
				"body": "Quarterly budget review details",
			},
		})
	}))

	obj, err := client.GetObject(context.Background(), "obj-1")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", obj.ID)
	assert.Equal(t, "Quarterly budget review details", obj.Body)
}

func TestClient_APIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"message": "invalid token"},
		})
	}))

	_, err := client.GetObject(context.Background(), "obj-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, notestore.ErrAPIError)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestClient_NonJSONResponse(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	}))

	_, err := client.GetObject(context.Background(), "obj-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, notestore.ErrAPIError)
}

func TestClient_CreateVoiceNote(t *testing.T) {
	var gotReq map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeJSON(w, http.StatusOK, map[string]any{
			"object": map[string]any{"id": "new-obj"},
		})
	}))

	ts := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	created, err := client.CreateVoiceNote(context.Background(),
		"Discussed quarterly goals and hiring plans for the team going forward",
		"line one\nline two",
		ts, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new-obj", created.ObjectID)
	assert.Equal(t, "space-1", created.SpaceID)

	name, _ := gotReq["name"].(string)
	assert.True(t, strings.HasPrefix(name, "🎤 [@alice] 2025-06-15 14:30 - "), "got title %q", name)
	// Title preview truncates at 40 chars with ellipsis.
	assert.Contains(t, name, "...")

	body, _ := gotReq["body"].(string)
	assert.Contains(t, body, "## Summary")
	assert.Contains(t, body, "## Full Transcription")
	// Every transcription line is quoted.
	assert.Contains(t, body, "> line one\n> line two")
	assert.Equal(t, notestore.NoteTypeKey, gotReq["type_key"])
}

func TestClient_CreateVoiceNote_UnknownUser(t *testing.T) {
	var gotName string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotName, _ = req["name"].(string)
		writeJSON(w, http.StatusOK, map[string]any{
			"object": map[string]any{"id": "new-obj"},
		})
	}))

	_, err := client.CreateVoiceNote(context.Background(), "short summary", "text", time.Time{}, "")
	require.NoError(t, err)
	assert.Contains(t, gotName, "[Unknown]")
}
