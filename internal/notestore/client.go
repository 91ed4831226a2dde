// Package notestore is a client for an Anytype-compatible note store HTTP API.
//
// The note store is the source of truth for note content. Every call can fail
// with a transient network or authorization error; callers decide whether to
// retry. Requests carry a bounded timeout so a dead store cannot hang the
// caller indefinitely.
package notestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIVersion is the Anytype API version header value.
const APIVersion = "2025-05-20"

// NoteTypeKey is the object type key for notes.
const NoteTypeKey = "ot-note"

// defaultTimeout bounds every note store request.
const defaultTimeout = 30 * time.Second

var (
	// ErrInvalidConfig indicates invalid client configuration.
	ErrInvalidConfig = errors.New("invalid note store configuration")

	// ErrRequestFailed indicates a transport-level failure.
	ErrRequestFailed = errors.New("note store request failed")

	// ErrAPIError indicates the store returned a non-success status.
	ErrAPIError = errors.New("note store API error")
)

// Object is a note store object. Search results omit Body; Get fills it.
type Object struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Body        string `json:"body,omitempty"`
	CreatedDate string `json:"created_date,omitempty"`
}

// CreatedObject describes a newly created object.
type CreatedObject struct {
	ObjectID string
	SpaceID  string
	Name     string
}

// Config holds note store client configuration.
type Config struct {
	// APIURL is the base URL of the store. A missing /v1 suffix is added.
	APIURL string

	// BearerToken authenticates every request.
	BearerToken string

	// SpaceID is the space all operations target.
	SpaceID string

	// Timeout bounds each request. Default: 30s.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("%w: API URL required", ErrInvalidConfig)
	}
	if c.SpaceID == "" {
		return fmt.Errorf("%w: space ID required", ErrInvalidConfig)
	}
	return nil
}

// Client talks to the note store.
type Client struct {
	baseURL    string
	token      string
	spaceID    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a note store client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(cfg.APIURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		token:   cfg.BearerToken,
		spaceID: cfg.SpaceID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// apiResponse is the common envelope returned by the store.
type apiResponse struct {
	Data   json.RawMessage `json:"data"`
	Object json.RawMessage `json:"object"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
}

// request performs one API call and returns the decoded envelope.
func (c *Client) request(ctx context.Context, method, endpoint string, payload any) (*apiResponse, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Anytype-Version", APIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, fmt.Errorf("%w: status %d: %s", ErrAPIError, resp.StatusCode, truncateBody(respBody))
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := envelope.Error.Message
		if msg == "" {
			msg = truncateBody(respBody)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrAPIError, resp.StatusCode, msg)
	}

	return &envelope, nil
}

// objectData returns the object payload, accepting both envelope shapes the
// API is known to produce.
func (e *apiResponse) objectData() json.RawMessage {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return e.Data
	}
	return e.Object
}

func truncateBody(b []byte) string {
	const max = 200
	s := string(b)
	if len(s) > max {
		return s[:max]
	}
	return s
}

// searchRequest is the body of the object search endpoint.
type searchRequest struct {
	Query string   `json:"query"`
	Types []string `json:"types,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// SearchObjects lists objects in the space matching query and types.
// An empty query lists everything, bounded by limit.
func (c *Client) SearchObjects(ctx context.Context, query string, types []string, limit int) ([]Object, error) {
	envelope, err := c.request(ctx, http.MethodPost,
		fmt.Sprintf("/spaces/%s/objects/search", c.spaceID),
		searchRequest{Query: query, Types: types, Limit: limit},
	)
	if err != nil {
		return nil, err
	}

	var objects []Object
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, &objects); err != nil {
			return nil, fmt.Errorf("decoding search results: %w", err)
		}
	}
	return objects, nil
}

// GetObject fetches a full object, including its body.
func (c *Client) GetObject(ctx context.Context, id string) (*Object, error) {
	envelope, err := c.request(ctx, http.MethodGet,
		fmt.Sprintf("/spaces/%s/objects/%s", c.spaceID, id), nil)
	if err != nil {
		return nil, err
	}

	var obj Object
	if data := envelope.objectData(); len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("decoding object: %w", err)
		}
	}
	return &obj, nil
}

// createRequest is the body of the object creation endpoint.
type createRequest struct {
	Name    string `json:"name"`
	Icon    icon   `json:"icon"`
	Body    string `json:"body"`
	TypeKey string `json:"type_key"`
}

type icon struct {
	Format string `json:"format"`
	Emoji  string `json:"emoji"`
}

// CreateObject creates a new object in the space.
func (c *Client) CreateObject(ctx context.Context, name, body, typeKey, iconEmoji string) (*CreatedObject, error) {
	if typeKey == "" {
		typeKey = NoteTypeKey
	}
	if iconEmoji == "" {
		iconEmoji = "📝"
	}

	envelope, err := c.request(ctx, http.MethodPost,
		fmt.Sprintf("/spaces/%s/objects", c.spaceID),
		createRequest{
			Name:    name,
			Icon:    icon{Format: "emoji", Emoji: iconEmoji},
			Body:    body,
			TypeKey: typeKey,
		},
	)
	if err != nil {
		return nil, err
	}

	var obj Object
	if data := envelope.objectData(); len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("decoding created object: %w", err)
		}
	}

	c.logger.Info("created note store object",
		zap.String("id", obj.ID),
		zap.String("name", name),
	)

	return &CreatedObject{
		ObjectID: obj.ID,
		SpaceID:  c.spaceID,
		Name:     name,
	}, nil
}

// CreateVoiceNote creates a note holding an AI summary plus the full
// transcription, titled with the sender and timestamp.
func (c *Client) CreateVoiceNote(ctx context.Context, summary, fullText string, timestamp time.Time, username string) (*CreatedObject, error) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	userPart := "Unknown"
	if username != "" {
		userPart = "@" + username
	}

	titlePreview := strings.SplitN(summary, "\n", 2)[0]
	if len(titlePreview) > 40 {
		titlePreview = titlePreview[:40] + "..."
	}

	title := fmt.Sprintf("🎤 [%s] %s - %s", userPart, timestamp.Format("2006-01-02 15:04"), titlePreview)

	quoted := strings.ReplaceAll(fullText, "\n", "\n> ")
	body := fmt.Sprintf("## Summary\n\n%s\n\n---\n\n## Full Transcription\n\n> %s\n", summary, quoted)

	return c.CreateObject(ctx, title, body, NoteTypeKey, "🎤")
}
