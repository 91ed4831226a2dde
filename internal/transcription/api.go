package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// defaultAPITimeout bounds one transcription request. Long recordings take a
// while to process server side.
const defaultAPITimeout = 5 * time.Minute

// APIConfig holds remote speech-to-text configuration.
type APIConfig struct {
	// URL is the service base URL.
	URL string

	// Endpoint is the upload path. Default: /v1/audio/transcriptions
	// (OpenAI-compatible). Whisper ASR webservices use /asr.
	Endpoint string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the transcription model, e.g. whisper-1.
	Model string

	// Timeout bounds each request. Default: 5m.
	Timeout time.Duration
}

// ApplyDefaults fills in default values.
func (c *APIConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "/v1/audio/transcriptions"
	}
	if c.Model == "" {
		c.Model = "whisper-1"
	}
	if c.Timeout == 0 {
		c.Timeout = defaultAPITimeout
	}
}

// APITranscriber uploads audio to a remote speech-to-text service.
//
// The service is expected to accept a multipart upload with a "file" field
// and reply with either {"text": "..."} or a plain text body. Both the
// OpenAI transcription API and whisper ASR webservices fit this shape.
type APITranscriber struct {
	config     APIConfig
	language   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPITranscriber creates an API-backed transcriber.
func NewAPITranscriber(cfg APIConfig, language string, logger *zap.Logger) (*APITranscriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: API URL required", ErrInvalidConfig)
	}

	return &APITranscriber{
		config:   cfg,
		language: language,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

// apiTranscriptResponse is the JSON reply shape.
type apiTranscriptResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file and returns the recognized text.
func (t *APITranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening audio file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("reading audio file: %w", err)
	}

	if err := writer.WriteField("model", t.config.Model); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if t.language != "" {
		if err := writer.WriteField("language", t.language); err != nil {
			return "", fmt.Errorf("building upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}

	url := strings.TrimRight(t.config.URL, "/") + t.config.Endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrTranscriptionFailed, resp.StatusCode, truncateForLog(body))
	}

	text := extractText(resp.Header.Get("Content-Type"), body)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	t.logger.Info("transcribed audio via API",
		zap.String("file", filepath.Base(path)),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(start)),
	)
	return text, nil
}

// extractText pulls the transcript out of a JSON or plain-text reply.
func extractText(contentType string, body []byte) string {
	if strings.Contains(contentType, "application/json") {
		var parsed apiTranscriptResponse
		if err := json.Unmarshal(body, &parsed); err == nil {
			return parsed.Text
		}
	}
	return string(body)
}

func truncateForLog(b []byte) string {
	const max = 200
	s := string(b)
	if len(s) > max {
		return s[:max]
	}
	return s
}

var _ Transcriber = (*APITranscriber)(nil)
