package transcription

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// LocalConfig holds whisper.cpp configuration.
type LocalConfig struct {
	// BinaryPath is the whisper.cpp executable. Default: whisper-cli
	// resolved through PATH.
	BinaryPath string

	// ModelPath is the ggml model file. Required.
	ModelPath string

	// Threads passed to the binary. 0 lets the binary decide.
	Threads int
}

// ApplyDefaults fills in default values.
func (c *LocalConfig) ApplyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = "whisper-cli"
	}
}

// LocalTranscriber runs a whisper.cpp binary against WAV files on disk.
// The binary is invoked with timestamps disabled so stdout is the bare
// transcript. Concurrent transcriptions pass through a semaphore sized to
// GOMAXPROCS so parallel voice messages cannot saturate the host CPU.
type LocalTranscriber struct {
	config   LocalConfig
	language string
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

// NewLocalTranscriber creates a local whisper.cpp transcriber.
func NewLocalTranscriber(cfg LocalConfig, language string, logger *zap.Logger) (*LocalTranscriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path required for local transcription", ErrInvalidConfig)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model file not found: %v", ErrInvalidConfig, err)
	}

	return &LocalTranscriber{
		config:   cfg,
		language: language,
		sem:      semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		logger:   logger,
	}, nil
}

// Transcribe runs whisper.cpp on the WAV file at path.
func (t *LocalTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for transcription slot: %w", err)
	}
	defer t.sem.Release(1)

	args := []string{
		"-m", t.config.ModelPath,
		"-f", path,
		"--no-timestamps",
	}
	if t.language != "" {
		args = append(args, "-l", t.language)
	}
	if t.config.Threads > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", t.config.Threads))
	}

	cmd := exec.CommandContext(ctx, t.config.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		t.logger.Error("whisper run failed",
			zap.String("file", filepath.Base(path)),
			zap.String("stderr", truncateForLog(stderr.Bytes())),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", ErrEmptyTranscript
	}

	t.logger.Info("transcribed audio locally",
		zap.String("file", filepath.Base(path)),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(start)),
	)
	return text, nil
}

var _ Transcriber = (*LocalTranscriber)(nil)
