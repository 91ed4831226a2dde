// Package audio converts downloaded voice messages into the WAV format the
// transcription backends expect, by shelling out to ffmpeg.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrConversionFailed indicates ffmpeg could not convert the input.
var ErrConversionFailed = errors.New("audio conversion failed")

// whisper.cpp wants 16 kHz mono PCM.
const (
	sampleRate = 16000
	channels   = 1
)

// Converter converts compressed voice audio to WAV via ffmpeg.
type Converter struct {
	// FFmpegPath is the ffmpeg executable. Default: ffmpeg via PATH.
	FFmpegPath string

	logger *zap.Logger
}

// NewConverter creates a converter using the given ffmpeg binary.
func NewConverter(ffmpegPath string, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{
		FFmpegPath: ffmpegPath,
		logger:     logger,
	}
}

// ToWAV converts the audio file at inputPath to a 16 kHz mono WAV next to it
// and returns the WAV path. The input format is whatever ffmpeg can decode;
// voice messages arrive as OGG/Opus.
func (c *Converter) ToWAV(ctx context.Context, inputPath string) (string, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", fmt.Errorf("input file: %w", err)
	}

	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".wav"

	cmd := exec.CommandContext(ctx, c.FFmpegPath,
		"-y",
		"-i", inputPath,
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-c:a", "pcm_s16le",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		c.logger.Error("ffmpeg failed",
			zap.String("input", filepath.Base(inputPath)),
			zap.String("stderr", lastLines(stderr.String(), 3)),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	c.logger.Debug("converted audio",
		zap.String("input", filepath.Base(inputPath)),
		zap.String("output", filepath.Base(outputPath)),
		zap.Duration("took", time.Since(start)),
	)
	return outputPath, nil
}

// lastLines keeps the tail of ffmpeg's stderr, which is where the actual
// error lives.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
