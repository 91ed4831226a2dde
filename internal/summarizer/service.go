package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const systemPrompt = "You are an assistant that turns raw voice transcriptions into concise, well-structured notes. Preserve every concrete fact, name, number, and date. Never invent content that is not in the transcription."

const summarizePrompt = `Summarize the following voice note transcription into a structured note.

Requirements:
- Start with a one-line gist of what the note is about.
- Follow with bullet points for key facts, decisions, and action items.
- Keep the original language of the transcription.
- Do not add information that is not present.

Transcription:

%s`

const chunkPrompt = `This is part %d of an ongoing recording session%s. Summarize this part on its own in 2-4 sentences, preserving named entities, decisions, and action items. A later step will combine all parts, so do not refer to other parts.

Transcription:

%s`

const combinePrompt = `Below are summaries of consecutive parts of one recording session%s, in order. Merge them into a single coherent structured note.

Requirements:
- Start with a one-line gist of the whole session.
- Merge overlapping points; keep every distinct fact, decision, and action item.
- Preserve chronological order where it matters.
- Keep the original language.

Part summaries:

%s`

// ChunkSummary is the summary of one chunk of a recording session.
type ChunkSummary struct {
	// ChunkNumber orders chunks within a session, starting at 1.
	ChunkNumber int

	// Text is the chunk's summary.
	Text string
}

// Service produces note summaries from transcriptions.
type Service struct {
	client CompletionClient
	logger *zap.Logger
}

// NewService creates a summarizer service.
func NewService(client CompletionClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client: client,
		logger: logger,
	}
}

// Summarize turns one complete transcription into a structured note summary.
func (s *Service) Summarize(ctx context.Context, transcription string) (string, error) {
	transcription = strings.TrimSpace(transcription)
	if transcription == "" {
		return "", fmt.Errorf("%w: empty transcription", ErrInvalidConfig)
	}

	summary, err := s.client.Complete(ctx, systemPrompt, fmt.Sprintf(summarizePrompt, transcription))
	if err != nil {
		return "", fmt.Errorf("summarizing: %w", err)
	}

	s.logger.Info("summarized transcription",
		zap.Int("input_chars", len(transcription)),
		zap.Int("summary_chars", len(summary)),
	)
	return strings.TrimSpace(summary), nil
}

// SummarizeChunk summarizes one chunk of a longer session in isolation.
// Callers reject chunks below their own length threshold before calling;
// this method only rejects blank input.
func (s *Service) SummarizeChunk(ctx context.Context, chunkNumber int, title, transcription string) (ChunkSummary, error) {
	transcription = strings.TrimSpace(transcription)
	if transcription == "" {
		return ChunkSummary{}, fmt.Errorf("%w: empty transcription", ErrInvalidConfig)
	}

	summary, err := s.client.Complete(ctx, systemPrompt, fmt.Sprintf(chunkPrompt, chunkNumber, titleClause(title), transcription))
	if err != nil {
		return ChunkSummary{}, fmt.Errorf("summarizing chunk %d: %w", chunkNumber, err)
	}

	s.logger.Info("summarized chunk",
		zap.Int("chunk", chunkNumber),
		zap.Int("input_chars", len(transcription)),
	)
	return ChunkSummary{
		ChunkNumber: chunkNumber,
		Text:        strings.TrimSpace(summary),
	}, nil
}

// CombineSummaries merges per-chunk summaries into one session note.
// Chunks are sorted by chunk number before combining, so callers may pass
// them in any order. A single chunk is combined too: the model smooths the
// part framing into a standalone note.
func (s *Service) CombineSummaries(ctx context.Context, title string, chunks []ChunkSummary) (string, error) {
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no chunk summaries", ErrInvalidConfig)
	}

	sorted := make([]ChunkSummary, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ChunkNumber < sorted[j].ChunkNumber
	})

	var sb strings.Builder
	for _, c := range sorted {
		fmt.Fprintf(&sb, "Part %d:\n%s\n\n", c.ChunkNumber, c.Text)
	}

	combined, err := s.client.Complete(ctx, systemPrompt, fmt.Sprintf(combinePrompt, titleClause(title), sb.String()))
	if err != nil {
		return "", fmt.Errorf("combining summaries: %w", err)
	}

	s.logger.Info("combined chunk summaries", zap.Int("chunks", len(sorted)))
	return strings.TrimSpace(combined), nil
}

// titleClause renders the optional session title for the prompts.
func titleClause(title string) string {
	if strings.TrimSpace(title) == "" {
		return ""
	}
	return fmt.Sprintf(" titled %q", title)
}
