package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnote/internal/notestore"
)

// syncListLimit bounds how many notes one sync run will pull from the store.
const syncListLimit = 1000

// NoteSource lists and fetches notes for synchronization.
type NoteSource interface {
	SearchObjects(ctx context.Context, query string, types []string, limit int) ([]notestore.Object, error)
	GetObject(ctx context.Context, id string) (*notestore.Object, error)
}

// SyncStats summarizes one sync run.
type SyncStats struct {
	// Synced counts notes embedded and upserted this run.
	Synced int

	// Skipped counts notes below the indexing length threshold.
	Skipped int

	// Errors counts notes that failed to fetch, embed, or store.
	Errors int
}

// Syncer rebuilds the vector index from the note store.
//
// Each run re-embeds every note it lists; the delete-then-insert upsert in the
// store keeps the run idempotent. A failure on one note never aborts the run.
type Syncer struct {
	source  NoteSource
	service *Service
	logger  *zap.Logger
}

// NewSyncer creates a Syncer over the given note source and retrieval service.
func NewSyncer(source NoteSource, service *Service, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		source:  source,
		service: service,
		logger:  logger,
	}
}

// SyncAll lists every note in the store and indexes each one.
func (s *Syncer) SyncAll(ctx context.Context) (SyncStats, error) {
	objects, err := s.source.SearchObjects(ctx, "", []string{notestore.NoteTypeKey}, syncListLimit)
	if err != nil {
		s.logger.Error("listing notes for sync failed", zap.Error(err))
		return SyncStats{}, err
	}

	s.logger.Info("sync started", zap.Int("notes", len(objects)))

	var stats SyncStats
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		full, err := s.source.GetObject(ctx, obj.ID)
		if err != nil {
			s.logger.Warn("fetching note failed",
				zap.String("id", obj.ID),
				zap.Error(err),
			)
			stats.Errors++
			continue
		}

		text := full.Name
		if full.Body != "" {
			text = full.Name + "\n\n" + full.Body
		}

		outcome := s.service.AddNote(ctx, obj.ID, text, map[string]any{
			"source":     "anytype",
			"anytype_id": obj.ID,
			"title":      full.Name,
			"created":    full.CreatedDate,
		})

		switch {
		case outcome.Indexed:
			stats.Synced++
		case outcome.Reason == ReasonTooShort:
			stats.Skipped++
		default:
			stats.Errors++
		}
	}

	s.logger.Info("sync complete",
		zap.Int("synced", stats.Synced),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}
