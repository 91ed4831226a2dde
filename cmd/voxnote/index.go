package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voxnote/internal/retrieval"
)

var (
	searchLimit         int
	searchMinSimilarity float32
	clearConfirmed      bool
)

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "maximum results")
	searchCmd.Flags().Float32Var(&searchMinSimilarity, "min-similarity", 0, "similarity floor in [0,1]")
	clearCmd.Flags().BoolVar(&clearConfirmed, "yes", false, "confirm dropping the index")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the search index from the note store",
	Long: `Rebuild the search index by listing every note in the note store and
re-embedding it. Safe to re-run; existing entries are replaced in place.`,
	RunE: runSync,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed notes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search index statistics",
	RunE:  runStats,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the search index",
	Long: `Drop every entry from the search index. The notes themselves stay in the
note store; run sync to rebuild the index. Requires --yes.`,
	RunE: runClear,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, cleanup, err := newRetrievalService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	notes, err := newNoteStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating note store client: %w", err)
	}

	stats, err := retrieval.NewSyncer(notes, svc, logger.Named("sync")).SyncAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Synced:  %d\nSkipped: %d\nErrors:  %d\n", stats.Synced, stats.Skipped, stats.Errors)
	if stats.Errors > 0 {
		os.Exit(1)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, cleanup, err := newRetrievalService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	query := ""
	for i, a := range args {
		if i > 0 {
			query += " "
		}
		query += a
	}

	results := svc.Search(cmd.Context(), query, searchLimit, searchMinSimilarity)
	if len(results) == 0 {
		fmt.Println("No matching notes.")
		return nil
	}

	for i, r := range results {
		title := r.Metadata["title"]
		if title == "" {
			title = r.ID
		}
		fmt.Printf("%d. %s (similarity %.2f)\n", i+1, title, r.Similarity)
		fmt.Printf("   %s\n\n", firstLine(r.Text))
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, cleanup, err := newRetrievalService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	stats := svc.Stats(cmd.Context())
	fmt.Printf("Notes:   %d\nModel:   %s\nStorage: %s\n", stats.TotalNotes, stats.Model, stats.StoragePath)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearConfirmed {
		return fmt.Errorf("refusing to drop the index without --yes")
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, cleanup, err := newRetrievalService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.ClearAll(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Search index cleared. Run `voxnote sync` to rebuild it.")
	return nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
