// Package store persists the verification state: the pending queue, the
// day's shown hashes and published stories, the processed-headline cache
// and the daily log with its gzip archive.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

// Store is the persistence boundary of the pipeline. Day arguments are UTC
// dates formatted as model.Day.
type Store interface {
	// LoadQueue returns the pending queue; unreadable state yields an empty queue
	LoadQueue(ctx context.Context) ([]model.QueueItem, error)
	SaveQueue(ctx context.Context, items []model.QueueItem) error

	ShownHashes(ctx context.Context, day string) (map[string]struct{}, error)
	PublishedStories(ctx context.Context, day string) ([]model.PublishedStory, error)

	// RecordStory appends a published story to the day's shown hashes,
	// published stories and daily log
	RecordStory(ctx context.Context, day string, story model.PublishedStory) error

	ProcessedHeadlines(ctx context.Context, day string) (map[string]struct{}, error)
	MarkProcessed(ctx context.Context, day, hash string) error

	// PendingArchiveDays lists days before today that still have live partitions
	PendingArchiveDays(ctx context.Context, today string) ([]string, error)

	// Archive compresses the day's log and drops its live partitions. It
	// returns the archive path, or "" when the day had no log.
	Archive(ctx context.Context, day string) (string, error)

	Close() error
}

// Open creates the configured backend
func Open(cfg model.StoreConfig, logger *log.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		return NewFileStore(cfg.DataDir, cfg.ArchiveDir, logger)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "corroborate.db")
		}
		return OpenSQLite(path, cfg.ArchiveDir, logger)
	default:
		return nil, fmt.Errorf("unknown store backend: %s (supported: file, sqlite)", cfg.Backend)
	}
}

// cleanQueue drops records that cannot take part in matching and assigns
// ids to records written before ids existed
func cleanQueue(items []model.QueueItem, logger *log.Logger) []model.QueueItem {
	logger = logging.Or(logger)
	out := make([]model.QueueItem, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Fact) == "" || it.Timestamp.IsZero() {
			logger.Warn("dropping invalid queue record", "source", it.SourceID, "fact", logging.Short(it.Fact, 40))
			continue
		}
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		out = append(out, it)
	}
	return out
}

func hashSet(lines []string) map[string]struct{} {
	set := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			set[l] = struct{}{}
		}
	}
	return set
}
