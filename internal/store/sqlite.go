package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps state in a single SQLite database. The daily log is
// rendered from the stories table when the day is archived.
type SQLiteStore struct {
	db         *sql.DB
	archiveDir string
	mu         sync.Mutex
	logger     *log.Logger
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(path, archiveDir string, logger *log.Logger) (*SQLiteStore, error) {
	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db, archiveDir: archiveDir, logger: logging.Or(logger)}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		fact TEXT NOT NULL,
		source_id TEXT NOT NULL,
		source_name TEXT,
		source_rating REAL,
		queued_at TEXT NOT NULL,
		confidence INTEGER
	);

	CREATE TABLE IF NOT EXISTS stories (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		day TEXT NOT NULL,
		hash TEXT NOT NULL,
		fact TEXT NOT NULL,
		sources TEXT NOT NULL,
		published_at TEXT NOT NULL,
		audio TEXT
	);

	CREATE TABLE IF NOT EXISTS shown (
		day TEXT NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (day, hash)
	);

	CREATE TABLE IF NOT EXISTS processed (
		day TEXT NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (day, hash)
	);

	CREATE INDEX IF NOT EXISTS idx_stories_day ON stories(day);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// LoadQueue returns the queue in insertion order
func (s *SQLiteStore) LoadQueue(ctx context.Context) ([]model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fact, source_id, source_name, source_rating, queued_at, confidence
		FROM queue ORDER BY seq`)
	if err != nil {
		s.logger.Warn("queue unreadable, starting empty", "err", err)
		return nil, nil
	}
	defer func() { _ = rows.Close() }()

	var items []model.QueueItem
	for rows.Next() {
		var (
			it       model.QueueItem
			name     sql.NullString
			rating   sql.NullFloat64
			queuedAt string
			conf     sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.Fact, &it.SourceID, &name, &rating, &queuedAt, &conf); err != nil {
			s.logger.Warn("skipping unreadable queue row", "err", err)
			continue
		}
		it.SourceName = name.String
		it.SourceRating = rating.Float64
		it.Confidence = int(conf.Int64)
		it.Timestamp, _ = time.Parse(time.RFC3339Nano, queuedAt)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("queue read interrupted", "err", err)
	}
	return cleanQueue(items, s.logger), nil
}

// SaveQueue replaces the queue table in one transaction
func (s *SQLiteStore) SaveQueue(ctx context.Context, items []model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue`); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO queue (id, fact, source_id, source_name, source_rating, queued_at, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.Fact, it.SourceID, it.SourceName, it.SourceRating,
			it.Timestamp.UTC().Format(time.RFC3339Nano), it.Confidence); err != nil {
			return fmt.Errorf("insert queue item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit queue: %w", err)
	}
	return nil
}

// ShownHashes returns the day's published story hashes
func (s *SQLiteStore) ShownHashes(ctx context.Context, day string) (map[string]struct{}, error) {
	return s.hashes(ctx, `SELECT hash FROM shown WHERE day = ?`, day)
}

// ProcessedHeadlines returns the day's processed headline hashes
func (s *SQLiteStore) ProcessedHeadlines(ctx context.Context, day string) (map[string]struct{}, error) {
	return s.hashes(ctx, `SELECT hash FROM processed WHERE day = ?`, day)
}

func (s *SQLiteStore) hashes(ctx context.Context, query, day string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, day)
	if err != nil {
		s.logger.Warn("hash partition unreadable, treating as empty", "day", day, "err", err)
		return make(map[string]struct{}), nil
	}
	defer func() { _ = rows.Close() }()

	var lines []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err == nil {
			lines = append(lines, h)
		}
	}
	return hashSet(lines), nil
}

// MarkProcessed records a headline hash for the day
func (s *SQLiteStore) MarkProcessed(ctx context.Context, day, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO processed (day, hash) VALUES (?, ?)`, day, hash); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// PublishedStories returns the day's stories, oldest first
func (s *SQLiteStore) PublishedStories(ctx context.Context, day string) ([]model.PublishedStory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stories(ctx, day)
}

func (s *SQLiteStore) stories(ctx context.Context, day string) ([]model.PublishedStory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, fact, sources, published_at, audio
		FROM stories WHERE day = ? ORDER BY seq`, day)
	if err != nil {
		s.logger.Warn("stories unreadable, treating as empty", "day", day, "err", err)
		return nil, nil
	}
	defer func() { _ = rows.Close() }()

	var out []model.PublishedStory
	for rows.Next() {
		var (
			st          model.PublishedStory
			sources     string
			publishedAt string
			audio       sql.NullString
		)
		if err := rows.Scan(&st.Hash, &st.Fact, &sources, &publishedAt, &audio); err != nil {
			s.logger.Warn("skipping unreadable story row", "err", err)
			continue
		}
		if err := json.Unmarshal([]byte(sources), &st.Sources); err != nil {
			s.logger.Warn("story sources corrupt", "hash", st.Hash, "err", err)
		}
		st.Timestamp, _ = time.Parse(time.RFC3339Nano, publishedAt)
		st.Audio = audio.String
		out = append(out, st)
	}
	return out, nil
}

// RecordStory inserts the story and its shown hash in one transaction
func (s *SQLiteStore) RecordStory(ctx context.Context, day string, story model.PublishedStory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := json.Marshal(story.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO shown (day, hash) VALUES (?, ?)`, day, story.Hash); err != nil {
		return fmt.Errorf("record shown hash: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stories (day, hash, fact, sources, published_at, audio)
		VALUES (?, ?, ?, ?, ?, ?)`,
		day, story.Hash, story.Fact, string(sources), story.Timestamp.UTC().Format(time.RFC3339Nano), story.Audio); err != nil {
		return fmt.Errorf("record story: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit story: %w", err)
	}
	return nil
}

// PendingArchiveDays lists days before today with rows in any day table
func (s *SQLiteStore) PendingArchiveDays(ctx context.Context, today string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT day FROM stories WHERE day < ?
		UNION SELECT day FROM shown WHERE day < ?
		UNION SELECT day FROM processed WHERE day < ?
		ORDER BY day`, today, today, today)
	if err != nil {
		return nil, fmt.Errorf("query pending days: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// Archive renders the day's log from its stories, gzips it and deletes the
// day's rows
func (s *SQLiteStore) Archive(ctx context.Context, day string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stories, err := s.stories(ctx, day)
	if err != nil {
		return "", err
	}

	var archived string
	if len(stories) == 0 {
		s.logger.Info("no log to archive", "day", day)
	} else {
		var b strings.Builder
		b.WriteString(LogHeader(day))
		for _, st := range stories {
			b.WriteString(LogLine(st))
		}
		archived, err = writeArchive(s.archiveDir, day, strings.NewReader(b.String()))
		if err != nil {
			return "", err
		}
		s.logger.Info("archived", "day", day, "path", archived)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return archived, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"stories", "shown", "processed"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE day = ?", day); err != nil {
			return archived, fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return archived, fmt.Errorf("commit archive: %w", err)
	}
	return archived, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
