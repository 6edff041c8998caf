package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

const (
	queueFile   = "queue.json"
	storiesFile = "stories.json"
	shownPrefix = "shown_"
	procPrefix  = "processed_"
	logSuffix   = ".txt"
)

// FileStore keeps state as plain files in a data directory:
//
//	queue.json             pending queue
//	stories.json           {"date": DAY, "stories": [...]} for the current day
//	shown_DAY.txt          one story hash per line
//	processed_DAY.txt      one headline hash per line
//	DAY.txt                daily log
type FileStore struct {
	dataDir    string
	archiveDir string
	mu         sync.Mutex
	logger     *log.Logger
}

type storiesDoc struct {
	Date    string        `json:"date"`
	Stories []storedStory `json:"stories"`
}

// storedStory adds the rendered attribution line readers of stories.json expect
type storedStory struct {
	model.PublishedStory
	Source string `json:"source"`
}

// NewFileStore creates the data directory if needed
func NewFileStore(dataDir, archiveDir string, logger *log.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dataDir: dataDir, archiveDir: archiveDir, logger: logging.Or(logger)}, nil
}

// LoadQueue reads queue.json
func (s *FileStore) LoadQueue(ctx context.Context) ([]model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(queueFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("queue unreadable, starting empty", "err", err)
		return nil, nil
	}

	var items []model.QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("queue corrupt, starting empty", "err", err)
		return nil, nil
	}
	return cleanQueue(items, s.logger), nil
}

// SaveQueue replaces queue.json
func (s *FileStore) SaveQueue(ctx context.Context, items []model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if items == nil {
		items = []model.QueueItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	if err := writeFileAtomic(s.path(queueFile), data); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}

// ShownHashes reads shown_DAY.txt
func (s *FileStore) ShownHashes(ctx context.Context, day string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSet(shownPrefix + day + logSuffix), nil
}

// PublishedStories reads stories.json when it belongs to day
func (s *FileStore) PublishedStories(ctx context.Context, day string) ([]model.PublishedStory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readStories()
	if doc.Date != day {
		return nil, nil
	}
	out := make([]model.PublishedStory, 0, len(doc.Stories))
	for _, st := range doc.Stories {
		if strings.TrimSpace(st.Fact) == "" {
			continue
		}
		if st.Hash == "" {
			st.Hash = model.StoryHash(st.Fact)
		}
		out = append(out, st.PublishedStory)
	}
	return out, nil
}

// RecordStory appends to shown_DAY.txt, DAY.txt and stories.json
func (s *FileStore) RecordStory(ctx context.Context, day string, story model.PublishedStory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendLine(s.path(shownPrefix+day+logSuffix), story.Hash); err != nil {
		return fmt.Errorf("record shown hash: %w", err)
	}

	logPath := s.path(day + logSuffix)
	if _, err := os.Stat(logPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(logPath, []byte(LogHeader(day)), 0o644); err != nil {
			return fmt.Errorf("create daily log: %w", err)
		}
	}
	if err := appendRaw(logPath, LogLine(story)); err != nil {
		return fmt.Errorf("append daily log: %w", err)
	}

	doc := s.readStories()
	if doc.Date != day {
		doc = storiesDoc{Date: day}
	}
	doc.Stories = append(doc.Stories, storedStory{PublishedStory: story, Source: story.SourceLine()})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stories: %w", err)
	}
	if err := writeFileAtomic(s.path(storiesFile), data); err != nil {
		return fmt.Errorf("save stories: %w", err)
	}
	return nil
}

// ProcessedHeadlines reads processed_DAY.txt
func (s *FileStore) ProcessedHeadlines(ctx context.Context, day string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSet(procPrefix + day + logSuffix), nil
}

// MarkProcessed appends to processed_DAY.txt
func (s *FileStore) MarkProcessed(ctx context.Context, day, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendLine(s.path(procPrefix+day+logSuffix), hash); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// PendingArchiveDays scans the data directory for day partitions older than today
func (s *FileStore) PendingArchiveDays(ctx context.Context, today string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	seen := make(map[string]bool)
	var days []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		day, ok := partitionDay(e.Name())
		if !ok || day >= today || seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Strings(days)
	return days, nil
}

// Archive gzips DAY.txt into the archive tree and removes the day's partitions
func (s *FileStore) Archive(ctx context.Context, day string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var archived string
	logPath := s.path(day + logSuffix)
	f, err := os.Open(logPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("no log to archive", "day", day)
	case err != nil:
		return "", fmt.Errorf("open daily log: %w", err)
	default:
		archived, err = writeArchive(s.archiveDir, day, f)
		_ = f.Close()
		if err != nil {
			return "", err
		}
		s.logger.Info("archived", "day", day, "path", archived)
	}

	for _, name := range []string{day + logSuffix, shownPrefix + day + logSuffix, procPrefix + day + logSuffix} {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return archived, fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return archived, nil
}

// Close is a no-op for the file backend
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

func (s *FileStore) readSet(name string) map[string]struct{} {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("partition unreadable, treating as empty", "file", name, "err", err)
		}
		return make(map[string]struct{})
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return hashSet(lines)
}

func (s *FileStore) readStories() storiesDoc {
	data, err := os.ReadFile(s.path(storiesFile))
	if err != nil {
		return storiesDoc{}
	}
	var doc storiesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("stories.json corrupt, treating as empty", "err", err)
		return storiesDoc{}
	}
	return doc
}

// partitionDay extracts DAY from DAY.txt, shown_DAY.txt or processed_DAY.txt
func partitionDay(name string) (string, bool) {
	if !strings.HasSuffix(name, logSuffix) {
		return "", false
	}
	day := strings.TrimSuffix(name, logSuffix)
	day = strings.TrimPrefix(day, shownPrefix)
	day = strings.TrimPrefix(day, procPrefix)
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return "", false
	}
	return day, true
}

func appendLine(path, line string) error {
	return appendRaw(path, line+"\n")
}

func appendRaw(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
