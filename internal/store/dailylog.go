package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/ppiankov/corroborate/internal/model"
)

// LogHeader is written once at the top of each daily log
func LogHeader(day string) string {
	return fmt.Sprintf("# Corroborate Daily Log\n# Date: %s\n# Generated: UTC\n\n", day)
}

// LogLine renders one published story as timestamp|names|ratings|fact
func LogLine(story model.PublishedStory) string {
	names := make([]string, 0, len(story.Sources))
	ratings := make([]string, 0, len(story.Sources))
	for _, s := range story.Sources {
		names = append(names, s.SourceName)
		ratings = append(ratings, model.FormatRating(s.SourceRating))
	}
	return fmt.Sprintf("%s|%s|%s|%s\n",
		story.Timestamp.UTC().Format(time.RFC3339),
		strings.Join(names, ","),
		strings.Join(ratings, ","),
		story.Fact,
	)
}

// ArchivePath is where a day's compressed log lives: <dir>/<year>/<day>.txt.gz
func ArchivePath(dir, day string) string {
	year := day
	if len(day) >= 4 {
		year = day[:4]
	}
	return filepath.Join(dir, year, day+".txt.gz")
}

// writeArchive gzips r into the archive path for day via a temp file
func writeArchive(dir, day string, r io.Reader) (string, error) {
	path := ArchivePath(dir, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+day+"-*")
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	zw, err := gzip.NewWriterLevel(tmp, gzip.BestCompression)
	if err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("create gzip writer: %w", err)
	}
	zw.Name = day + ".txt"

	if _, err := io.Copy(zw, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("compress log: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move archive into place: %w", err)
	}
	return path, nil
}

// ReadArchive decompresses an archived daily log
func ReadArchive(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	b, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("read archive: %w", err)
	}
	return string(b), nil
}
