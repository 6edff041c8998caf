// Package publish delivers verified stories to their outputs.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

// Sink receives each verified story once. audioRef is an opaque reference
// to synthesized audio and may be empty.
type Sink interface {
	Publish(ctx context.Context, story model.PublishedStory, audioRef string) error
}

// LogSink logs published stories
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a sink that only logs
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logging.Or(logger)}
}

// Publish logs the story
func (s *LogSink) Publish(ctx context.Context, story model.PublishedStory, audioRef string) error {
	s.logger.Info("published", "fact", logging.Short(story.Fact, 50), "sources", story.SourceLine(), "hash", story.Hash)
	return nil
}

// FileSink writes the latest story to current.txt and its attribution to
// source.txt, for display loops that poll the directory
type FileSink struct {
	dir string
}

// NewFileSink creates the output directory if needed
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create publish dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Publish replaces current.txt and source.txt
func (s *FileSink) Publish(ctx context.Context, story model.PublishedStory, audioRef string) error {
	if err := replaceFile(filepath.Join(s.dir, "current.txt"), story.Fact); err != nil {
		return fmt.Errorf("write current story: %w", err)
	}
	if err := replaceFile(filepath.Join(s.dir, "source.txt"), story.SourceLine()); err != nil {
		return fmt.Errorf("write attribution: %w", err)
	}
	return nil
}

// Multi fans a story out to several sinks, returning every failure joined
type Multi []Sink

// Publish delivers to each sink in order
func (m Multi) Publish(ctx context.Context, story model.PublishedStory, audioRef string) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, story, audioRef); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func replaceFile(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
