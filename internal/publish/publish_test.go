package publish

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func story(fact string, at time.Time) model.PublishedStory {
	return model.PublishedStory{
		Fact: fact,
		Sources: []model.Headline{
			{SourceName: "Civic Wire", SourceRating: 9},
			{SourceName: "Acme Daily", SourceRating: 8.5},
		},
		Timestamp: at,
		Hash:      model.StoryHash(fact),
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), story("Council approves park renovation", time.Now()), ""))
	require.NoError(t, sink.Publish(context.Background(), story("Bridge closes for repairs", time.Now()), ""))

	current, err := os.ReadFile(filepath.Join(dir, "current.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Bridge closes for repairs", string(current))

	source, err := os.ReadFile(filepath.Join(dir, "source.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Civic Wire - 9 | Acme Daily - 8.5", string(source))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logging.New(model.LogConfig{Level: "info"}, &buf))

	require.NoError(t, sink.Publish(context.Background(), story("Senate passes bill", time.Now()), ""))
	assert.Contains(t, buf.String(), "published")
	assert.Contains(t, buf.String(), "Civic Wire - 9")
}

type failingSink struct{ calls int }

func (f *failingSink) Publish(ctx context.Context, s model.PublishedStory, audioRef string) error {
	f.calls++
	return errors.New("disk full")
}

func TestMulti_DeliversToAll(t *testing.T) {
	dir := t.TempDir()
	files, err := NewFileSink(dir)
	require.NoError(t, err)
	bad := &failingSink{}

	err = Multi{bad, files}.Publish(context.Background(), story("Quake hits coast", time.Now()), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, bad.calls)

	_, statErr := os.Stat(filepath.Join(dir, "current.txt"))
	assert.NoError(t, statErr, "later sinks still run after a failure")
}
