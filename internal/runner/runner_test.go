package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/corroborate/internal/metrics"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/registry"
	"github.com/ppiankov/corroborate/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeScraper struct {
	headlines []model.Headline
	calls     int
}

func (f *fakeScraper) ScrapeAll(ctx context.Context, sources []model.SourceRecord) []model.Headline {
	f.calls++
	return f.headlines
}

// fakeOracle maps headline text to a candidate and treats facts sharing the
// word "park" as the same event
type fakeOracle struct {
	facts    map[string]string
	err      error
	extracts int
}

func (f *fakeOracle) Extract(ctx context.Context, headline string) (model.CandidateFact, error) {
	f.extracts++
	if f.err != nil {
		return model.SkipCandidate(), f.err
	}
	fact, ok := f.facts[headline]
	if !ok {
		return model.SkipCandidate(), nil
	}
	return model.CandidateFact{Fact: fact, Confidence: 95, Newsworthy: true, ThresholdMet: "$1M+ cost/investment"}, nil
}

func samePark(a, b string) bool {
	return strings.Contains(strings.ToLower(a), "park") && strings.Contains(strings.ToLower(b), "park")
}

func (f *fakeOracle) GroupMatch(ctx context.Context, fact string, candidates []string) ([]int, error) {
	var out []int
	for i, c := range candidates {
		if samePark(fact, c) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeOracle) SameEventAny(ctx context.Context, fact string, candidates []string) (bool, error) {
	for _, c := range candidates {
		if samePark(fact, c) {
			return true, nil
		}
	}
	return false, nil
}

type recordingSink struct {
	stories []model.PublishedStory
}

func (s *recordingSink) Publish(ctx context.Context, story model.PublishedStory, audioRef string) error {
	s.stories = append(s.stories, story)
	return nil
}

type recordingAlerter struct {
	messages []string
}

func (a *recordingAlerter) Alert(ctx context.Context, message string) error {
	a.messages = append(a.messages, message)
	return nil
}

type fixture struct {
	runner    *Runner
	store     store.Store
	scraper   *fakeScraper
	oracle    *fakeOracle
	published *recordingSink
	alerts    *recordingAlerter
	metrics   *metrics.Metrics
	dir       string
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	dir := t.TempDir()
	if st == nil {
		fs, err := store.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "archive"), nil)
		require.NoError(t, err)
		st = fs
	}

	sources, err := registry.New([]model.SourceRecord{
		{ID: "a", Name: "Acme Daily", Owner: "Acme", Ratings: model.Ratings{Accuracy: 8}},
		{ID: "b", Name: "Acme TV", Owner: "Acme", Ratings: model.Ratings{Accuracy: 7}},
		{ID: "c", Name: "Civic Wire", Owner: "Civic", Ratings: model.Ratings{Accuracy: 9}},
	}, 2)
	require.NoError(t, err)

	f := &fixture{
		store:     st,
		scraper:   &fakeScraper{},
		oracle:    &fakeOracle{facts: map[string]string{}},
		published: &recordingSink{},
		alerts:    &recordingAlerter{},
		metrics:   metrics.New(),
		dir:       dir,
	}
	f.runner = New(Options{
		MinConfidence:    85,
		OverlapThreshold: 0.15,
		QueueTimeout:     3 * time.Hour,
		Interval:         time.Minute,
		ErrorCooldown:    time.Second,
		KillSwitch:       filepath.Join(dir, "stop"),
	}, Deps{
		Store:     st,
		Sources:   sources,
		Scraper:   f.scraper,
		Oracle:    f.oracle,
		Publisher: f.published,
		Alerter:   f.alerts,
		Metrics:   f.metrics,
	})
	f.runner.now = func() time.Time { return t0 }
	return f
}

func (f *fixture) headline(src, name, text, fact string) {
	f.scraper.headlines = append(f.scraper.headlines, model.Headline{
		Text: text, SourceID: src, SourceName: name, SourceRating: 8, Timestamp: t0,
	})
	if fact != "" {
		f.oracle.facts[text] = fact
	}
}

func TestRunCycle_PublishesCorroboratedStory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.headline("a", "Acme Daily", "Council OKs $2M park makeover in stunning vote", "City council approves $2 million park renovation")
	f.headline("c", "Civic Wire", "City council votes to renovate downtown park for $2M", "Council approves $2 million renovation of city park")

	stats, err := f.runner.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Headlines)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, 0, stats.QueueSize)

	require.Len(t, f.published.stories, 1)
	story := f.published.stories[0]
	assert.Equal(t, "Council approves $2 million renovation of city park", story.Fact)
	assert.Equal(t, "Civic Wire - 8 | Acme Daily - 8", story.SourceLine())
	assert.Equal(t, "Acme", story.Sources[1].Owner, "queued source keeps its owner")

	shown, err := f.store.ShownHashes(ctx, model.Day(t0))
	require.NoError(t, err)
	assert.Contains(t, shown, story.Hash)

	queue, err := f.store.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Decisions.WithLabelValues("published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Decisions.WithLabelValues("queued")))
}

func TestRunCycle_SkipsProcessedHeadlines(t *testing.T) {
	f := newFixture(t, nil)
	f.headline("a", "Acme Daily", "Council OKs $2M park makeover in stunning vote", "City council approves $2 million park renovation")

	_, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.oracle.extracts)

	stats, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Cached)
	assert.Equal(t, 1, f.oracle.extracts, "processed headline must not reach the oracle again")
	assert.Equal(t, 1, stats.QueueSize)
}

func TestRunCycle_RelatedSourcesDoNotCorroborate(t *testing.T) {
	f := newFixture(t, nil)
	f.headline("a", "Acme Daily", "Council OKs $2M park makeover in stunning vote", "City council approves $2 million park renovation")
	f.headline("b", "Acme TV", "Park renovation worth $2M approved by council", "Council approves $2 million renovation of city park")

	stats, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Published)
	assert.Equal(t, 2, stats.Queued)
	assert.Empty(t, f.published.stories)
}

func TestRunCycle_RepublishedEventIsDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.headline("a", "Acme Daily", "Council OKs $2M park makeover in stunning vote", "City council approves $2 million park renovation")
	f.headline("c", "Civic Wire", "City council votes to renovate downtown park for $2M", "Council approves $2 million renovation of city park")
	_, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)

	f.scraper.headlines = nil
	f.headline("b", "Acme TV", "Downtown park gets $2M facelift, council decides", "City council approves park renovation costing $2 million")

	stats, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Len(t, f.published.stories, 1)
}

func TestRunCycle_RejectsAndExtractErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.headline("a", "Acme Daily", "Ten reasons you will love this summer", "")

	stats, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)

	f.scraper.headlines = nil
	f.headline("c", "Civic Wire", "Bridge closes after inspection finds cracks", "Bridge closes after inspection")
	f.oracle.err = errors.New("connection refused")

	stats, err = f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ExtractErrors)

	processed, err := f.store.ProcessedHeadlines(context.Background(), model.Day(t0))
	require.NoError(t, err)
	assert.Contains(t, processed, model.StoryHash("Bridge closes after inspection finds cracks"))
}

func TestRunCycle_ExpiresAndDropsUnknownSources(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.SaveQueue(ctx, []model.QueueItem{
		{ID: "old", Fact: "Stale fact", SourceID: "a", Timestamp: t0.Add(-3 * time.Hour)},
		{ID: "gone", Fact: "Fact from removed source", SourceID: "zzz", Timestamp: t0},
		{ID: "fresh", Fact: "Fresh fact", SourceID: "c", Timestamp: t0.Add(-time.Hour)},
	}))

	stats, err := f.runner.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Expired)

	queue, err := f.store.LoadQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "fresh", queue[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueueSize))
}

func TestRunCycle_ArchivesPreviousDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	yesterday := model.Day(t0.Add(-24 * time.Hour))
	require.NoError(t, f.store.RecordStory(ctx, yesterday, model.PublishedStory{
		Fact:      "Bridge reopens after repairs",
		Sources:   []model.Headline{{SourceID: "a", SourceName: "Acme Daily", SourceRating: 8}, {SourceID: "c", SourceName: "Civic Wire", SourceRating: 9}},
		Timestamp: t0.Add(-20 * time.Hour),
		Hash:      model.StoryHash("Bridge reopens after repairs"),
	}))

	stats, err := f.runner.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Archived, 1)
	assert.FileExists(t, stats.Archived[0])

	days, err := f.store.PendingArchiveDays(ctx, model.Day(t0))
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestRunCycle_KillSwitch(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "stop"), nil, 0o644))

	_, err := f.runner.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrKillSwitch)
	assert.Zero(t, f.scraper.calls)

	assert.NoError(t, f.runner.Run(context.Background()))
}

// brokenStore fails every queue load
type brokenStore struct {
	store.Store
}

func (brokenStore) LoadQueue(ctx context.Context) ([]model.QueueItem, error) {
	return nil, errors.New("disk on fire")
}

// fullDiskStore fails every story write
type fullDiskStore struct {
	store.Store
}

func (fullDiskStore) RecordStory(ctx context.Context, day string, story model.PublishedStory) error {
	return errors.New("disk full")
}

func TestRunCycle_FailedStoryWriteKeepsQueuedEvent(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "archive"), nil)
	require.NoError(t, err)
	f := newFixture(t, fullDiskStore{fs})
	ctx := context.Background()

	f.headline("a", "Acme Daily", "Council OKs $2M park makeover in stunning vote", "City council approves $2 million park renovation")
	stats, err := f.runner.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.QueueSize)

	f.scraper.headlines = nil
	f.headline("c", "Civic Wire", "City council votes to renovate downtown park for $2M", "Council approves $2 million renovation of city park")
	stats, err = f.runner.RunCycle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, stats.Published)
	assert.Equal(t, 1, stats.QueueSize)
	assert.Empty(t, f.published.stories)

	queue, err := fs.LoadQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "City council approves $2 million park renovation", queue[0].Fact)

	shown, err := fs.ShownHashes(ctx, model.Day(t0))
	require.NoError(t, err)
	assert.Empty(t, shown)
}

func TestRun_AlertsAndCoolsDownOnFailure(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(filepath.Join(dir, "data"), filepath.Join(dir, "archive"), nil)
	require.NoError(t, err)
	f := newFixture(t, brokenStore{fs})

	ctx, cancel := context.WithCancel(context.Background())
	var slept []time.Duration
	f.runner.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		cancel()
		return ctx.Err()
	}

	require.NoError(t, f.runner.Run(ctx))

	require.Len(t, f.alerts.messages, 1)
	assert.Contains(t, f.alerts.messages[0], "disk on fire")
	assert.Equal(t, []time.Duration{time.Second}, slept)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles.WithLabelValues("error")))
}

func TestRun_SleepsIntervalBetweenCycles(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var slept []time.Duration
	f.runner.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, f.runner.Run(ctx))
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, slept)
	assert.Equal(t, 2, f.scraper.calls)
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sleepCtx(ctx, time.Hour))
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
