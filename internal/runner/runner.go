// Package runner drives the polling loop: each cycle archives finished days,
// scrapes headlines, runs them through the verification pipeline and
// persists the result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/alert"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/metrics"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/publish"
	"github.com/ppiankov/corroborate/internal/registry"
	"github.com/ppiankov/corroborate/internal/store"
	"github.com/ppiankov/corroborate/internal/verify"
)

// ErrKillSwitch is returned when the stop file exists at a cycle boundary
var ErrKillSwitch = errors.New("kill switch engaged")

// Scraper collects the current headlines of every source
type Scraper interface {
	ScrapeAll(ctx context.Context, sources []model.SourceRecord) []model.Headline
}

// Oracle extracts facts and answers the pipeline's semantic questions
type Oracle interface {
	Extract(ctx context.Context, headline string) (model.CandidateFact, error)
	verify.SemanticOracle
}

// Options tunes the loop
type Options struct {
	MinConfidence    int
	OverlapThreshold float64
	QueueTimeout     time.Duration
	Interval         time.Duration
	ErrorCooldown    time.Duration
	KillSwitch       string // path; empty disables
}

// OptionsFromConfig maps configuration onto runner options
func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		MinConfidence:    cfg.Thresholds.MinConfidence,
		OverlapThreshold: cfg.Thresholds.Overlap,
		QueueTimeout:     cfg.Thresholds.QueueTimeout(),
		Interval:         cfg.Timing.ScrapeInterval(),
		ErrorCooldown:    cfg.Timing.ErrorCooldown,
		KillSwitch:       cfg.KillSwitch,
	}
}

// Deps are the collaborators of a runner. Publisher, Alerter and Metrics
// may be nil.
type Deps struct {
	Store     store.Store
	Sources   *registry.Registry
	Scraper   Scraper
	Oracle    Oracle
	Publisher publish.Sink
	Alerter   alert.Sink
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// CycleStats summarises one cycle
type CycleStats struct {
	Archived      []string
	Expired       int
	Headlines     int
	Cached        int
	Rejected      int
	ExtractErrors int
	Duplicates    int
	Queued        int
	Published     int
	QueueSize     int
}

// Runner executes cycles
type Runner struct {
	opts Options
	deps Deps

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *log.Logger
}

// New creates a runner
func New(opts Options, deps Deps) *Runner {
	if deps.Publisher == nil {
		deps.Publisher = publish.NewLogSink(deps.Logger)
	}
	if deps.Alerter == nil {
		deps.Alerter = alert.NewLogSink(deps.Logger)
	}
	return &Runner{
		opts:   opts,
		deps:   deps,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
		logger: logging.Or(deps.Logger),
	}
}

// Run executes cycles until the kill switch appears or ctx is cancelled. A
// failed cycle raises an alert and waits ErrorCooldown before the next one.
func (r *Runner) Run(ctx context.Context) error {
	for {
		stats, err := r.RunCycle(ctx)
		switch {
		case errors.Is(err, ErrKillSwitch):
			r.logger.Warn("kill switch active, stopping", "path", r.opts.KillSwitch)
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			r.logger.Error("cycle failed", "err", err)
			r.countCycle("error")
			if aerr := r.deps.Alerter.Alert(ctx, fmt.Sprintf("cycle failed: %v", err)); aerr != nil {
				r.logger.Warn("alert failed", "err", aerr)
			}
			if r.sleep(ctx, r.opts.ErrorCooldown) != nil {
				return nil
			}
			continue
		}

		r.countCycle("ok")
		r.logger.Info("cycle complete",
			"published", stats.Published,
			"queued", stats.Queued,
			"queue", stats.QueueSize,
			"cached", stats.Cached,
		)

		r.logger.Info("sleeping", "interval", r.opts.Interval)
		if r.sleep(ctx, r.opts.Interval) != nil {
			return nil
		}
	}
}

// RunCycle runs one complete cycle
func (r *Runner) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	start := time.Now()
	defer func() {
		if m := r.deps.Metrics; m != nil {
			m.CycleTime.Observe(time.Since(start).Seconds())
		}
	}()

	if r.killSwitchEngaged() {
		return stats, ErrKillSwitch
	}

	now := r.now()
	day := model.Day(now)
	st := r.deps.Store

	archived, err := r.ArchivePending(ctx, day)
	stats.Archived = archived
	if err != nil {
		return stats, err
	}

	items, err := st.LoadQueue(ctx)
	if err != nil {
		return stats, fmt.Errorf("load queue: %w", err)
	}
	queue := verify.NewQueue(r.knownSources(items), r.opts.QueueTimeout, r.logger)
	stats.Expired = len(queue.Expire(now))
	if m := r.deps.Metrics; m != nil {
		m.Expired.Add(float64(stats.Expired))
	}

	shown, err := st.ShownHashes(ctx, day)
	if err != nil {
		return stats, fmt.Errorf("load shown hashes: %w", err)
	}
	published, err := st.PublishedStories(ctx, day)
	if err != nil {
		return stats, fmt.Errorf("load published stories: %w", err)
	}
	processed, err := st.ProcessedHeadlines(ctx, day)
	if err != nil {
		return stats, fmt.Errorf("load processed headlines: %w", err)
	}

	pipeline := verify.NewPipeline(verify.Options{
		MinConfidence:    r.opts.MinConfidence,
		OverlapThreshold: r.opts.OverlapThreshold,
	}, verify.NewState(day, queue, shown, published), r.deps.Oracle, r.deps.Sources, r.logger)
	pipeline.SetClock(r.now)

	headlines := r.deps.Scraper.ScrapeAll(ctx, r.deps.Sources.Sources())
	stats.Headlines = len(headlines)
	r.logger.Info("scraped headlines", "count", len(headlines), "sources", r.deps.Sources.Len())

	cycleErr := r.processHeadlines(ctx, day, headlines, processed, pipeline, &stats)

	stats.QueueSize = queue.Len()
	if err := st.SaveQueue(ctx, queue.Items()); err != nil {
		return stats, errors.Join(cycleErr, fmt.Errorf("save queue: %w", err))
	}
	if m := r.deps.Metrics; m != nil {
		m.QueueSize.Set(float64(stats.QueueSize))
	}
	return stats, cycleErr
}

func (r *Runner) processHeadlines(ctx context.Context, day string, headlines []model.Headline, processed map[string]struct{}, p *verify.Pipeline, stats *CycleStats) error {
	st := r.deps.Store
	for _, h := range headlines {
		if ctx.Err() != nil {
			return nil
		}

		hash := model.StoryHash(h.Text)
		if _, ok := processed[hash]; ok {
			stats.Cached++
			r.countHeadline("cached")
			continue
		}
		// marked before extraction: a failing headline is not retried today
		if err := st.MarkProcessed(ctx, day, hash); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		processed[hash] = struct{}{}

		candidate, err := r.deps.Oracle.Extract(ctx, h.Text)
		if err != nil {
			stats.ExtractErrors++
			r.countHeadline("extract_error")
			r.logger.Warn("extraction failed", "source", h.SourceID, "headline", logging.Short(h.Text, 40), "err", err)
			continue
		}

		if ok, reason := p.Admit(candidate); !ok {
			stats.Rejected++
			r.countHeadline("rejected")
			r.logger.Debug("rejected", "reason", reason, "headline", logging.Short(h.Text, 40))
			continue
		}
		r.countHeadline("admitted")

		decision := p.Process(ctx, h, candidate)
		r.countDecision(decision.Outcome)

		switch decision.Outcome {
		case verify.OutcomeDuplicate:
			stats.Duplicates++
		case verify.OutcomeQueued:
			stats.Queued++
		case verify.OutcomePublished:
			story := *decision.Story
			if err := st.RecordStory(ctx, day, story); err != nil {
				p.Rollback(decision)
				return fmt.Errorf("record story: %w", err)
			}
			stats.Published++
			// persisted before side effects
			if err := st.SaveQueue(ctx, p.State().Queue.Items()); err != nil {
				return fmt.Errorf("save queue: %w", err)
			}
			if err := r.deps.Publisher.Publish(ctx, story, story.Audio); err != nil {
				r.logger.Warn("publish sink failed", "hash", story.Hash, "err", err)
			}
		}
	}
	return nil
}

// ArchivePending archives every finished day that still has live state
func (r *Runner) ArchivePending(ctx context.Context, today string) ([]string, error) {
	days, err := r.deps.Store.PendingArchiveDays(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list archivable days: %w", err)
	}

	var archived []string
	for _, day := range days {
		path, err := r.deps.Store.Archive(ctx, day)
		if err != nil {
			return archived, fmt.Errorf("archive %s: %w", day, err)
		}
		if path == "" {
			r.logger.Info("no daily log to archive", "day", day)
			continue
		}
		r.logger.Info("archived daily log", "day", day, "path", path)
		archived = append(archived, path)
	}
	return archived, nil
}

// knownSources drops queue items whose source left the registry
func (r *Runner) knownSources(items []model.QueueItem) []model.QueueItem {
	out := items[:0:0]
	for _, it := range items {
		if _, ok := r.deps.Sources.Get(it.SourceID); !ok {
			r.logger.Warn("dropping queue item from unknown source", "source", it.SourceID, "fact", logging.Short(it.Fact, 40))
			continue
		}
		out = append(out, it)
	}
	return out
}

func (r *Runner) killSwitchEngaged() bool {
	if r.opts.KillSwitch == "" {
		return false
	}
	_, err := os.Stat(r.opts.KillSwitch)
	return err == nil
}

func (r *Runner) countCycle(result string) {
	if m := r.deps.Metrics; m != nil {
		m.Cycles.WithLabelValues(result).Inc()
	}
}

func (r *Runner) countHeadline(disposition string) {
	if m := r.deps.Metrics; m != nil {
		m.Headlines.WithLabelValues(disposition).Inc()
	}
}

func (r *Runner) countDecision(o verify.Outcome) {
	if m := r.deps.Metrics; m != nil {
		m.Decisions.WithLabelValues(o.String()).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
