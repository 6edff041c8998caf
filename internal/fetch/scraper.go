package fetch

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/mmcdole/gofeed"
	"github.com/ppiankov/corroborate/internal/httpx"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/worker"
)

const (
	// MaxItemsPerSource caps headlines taken from one source per cycle
	MaxItemsPerSource = 10
	// MinHeadlineLen drops navigation links and stubs
	MinHeadlineLen = 20

	feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8"
	htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Options configures a Scraper
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	MaxBytes    int64
	RPS         float64
	HTTPProxy   string
	HTTPSProxy  string
	Concurrency int // sources fetched at once
}

// Scraper collects headlines, preferring a source's feed and falling back
// to its HTML front page
type Scraper struct {
	fetcher *Fetcher
	robots  *RobotsChecker
	limiter *Limiter
	pool    *worker.Pool[sourceResult]
	now     func() time.Time
	logger  *log.Logger
}

type sourceResult struct {
	headlines []model.Headline
	err       error
	done      bool
}

// NewScraper creates a scraper
func NewScraper(opts Options, logger *log.Logger) *Scraper {
	f := NewFetcher(opts.Timeout, opts.UserAgent, opts.MaxBytes, httpx.ProxyFunc(opts.HTTPProxy, opts.HTTPSProxy))
	return &Scraper{
		fetcher: f,
		robots:  NewRobotsChecker(f.Client(), opts.UserAgent),
		limiter: NewLimiter(opts.RPS),
		pool:    worker.NewPool[sourceResult](opts.Concurrency),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logging.Or(logger),
	}
}

// ScrapeAll scrapes every source, returning headlines in source order. A
// failing source is logged and contributes no headlines.
func (s *Scraper) ScrapeAll(ctx context.Context, sources []model.SourceRecord) []model.Headline {
	jobs := make([]worker.Job[sourceResult], len(sources))
	for i, src := range sources {
		src := src
		jobs[i] = func(ctx context.Context) sourceResult {
			headlines, err := s.Scrape(ctx, src)
			return sourceResult{headlines: headlines, err: err, done: true}
		}
	}

	var all []model.Headline
	for i, r := range s.pool.Run(ctx, jobs) {
		if !r.done {
			continue
		}
		if r.err != nil {
			s.logger.Warn("failed to fetch source", "source", sources[i].Name, "err", r.err)
			continue
		}
		all = append(all, r.headlines...)
	}
	return all
}

// Scrape fetches one source: feed first, HTML when the feed is missing,
// broken or empty
func (s *Scraper) Scrape(ctx context.Context, src model.SourceRecord) ([]model.Headline, error) {
	if src.RSS != "" {
		titles, err := s.feedTitles(ctx, src.RSS)
		if err != nil {
			s.logger.Debug("feed failed", "source", src.Name, "err", err)
		}
		if headlines := s.headlines(src, titles); len(headlines) > 0 {
			s.logger.Info("fetched headlines", "source", src.Name, "count", len(headlines), "via", "rss")
			return headlines, nil
		}
	}

	if src.URL == "" || src.ScrapeSelector == "" {
		if src.RSS == "" {
			return nil, fmt.Errorf("source %s has neither rss nor url+selector", src.ID)
		}
		return nil, nil
	}

	titles, err := s.pageTitles(ctx, src.URL, src.ScrapeSelector)
	if err != nil {
		return nil, err
	}
	headlines := s.headlines(src, titles)
	if len(headlines) > 0 {
		s.logger.Info("fetched headlines", "source", src.Name, "count", len(headlines), "via", "html")
	}
	return headlines, nil
}

func (s *Scraper) feedTitles(ctx context.Context, feedURL string) ([]string, error) {
	if err := s.limiter.Wait(ctx, feedURL); err != nil {
		return nil, err
	}
	body, err := s.fetcher.FetchWithRetry(ctx, feedURL, feedAccept)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	titles := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(titles) == MaxItemsPerSource {
			break
		}
		titles = append(titles, item.Title)
	}
	return titles, nil
}

func (s *Scraper) pageTitles(ctx context.Context, pageURL, selector string) ([]string, error) {
	allowed, delay, err := s.robots.CanFetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("disallowed by robots.txt: %s", pageURL)
	}
	if delay > 0 {
		if host := hostOf(pageURL); host != "" {
			s.limiter.SetHostRate(host, 1/delay.Seconds())
		}
	}

	if err := s.limiter.Wait(ctx, pageURL); err != nil {
		return nil, err
	}
	body, err := s.fetcher.FetchWithRetry(ctx, pageURL, htmlAccept)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var titles []string
	doc.Find(selector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		titles = append(titles, sel.Text())
		return len(titles) < MaxItemsPerSource
	})
	return titles, nil
}

// headlines cleans titles and attributes them to src
func (s *Scraper) headlines(src model.SourceRecord, titles []string) []model.Headline {
	now := s.now()
	var out []model.Headline
	for _, t := range titles {
		text := CleanTitle(t)
		if len([]rune(text)) <= MinHeadlineLen {
			continue
		}
		out = append(out, model.Headline{
			Text:         text,
			SourceID:     src.ID,
			SourceName:   src.Name,
			SourceRating: src.Ratings.Accuracy,
			Owner:        src.Owner,
			Timestamp:    now,
		})
	}
	return out
}
