package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/alert"
	"github.com/ppiankov/corroborate/internal/cache"
	"github.com/ppiankov/corroborate/internal/fetch"
	"github.com/ppiankov/corroborate/internal/llm"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/metrics"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/oracle"
	"github.com/ppiankov/corroborate/internal/publish"
	"github.com/ppiankov/corroborate/internal/registry"
	"github.com/ppiankov/corroborate/internal/runner"
	"github.com/ppiankov/corroborate/internal/store"
)

// app holds the wired components of one command invocation
type app struct {
	cfg      *model.Config
	logger   *log.Logger
	store    store.Store
	sources  *registry.Registry
	metrics  *metrics.Metrics
	provider llm.Provider
	runner   *runner.Runner
}

// newApp wires every component needed to process headlines
func newApp(cfg *model.Config) (*app, error) {
	logger := logging.New(cfg.Log, os.Stderr)

	sources, err := registry.Load(cfg.SourcesFile, cfg.UnrelatedRules.MaxSharedTopHolders)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: st, sources: sources}
	if err := a.wirePipeline(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wirePipeline() error {
	cfg := a.cfg

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg))
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}
	a.provider = provider

	var responses cache.Cache
	if cfg.Cache.Enabled {
		responses = cache.New(cfg.Cache.Dir, cfg.Cache.TTL)
	}

	a.metrics = metrics.New()
	semantic := oracle.New(provider, responses, a.metrics, oracle.Options{
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		CacheTTL:  cfg.Cache.TTL,
	}, a.logger)

	scraper := fetch.NewScraper(scraperOptions(cfg), a.logger)

	files, err := publish.NewFileSink(cfg.Publish.Dir)
	if err != nil {
		return fmt.Errorf("create publish sink: %w", err)
	}

	alerter, err := alert.New(cfg.Alert, a.logger)
	if err != nil {
		return fmt.Errorf("create alert sink: %w", err)
	}

	a.runner = runner.New(runner.OptionsFromConfig(cfg), runner.Deps{
		Store:     a.store,
		Sources:   a.sources,
		Scraper:   scraper,
		Oracle:    semantic,
		Publisher: publish.Multi{publish.NewLogSink(a.logger), files},
		Alerter:   alerter,
		Metrics:   a.metrics,
		Logger:    a.logger,
	})
	return nil
}

func scraperOptions(cfg *model.Config) fetch.Options {
	return fetch.Options{
		Timeout:     cfg.HTTP.Timeout,
		UserAgent:   cfg.HTTP.UserAgent,
		MaxBytes:    cfg.HTTP.MaxBytes,
		RPS:         cfg.Timing.SourceRPS,
		HTTPProxy:   cfg.HTTP.HTTPProxy,
		HTTPSProxy:  cfg.HTTP.HTTPSProxy,
		Concurrency: cfg.HTTP.Concurrency,
	}
}

// Close releases the store
func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// openStore opens only the state store, for commands that need no sources
func openStore(cfg *model.Config) (store.Store, error) {
	st, err := store.Open(cfg.Store, logging.New(cfg.Log, os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// ensureSourcesFile gives a clearer hint than the raw read error
func ensureSourcesFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		abs, _ := filepath.Abs(path)
		return fmt.Errorf("sources file not found: %s\nCreate one from sources.example.yaml or pass --sources", abs)
	}
	return nil
}
