package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/cache"
	"github.com/ppiankov/corroborate/internal/llm"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

// Call kinds, used for cache keys and metrics labels
const (
	KindExtract   = "extract"
	KindGroup     = "group_match"
	KindSameEvent = "same_event"
)

// Call results reported to the observer
const (
	ResultOK        = "ok"
	ResultCached    = "cached"
	ResultError     = "error"
	ResultMalformed = "malformed"
)

// Observer receives one notification per oracle call
type Observer interface {
	OracleCall(kind, result string)
}

// Options configures an Oracle
type Options struct {
	Model     string // part of the cache key
	MaxTokens int    // extraction reply length cap
	CacheTTL  time.Duration
}

// Oracle answers the pipeline's semantic questions through an LLM provider.
// Malformed replies are converted to safe defaults here; transport failures
// are returned so callers can log them and fall back.
type Oracle struct {
	provider llm.Provider
	cache    cache.Cache
	opts     Options
	observer Observer
	logger   *log.Logger
}

// New creates an oracle. c and observer may be nil.
func New(provider llm.Provider, c cache.Cache, observer Observer, opts Options, logger *log.Logger) *Oracle {
	return &Oracle{
		provider: provider,
		cache:    c,
		opts:     opts,
		observer: observer,
		logger:   logging.Or(logger),
	}
}

// Extract turns a headline into a candidate fact. A malformed reply yields
// the SKIP candidate with a nil error.
func (o *Oracle) Extract(ctx context.Context, headline string) (model.CandidateFact, error) {
	text, err := o.complete(ctx, KindExtract, llm.CompletionRequest{
		System:    extractionSystem,
		Prompt:    ExtractionPrompt(headline),
		MaxTokens: o.opts.MaxTokens,
		JSON:      true,
	})
	if err != nil {
		return model.SkipCandidate(), err
	}

	c, err := ParseCandidate(text)
	if err != nil {
		o.malformed(KindExtract, headline, err)
		return model.SkipCandidate(), nil
	}
	return c, nil
}

// GroupMatch returns the 0-based indices of the candidates describing the
// same event as fact. A malformed reply counts as no match.
func (o *Oracle) GroupMatch(ctx context.Context, fact string, candidates []string) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	text, err := o.complete(ctx, KindGroup, llm.CompletionRequest{
		Prompt:    GroupMatchPrompt(fact, candidates),
		MaxTokens: 50,
	})
	if err != nil {
		return nil, err
	}

	idx, err := ParseIndices(text, len(candidates))
	if err != nil {
		o.malformed(KindGroup, fact, err)
		return nil, nil
	}
	return idx, nil
}

// SameEventAny reports whether fact describes the same event as any candidate.
// A malformed reply counts as not the same event.
func (o *Oracle) SameEventAny(ctx context.Context, fact string, candidates []string) (bool, error) {
	if len(candidates) == 0 {
		return false, nil
	}

	text, err := o.complete(ctx, KindSameEvent, llm.CompletionRequest{
		Prompt:    SameEventPrompt(fact, candidates),
		MaxTokens: 10,
	})
	if err != nil {
		return false, err
	}

	same, err := ParseYesNo(text)
	if err != nil {
		o.malformed(KindSameEvent, fact, err)
		return false, nil
	}
	return same, nil
}

func (o *Oracle) complete(ctx context.Context, kind string, req llm.CompletionRequest) (string, error) {
	key := cache.PromptKey(o.provider.Name(), o.opts.Model, kind, req.System, req.Prompt)

	if o.cache != nil {
		if val, ok := o.cache.Get(key); ok {
			o.observe(kind, ResultCached)
			return string(val), nil
		}
	}

	resp, err := o.provider.Complete(ctx, req)
	if err != nil {
		o.observe(kind, ResultError)
		return "", fmt.Errorf("%s: %w", kind, err)
	}
	o.observe(kind, ResultOK)

	if o.cache != nil {
		if err := o.cache.Set(key, []byte(resp.Text), o.opts.CacheTTL); err != nil {
			o.logger.Debug("oracle cache write failed", "kind", kind, "err", err)
		}
	}

	return resp.Text, nil
}

func (o *Oracle) malformed(kind, subject string, err error) {
	o.observe(kind, ResultMalformed)
	if errors.Is(err, ErrParse) {
		o.logger.Warn("malformed oracle reply", "kind", kind, "subject", logging.Short(subject, 40), "err", err)
	}
}

func (o *Oracle) observe(kind, result string) {
	if o.observer != nil {
		o.observer.OracleCall(kind, result)
	}
}
