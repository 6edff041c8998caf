package verify

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

// Ledger is today's publication record as seen by the duplicate detector
type Ledger interface {
	HasHash(hash string) bool
	PublishedFacts() []string
}

// DuplicateDetector decides whether a fact was already published today
type DuplicateDetector struct {
	oracle    EventJudge
	threshold float64
	logger    *log.Logger
}

// NewDuplicateDetector creates a two-tier duplicate detector
func NewDuplicateDetector(oracle EventJudge, threshold float64, logger *log.Logger) *DuplicateDetector {
	if threshold <= 0 {
		threshold = DefaultOverlapThreshold
	}
	return &DuplicateDetector{oracle: oracle, threshold: threshold, logger: logging.Or(logger)}
}

// IsDuplicate checks the exact hash first, then asks the oracle about
// today's published facts that pass the lexical prefilter
func (d *DuplicateDetector) IsDuplicate(ctx context.Context, fact string, today Ledger) bool {
	if today.HasHash(model.StoryHash(fact)) {
		return true
	}

	published := today.PublishedFacts()
	if len(published) == 0 {
		return false
	}

	idx := shortlist(fact, published, d.threshold)
	if len(idx) == 0 {
		return false
	}

	candidates := make([]string, len(idx))
	for i, pi := range idx {
		candidates[i] = published[pi]
	}

	dup, err := d.oracle.SameEventAny(ctx, fact, candidates)
	if err != nil {
		d.logger.Warn("duplicate check failed", "fact", logging.Short(fact, 40), "err", err)
		return false
	}
	if dup {
		d.logger.Info("duplicate (semantic)", "fact", logging.Short(fact, 40))
	}
	return dup
}
