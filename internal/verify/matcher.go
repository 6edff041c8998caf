package verify

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

// GroupMatcher asks the semantic oracle which numbered candidates describe
// the same event as fact. It returns 0-based indices into candidates.
type GroupMatcher interface {
	GroupMatch(ctx context.Context, fact string, candidates []string) ([]int, error)
}

// EventJudge asks the semantic oracle whether fact describes the same event
// as any of the candidates
type EventJudge interface {
	SameEventAny(ctx context.Context, fact string, candidates []string) (bool, error)
}

// SemanticOracle is the full semantic capability the pipeline consumes
type SemanticOracle interface {
	GroupMatcher
	EventJudge
}

// Matcher finds queued facts that corroborate a new fact
type Matcher struct {
	oracle    GroupMatcher
	threshold float64
	logger    *log.Logger
}

// NewMatcher creates a corroboration matcher
func NewMatcher(oracle GroupMatcher, threshold float64, logger *log.Logger) *Matcher {
	if threshold <= 0 {
		threshold = DefaultOverlapThreshold
	}
	return &Matcher{oracle: oracle, threshold: threshold, logger: logging.Or(logger)}
}

// Match returns the queue items the oracle judges to describe the same event
// as fact, in the oracle's order. The oracle is called at most once, and not
// at all when the lexical prefilter leaves nothing to compare.
func (m *Matcher) Match(ctx context.Context, fact string, queue []model.QueueItem) []model.QueueItem {
	if len(queue) == 0 {
		return nil
	}

	facts := make([]string, len(queue))
	for i, item := range queue {
		facts[i] = item.Fact
	}

	idx := shortlist(fact, facts, m.threshold)
	if len(idx) == 0 {
		return nil
	}

	m.logger.Debug("word overlap prefilter", "candidates", len(idx), "queue", len(queue))

	candidates := make([]model.QueueItem, len(idx))
	texts := make([]string, len(idx))
	for i, qi := range idx {
		candidates[i] = queue[qi]
		texts[i] = queue[qi].Fact
	}

	picked, err := m.oracle.GroupMatch(ctx, fact, texts)
	if err != nil {
		m.logger.Warn("corroboration match failed", "fact", logging.Short(fact, 40), "err", err)
		return nil
	}

	seen := make(map[int]bool, len(picked))
	var matches []model.QueueItem
	for _, i := range picked {
		if i < 0 || i >= len(candidates) || seen[i] {
			continue
		}
		seen[i] = true
		matches = append(matches, candidates[i])
	}

	return matches
}
