package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

// Independence decides whether two sources may corroborate each other and
// resolves their registry records
type Independence interface {
	Unrelated(a, b string) bool
	Get(id string) (model.SourceRecord, bool)
}

// State is the verification state owned by one cycle: the pending queue and
// today's publication record. It is loaded from the store at the start of a
// cycle and flushed back at well-defined points.
type State struct {
	Day   string
	Queue *Queue

	shown     map[string]struct{}
	published []model.PublishedStory
}

// NewState assembles a cycle's state
func NewState(day string, queue *Queue, shown map[string]struct{}, published []model.PublishedStory) *State {
	if shown == nil {
		shown = make(map[string]struct{})
	}
	for _, s := range published {
		shown[s.Hash] = struct{}{}
	}
	return &State{Day: day, Queue: queue, shown: shown, published: published}
}

// HasHash reports whether a story with this hash was shown today
func (s *State) HasHash(hash string) bool {
	_, ok := s.shown[hash]
	return ok
}

// PublishedFacts returns the facts published today, oldest first
func (s *State) PublishedFacts() []string {
	out := make([]string, len(s.published))
	for i, p := range s.published {
		out[i] = p.Fact
	}
	return out
}

// Stories returns today's published stories
func (s *State) Stories() []model.PublishedStory {
	out := make([]model.PublishedStory, len(s.published))
	copy(out, s.published)
	return out
}

func (s *State) record(story model.PublishedStory) {
	s.shown[story.Hash] = struct{}{}
	s.published = append(s.published, story)
}

// unrecord drops the most recent story with this hash
func (s *State) unrecord(hash string) {
	for i := len(s.published) - 1; i >= 0; i-- {
		if s.published[i].Hash == hash {
			s.published = append(s.published[:i], s.published[i+1:]...)
			break
		}
	}
	for _, p := range s.published {
		if p.Hash == hash {
			return
		}
	}
	delete(s.shown, hash)
}

// Outcome is what the pipeline did with a candidate fact
type Outcome int

const (
	OutcomeQueued Outcome = iota
	OutcomePublished
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return "published"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "queued"
	}
}

// Decision is the result of processing one candidate fact
type Decision struct {
	Outcome Outcome
	Story   *model.PublishedStory // set when published
	Queued  *model.QueueItem      // set when queued
	Matches int                   // corroboration matches found, related or not

	// Consumed is the queue item the story used up, set when published
	Consumed *model.QueueItem
}

// Options tunes the pipeline
type Options struct {
	MinConfidence    int
	OverlapThreshold float64
}

// Pipeline composes duplicate detection, corroboration matching and the
// independence test into the publish/queue/drop decision
type Pipeline struct {
	state         *State
	detector      *DuplicateDetector
	matcher       *Matcher
	sources       Independence
	minConfidence int
	now           func() time.Time
	newID         func() string
	logger        *log.Logger
}

// NewPipeline creates a pipeline over the given state
func NewPipeline(opts Options, state *State, oracle SemanticOracle, sources Independence, logger *log.Logger) *Pipeline {
	logger = logging.Or(logger)
	return &Pipeline{
		state:         state,
		detector:      NewDuplicateDetector(oracle, opts.OverlapThreshold, logger),
		matcher:       NewMatcher(oracle, opts.OverlapThreshold, logger),
		sources:       sources,
		minConfidence: opts.MinConfidence,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
		logger:        logger,
	}
}

// SetClock overrides the clock used to timestamp published stories
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// State returns the state the pipeline mutates
func (p *Pipeline) State() *State {
	return p.state
}

// Admit applies the extraction gate: a real fact, enough confidence, newsworthy.
// The reason is empty when the candidate is admitted.
func (p *Pipeline) Admit(c model.CandidateFact) (bool, string) {
	switch {
	case c.IsSkip():
		return false, "no verifiable fact"
	case c.Confidence < p.minConfidence:
		return false, fmt.Sprintf("low confidence (%d%%)", c.Confidence)
	case !c.Newsworthy:
		return false, fmt.Sprintf("not newsworthy (%s)", c.ThresholdMet)
	}
	return true, ""
}

// Process decides what to do with an admitted candidate fact from headline h
func (p *Pipeline) Process(ctx context.Context, h model.Headline, c model.CandidateFact) Decision {
	fact := c.Fact

	if p.detector.IsDuplicate(ctx, fact, p.state) {
		p.logger.Info("duplicate", "fact", logging.Short(fact, 40), "source", h.SourceID)
		return Decision{Outcome: OutcomeDuplicate}
	}

	matches := p.matcher.Match(ctx, fact, p.state.Queue.Items())

	for _, match := range matches {
		if !p.sources.Unrelated(h.SourceID, match.SourceID) {
			p.logger.Debug("match from related source", "fact", logging.Short(fact, 40), "source", h.SourceID, "queued_source", match.SourceID)
			continue
		}

		second := match.Headline()
		if rec, ok := p.sources.Get(match.SourceID); ok {
			second.Owner = rec.Owner
		}

		story := model.PublishedStory{
			Fact:      fact,
			Sources:   []model.Headline{h, second},
			Timestamp: p.now(),
			Hash:      model.StoryHash(fact),
		}
		p.state.record(story)
		p.state.Queue.Remove(match.ID)

		p.logger.Info("verified", "fact", logging.Short(fact, 50), "sources", story.SourceLine())
		consumed := match
		return Decision{Outcome: OutcomePublished, Story: &story, Consumed: &consumed, Matches: len(matches)}
	}

	item := model.QueueItem{
		ID:           p.newID(),
		Fact:         fact,
		SourceID:     h.SourceID,
		SourceName:   h.SourceName,
		SourceRating: h.SourceRating,
		Timestamp:    h.Timestamp,
		Confidence:   c.Confidence,
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = p.now()
	}
	p.state.Queue.Add(item)

	p.logger.Info("queued", "fact", logging.Short(fact, 40), "source", h.SourceID, "matches", len(matches))
	return Decision{Outcome: OutcomeQueued, Queued: &item, Matches: len(matches)}
}

// Rollback undoes a published decision whose story could not be persisted:
// the story leaves today's record and the consumed item returns to the queue.
// Other decisions are left alone.
func (p *Pipeline) Rollback(d Decision) {
	if d.Outcome != OutcomePublished || d.Story == nil {
		return
	}
	p.state.unrecord(d.Story.Hash)
	if d.Consumed != nil {
		p.state.Queue.Add(*d.Consumed)
	}
	p.logger.Warn("publication rolled back", "fact", logging.Short(d.Story.Fact, 40))
}
