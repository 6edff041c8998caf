package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SkipFact is the sentinel the extraction oracle returns for headlines
// carrying no verifiable fact
const SkipFact = "SKIP"

// Headline is one scraped headline, attributed to its source
type Headline struct {
	Text         string    `json:"text"`
	SourceID     string    `json:"source_id"`
	SourceName   string    `json:"source_name"`
	SourceRating float64   `json:"source_rating"`
	Owner        string    `json:"owner"`
	Timestamp    time.Time `json:"timestamp"`
}

// CandidateFact is the extraction oracle's verdict on one headline
type CandidateFact struct {
	Fact         string `json:"fact"`
	Confidence   int    `json:"confidence"`    // 0-100
	Newsworthy   bool   `json:"newsworthy"`
	ThresholdMet string `json:"threshold_met"` // e.g. "death/violence", "law change", "none"
}

// SkipCandidate returns the "no verifiable fact" result
func SkipCandidate() CandidateFact {
	return CandidateFact{Fact: SkipFact, Confidence: 0, ThresholdMet: "none"}
}

// IsSkip reports whether the candidate carries no fact
func (c CandidateFact) IsSkip() bool {
	return strings.TrimSpace(c.Fact) == "" || strings.EqualFold(strings.TrimSpace(c.Fact), SkipFact)
}

// QueueItem is an unconfirmed fact waiting for an independent second source
type QueueItem struct {
	ID           string    `json:"id"`
	Fact         string    `json:"fact"`
	SourceID     string    `json:"source_id"`
	SourceName   string    `json:"source_name"`
	SourceRating float64   `json:"source_rating"`
	Timestamp    time.Time `json:"timestamp"`
	Confidence   int       `json:"confidence"`
}

// Headline returns the queued item as the headline-shaped record of its source
func (q QueueItem) Headline() Headline {
	return Headline{
		Text:         q.Fact,
		SourceID:     q.SourceID,
		SourceName:   q.SourceName,
		SourceRating: q.SourceRating,
		Timestamp:    q.Timestamp,
	}
}

// PublishedStory is a fact verified by two independent sources
type PublishedStory struct {
	Fact      string     `json:"fact"`
	Sources   []Headline `json:"sources"`
	Timestamp time.Time  `json:"timestamp"`
	Hash      string     `json:"hash"`
	Audio     string     `json:"audio,omitempty"`
}

// SourceLine renders the attribution as "Name - rating | Name - rating"
func (s PublishedStory) SourceLine() string {
	parts := make([]string, 0, len(s.Sources))
	for _, src := range s.Sources {
		parts = append(parts, fmt.Sprintf("%s - %s", src.SourceName, FormatRating(src.SourceRating)))
	}
	return strings.Join(parts, " | ")
}

// FormatRating renders a source rating without trailing zeros
func FormatRating(r float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", r), "0"), ".")
}

// StoryHash returns the deterministic, case-insensitive identity of a text.
// MD5 is used as a short identity key, not for integrity.
func StoryHash(text string) string {
	sum := md5.Sum([]byte(strings.ToLower(text)))
	return hex.EncodeToString(sum[:])[:12]
}

// Day returns the UTC calendar day partition key for t
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
