package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoryHash_CaseInsensitive(t *testing.T) {
	assert.Equal(t, StoryHash("Shooting in X"), StoryHash("shooting in x"))
	assert.Equal(t, StoryHash("Shooting in X"), StoryHash("Shooting in X"))
	assert.Len(t, StoryHash("anything"), 12)
	assert.NotEqual(t, StoryHash("Shooting in X"), StoryHash("Shooting in Y"))
}

func TestCandidateFact_IsSkip(t *testing.T) {
	tests := []struct {
		fact string
		skip bool
	}{
		{"SKIP", true},
		{"skip", true},
		{"  SKIP ", true},
		{"", true},
		{"Council approves budget", false},
	}

	for _, tt := range tests {
		t.Run(tt.fact, func(t *testing.T) {
			assert.Equal(t, tt.skip, CandidateFact{Fact: tt.fact}.IsSkip())
		})
	}
}

func TestPublishedStory_SourceLine(t *testing.T) {
	story := PublishedStory{
		Sources: []Headline{
			{SourceName: "Wire One", SourceRating: 9.5},
			{SourceName: "Daily Two", SourceRating: 8},
		},
	}
	assert.Equal(t, "Wire One - 9.5 | Daily Two - 8", story.SourceLine())
}

func TestDay_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2026, 3, 1, 21, 0, 0, 0, loc) // 02:00 UTC next day
	assert.Equal(t, "2026-03-02", Day(local))
}

func TestSourceRecord_HolderNames(t *testing.T) {
	src := SourceRecord{InstitutionalHolders: []Holder{{Name: "Vanguard"}, {Name: ""}, {Name: "BlackRock"}}}
	names := src.HolderNames()
	assert.Len(t, names, 2)
	assert.Contains(t, names, "Vanguard")
	assert.Contains(t, names, "BlackRock")
}
