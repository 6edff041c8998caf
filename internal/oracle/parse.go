package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/corroborate/internal/model"
)

// ErrParse is returned when an oracle reply cannot be interpreted
var ErrParse = errors.New("unparseable oracle reply")

// defaultFallbackConfidence applies when only the fact survives a malformed reply
const defaultFallbackConfidence = 85

var (
	factField       = regexp.MustCompile(`"fact"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	confidenceField = regexp.MustCompile(`"confidence"\s*:\s*"?(\d+)`)
)

type rawCandidate struct {
	Fact         string          `json:"fact"`
	Confidence   json.RawMessage `json:"confidence"`
	Newsworthy   *bool           `json:"newsworthy"`
	ThresholdMet string          `json:"threshold_met"`
}

// ParseCandidate reads an extraction reply. It prefers the JSON object between
// the first '{' and the last '}' and falls back to pulling the fact and
// confidence fields out of malformed JSON.
func ParseCandidate(text string) (model.CandidateFact, error) {
	if c, ok := parseCandidateJSON(text); ok {
		return c, nil
	}

	m := factField.FindStringSubmatch(text)
	if m == nil {
		return model.SkipCandidate(), fmt.Errorf("%w: no fact in %q", ErrParse, clip(text))
	}

	fact, err := strconv.Unquote(`"` + m[1] + `"`)
	if err != nil {
		fact = strings.ReplaceAll(m[1], `\"`, `"`)
	}

	confidence := defaultFallbackConfidence
	if cm := confidenceField.FindStringSubmatch(text); cm != nil {
		if n, err := strconv.Atoi(cm[1]); err == nil {
			confidence = n
		}
	}

	c := model.CandidateFact{Fact: strings.TrimSpace(fact), Confidence: confidence, Newsworthy: true}
	if c.IsSkip() {
		return model.SkipCandidate(), nil
	}
	return c, nil
}

func parseCandidateJSON(text string) (model.CandidateFact, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.CandidateFact{}, false
	}

	var raw rawCandidate
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return model.CandidateFact{}, false
	}

	c := model.CandidateFact{
		Fact:         strings.TrimSpace(raw.Fact),
		Confidence:   parseConfidence(raw.Confidence),
		Newsworthy:   raw.Newsworthy == nil || *raw.Newsworthy,
		ThresholdMet: raw.ThresholdMet,
	}
	if c.IsSkip() {
		return model.SkipCandidate(), true
	}
	return c, true
}

// parseConfidence accepts 90, 90.0 and "90"
func parseConfidence(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "%")); err == nil {
			return n
		}
	}
	return 0
}

// ParseIndices reads a grouping reply of comma-separated 1-based numbers or
// NONE and returns 0-based indices below n, deduplicated, in reply order.
// An optional "Matches:" label is allowed; any other text is ErrParse.
func ParseIndices(text string, n int) ([]int, error) {
	answer := normalize(text)
	if label, rest, ok := strings.Cut(answer, ":"); ok && strings.TrimSpace(label) == "MATCHES" {
		answer = strings.Trim(strings.TrimSpace(rest), " .")
	}
	if answer == "" || answer == "NONE" {
		return nil, nil
	}

	parts := strings.Split(answer, ",")
	seen := make(map[int]bool, len(parts))
	var out []int
	for _, part := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: expected numbers or NONE, got %q", ErrParse, clip(text))
		}
		i--
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out, nil
}

// ParseYesNo reads a YES/NO reply by its first word
func ParseYesNo(text string) (bool, error) {
	words := strings.Fields(normalize(text))
	if len(words) > 0 {
		switch strings.Trim(words[0], ".,;:!") {
		case "YES":
			return true, nil
		case "NO":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: expected YES or NO, got %q", ErrParse, clip(text))
}

func normalize(text string) string {
	return strings.ToUpper(strings.Trim(strings.TrimSpace(text), " .\"'`*"))
}

func clip(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
