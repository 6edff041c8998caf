package oracle

import (
	"fmt"
	"strings"
)

const extractionSystem = "You extract neutral, verifiable facts from news headlines and reply with JSON only."

const extractionPrompt = `Rewrite the headline below as one neutral factual sentence.

Rules:
1. Keep only verifiable facts: what happened, where, when, how many.
2. Remove loaded language ("brutal", "tragic", "shocking", "slammed", "historic") unless objectively measurable. "Slammed" becomes "criticized"; "active shooter" becomes "shooting reported".
3. Remove speculation and attributed motive.
4. Keep numbers, locations, names and actions. Use present tense for ongoing events.
5. One sentence at most. If nothing verifiable remains, the fact is "SKIP".

A story is newsworthy only if it meets at least one threshold:
- death or violent crime
- 500 or more people directly affected
- $1 million USD or more in cost or investment
- a law or regulation changes
- a political border is redrawn
- a major scientific or technological achievement
- a humanitarian milestone (aid delivered, rescue, disaster relief)

Reply with a JSON object:
{"fact": "...", "confidence": 0-100, "newsworthy": true|false, "threshold_met": "death/violence" | "500+ affected" | "$1M+ cost/investment" | "law change" | "border change" | "scientific achievement" | "humanitarian milestone" | "none"}

Headline:
`

const sameEventRule = `Same event means the same incident, the same person doing the same action, or the same announcement.
Details such as casualty counts or exact wording may differ.`

// ExtractionPrompt builds the fact extraction prompt for one headline
func ExtractionPrompt(headline string) string {
	return extractionPrompt + headline
}

// GroupMatchPrompt asks which numbered candidates describe the same event as fact
func GroupMatchPrompt(fact string, candidates []string) string {
	return fmt.Sprintf(`Compare this new fact against the numbered list below.
Return ONLY the numbers of the facts that describe the SAME EVENT as the new fact.
%s

New fact: %s

Existing facts:
%s

Reply with ONLY comma-separated numbers (e.g. "1,3") or "NONE" if nothing matches.`, sameEventRule, fact, numbered(candidates))
}

// SameEventPrompt asks whether fact describes the same event as any candidate
func SameEventPrompt(fact string, candidates []string) string {
	return fmt.Sprintf(`Does this new fact describe the SAME EVENT as any fact in the list below?
%s

New fact: %s

Published facts:
%s

Reply with ONLY "YES" or "NO".`, sameEventRule, fact, numbered(candidates))
}

// numbered renders candidates as a 1-based list
func numbered(items []string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, it)
	}
	return b.String()
}
