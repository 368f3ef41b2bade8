package search

import (
	"sort"
	"strings"
)

// Intent boost factors. Each multiplies a candidate's working Score (never
// its FusedScore) when its payload matches the intent's preference.
const (
	implementationBoost = 1.25 // category=code with a function definition
	architectureBoost   = 1.20 // shallow files (depth <= 2)
	debuggingBoost      = 1.15 // code and test files
	documentationBoost  = 1.20 // docs files

	pathMatchBoost   = 1.15 // a query term appears in the file path
	exactPhraseBoost = 1.25 // the whole query appears in the chunk text
)

// Rerank applies intent-weighted boosts and re-sorts candidates.
// The sort is stable so equal-scored candidates keep their fused order.
func Rerank(candidates []*Candidate, intent Intent, query string) {
	queryLower := strings.ToLower(query)
	terms := significantTerms(queryLower)

	for _, c := range candidates {
		boost := 1.0
		m := c.Metadata

		switch intent {
		case IntentImplementation:
			if m.Category == "code" && m.HasFnDef {
				boost *= implementationBoost
			}
		case IntentArchitecture:
			if m.Depth <= 2 {
				boost *= architectureBoost
			}
		case IntentDebugging:
			if m.Category == "code" || m.Category == "test" {
				boost *= debuggingBoost
			}
		case IntentDocumentation:
			if m.Category == "docs" {
				boost *= documentationBoost
			}
		}

		pathLower := strings.ToLower(m.Path)
		for _, term := range terms {
			if strings.Contains(pathLower, term) {
				boost *= pathMatchBoost
				break
			}
		}

		if len(queryLower) > 3 && strings.Contains(strings.ToLower(m.Text), queryLower) {
			boost *= exactPhraseBoost
		}

		c.Score *= boost
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

// significantTerms keeps query terms long enough to be meaningful in paths.
func significantTerms(queryLower string) []string {
	var terms []string
	for _, t := range strings.Fields(queryLower) {
		if len(t) > 2 {
			terms = append(terms, t)
		}
	}
	return terms
}
