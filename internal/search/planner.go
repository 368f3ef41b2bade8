package search

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Aman-CERP/reporag/internal/store"
)

// Selectivity gate bounds: a pre-filter estimated to match less than the
// minimum (risk of missed answers) or more than the maximum (no benefit)
// is dropped.
const (
	DefaultSelectivityMin = 0.10
	DefaultSelectivityMax = 0.50
)

// SelectivityEstimator estimates the fraction of a namespace's corpus
// matching a pre-filter.
type SelectivityEstimator interface {
	EstimateSelectivity(ctx context.Context, namespace string, filter store.Filter) (float64, error)
}

// intentRules are evaluated in order; the first matching rule wins.
// Debugging and architecture outrank implementation because their trigger
// phrases are more specific.
var intentRules = []struct {
	intent   Intent
	patterns []*regexp.Regexp
}{
	{IntentDebugging, compileAll(
		`\bdebug`,
		`\berror\b`,
		`\bstack\s*trace\b`,
		`\bbug\b`,
		`\bfail(s|ed|ing)?\b`,
		`\bfix\b`,
		`\bissue\b`,
		`\bnot\s+working\b`,
		`\bwhy\s+(is|does|isn't|doesn't)\b`,
		`\bexception\b`,
		`\bcrash`,
	)},
	{IntentArchitecture, compileAll(
		`\barchitecture\b`,
		`\bstructure\b`,
		`\bdiagram\b`,
		`\bdata\s*flow\b`,
		`\bdesign\b`,
		`\boverview\b`,
		`\borganization\b`,
		`\bhigh[\s-]level\b`,
		`\bcomponents?\s+interact\b`,
	)},
	{IntentDocumentation, compileAll(
		`\breadme\b`,
		`\bdocs?\b`,
		`\bdocumentation\b`,
		`\bguide\b`,
		`\btutorial\b`,
		`\bhow\s+(do|to|can)\s+i?\s*use\b`,
		`\busage\b`,
		`\bexamples?\s+of\s+using\b`,
	)},
	{IntentImplementation, compileAll(
		`\bimplement`,
		`\bshow\s+me\b`,
		`\bwhere\s+is\b`,
		`\bfind\b`,
		`\blocate\b`,
		`\bcode\b`,
		`\bfunction\b`,
		`\bmethod\b`,
		`\bclass\b`,
		`\blogic\b`,
		`\bsource\b`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// languageTokens maps query tokens to language pre-filter values.
var languageTokens = map[string]string{
	"python":     "python",
	"py":         "python",
	"javascript": "javascript",
	"js":         "javascript",
	"typescript": "typescript",
	"ts":         "typescript",
	"java":       "java",
	"go":         "go",
	"golang":     "go",
	"rust":       "rust",
	"c":          "c",
	"cpp":        "cpp",
	"c++":        "cpp",
	"ruby":       "ruby",
	"php":        "php",
	"haskell":    "haskell",
	"markdown":   "markdown",
	"yaml":       "yaml",
	"shell":      "shell",
	"bash":       "shell",
}

// categoryTokens maps file-kind query tokens to category pre-filter values.
var categoryTokens = map[string]string{
	"test":    "test",
	"tests":   "test",
	"spec":    "test",
	"specs":   "test",
	"config":  "config",
	"configs": "config",
	"doc":     "docs",
	"docs":    "docs",
	"readme":  "docs",
	"build":   "build",
}

// techExpansions expand common abbreviations before dense retrieval.
var techExpansions = map[string]string{
	"api":    "application programming interface",
	"db":     "database",
	"auth":   "authentication",
	"config": "configuration",
	"env":    "environment",
	"repo":   "repository",
	"func":   "function",
	"params": "parameters",
	"args":   "arguments",
	"ui":     "user interface",
	"http":   "hypertext transfer protocol",
	"jwt":    "JSON web token",
	"orm":    "object relational mapping",
	"sql":    "database query",
}

// intentHints are appended to the rewritten query to steer dense retrieval.
var intentHints = map[Intent]string{
	IntentImplementation: "code implementation source",
	IntentDebugging:      "error handling debugging troubleshooting",
	IntentArchitecture:   "architecture structure design organization",
	IntentDocumentation:  "usage documentation guide example",
}

// rootTokens trigger the shallow-depth pre-filter.
var rootTokens = regexp.MustCompile(`\b(main|root|top[\s-]level|entry\s*point)\b`)

// Structural post-filter triggers.
var (
	classTokens = regexp.MustCompile(`\bclass(es)?\b`)
	fnTokens    = regexp.MustCompile(`\b(function|functions|method|methods)\b`)
)

// Planner transforms a natural-language query into a retrieval plan.
type Planner struct {
	selectivityMin float64
	selectivityMax float64
}

// NewPlanner creates a planner with the given gate bounds; zero values
// use the defaults.
func NewPlanner(selectivityMin, selectivityMax float64) *Planner {
	if selectivityMin <= 0 {
		selectivityMin = DefaultSelectivityMin
	}
	if selectivityMax <= 0 {
		selectivityMax = DefaultSelectivityMax
	}
	return &Planner{selectivityMin: selectivityMin, selectivityMax: selectivityMax}
}

// ClassifyIntent returns the intent for a query by the phrase rule table.
func ClassifyIntent(query string) Intent {
	lower := strings.ToLower(query)
	for _, rule := range intentRules {
		for _, p := range rule.patterns {
			if p.MatchString(lower) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

// Plan builds the staged filter configuration for a query.
// The estimator gates the pre-filter; a nil estimator keeps it unchanged.
func (p *Planner) Plan(ctx context.Context, namespace, query string, estimator SelectivityEstimator) *Plan {
	intent := ClassifyIntent(query)
	lower := strings.ToLower(query)

	pre := store.Filter{}
	post := store.Filter{}

	// Implicit language filter.
	for _, tok := range strings.Fields(strings.Map(stripPunct, lower)) {
		if lang, ok := languageTokens[tok]; ok {
			pre["language"] = map[string]any{"$eq": lang}
			break
		}
	}

	// Implicit file-kind filter.
	for _, tok := range strings.Fields(strings.Map(stripPunct, lower)) {
		if cat, ok := categoryTokens[tok]; ok {
			pre["category"] = map[string]any{"$eq": cat}
			break
		}
	}

	// Intent-driven category defaults.
	if _, has := pre["category"]; !has {
		switch intent {
		case IntentImplementation:
			pre["category"] = map[string]any{"$eq": "code"}
		case IntentDocumentation:
			pre["category"] = map[string]any{"$eq": "docs"}
		}
	}

	// Shallow-depth filter for root/entrypoint queries.
	if rootTokens.MatchString(lower) {
		pre["depth"] = map[string]any{"$lte": 2}
	}

	// Structural post-filters.
	if classTokens.MatchString(lower) {
		post["hasClassDef"] = map[string]any{"$eq": true}
	}
	if fnTokens.MatchString(lower) {
		post["hasFnDef"] = map[string]any{"$eq": true}
	}

	plan := &Plan{
		Intent:          intent,
		Query:           query,
		RewrittenQuery:  rewriteQuery(query, intent),
		Weights:         DefaultWeights(),
		GateSelectivity: -1,
	}
	if len(pre) > 0 {
		plan.PreFilters = pre
	}
	if len(post) > 0 {
		plan.PostFilters = post
	}

	p.applyGate(ctx, namespace, plan, estimator)
	return plan
}

// applyGate estimates pre-filter selectivity and drops the filter outside
// the [min, max] window. Estimator failures are logged and treated as a
// malformed plan: filters are disabled and the query continues.
func (p *Planner) applyGate(ctx context.Context, namespace string, plan *Plan, estimator SelectivityEstimator) {
	if plan.PreFilters == nil || estimator == nil {
		return
	}

	selectivity, err := estimator.EstimateSelectivity(ctx, namespace, plan.PreFilters)
	if err != nil {
		slog.Warn("selectivity estimate failed, disabling filters",
			slog.String("namespace", namespace),
			slog.String("error", err.Error()))
		plan.PreFilters = nil
		plan.PostFilters = nil
		return
	}

	plan.GateSelectivity = selectivity
	if selectivity < p.selectivityMin || selectivity > p.selectivityMax {
		slog.Debug("selectivity gate dropped pre-filter",
			slog.String("namespace", namespace),
			slog.Float64("selectivity", selectivity))
		plan.PreFilters = nil
	}
}

// rewriteQuery appends abbreviation expansions and intent hints.
// The original query text is preserved as the prefix.
func rewriteQuery(query string, intent Intent) string {
	var b strings.Builder
	b.WriteString(query)

	lower := strings.ToLower(query)
	for _, tok := range strings.Fields(strings.Map(stripPunct, lower)) {
		if expansion, ok := techExpansions[tok]; ok {
			b.WriteByte(' ')
			b.WriteString(expansion)
		}
	}

	if hint, ok := intentHints[intent]; ok {
		b.WriteByte(' ')
		b.WriteString(hint)
	}
	return b.String()
}

// stripPunct clears punctuation except '+' (kept for "c++").
func stripPunct(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == ' ', r == '\t':
		return r
	}
	return ' '
}
