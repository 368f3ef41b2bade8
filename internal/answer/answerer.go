// Package answer assembles grounded prompts from retrieval candidates,
// calls the LLM, and attaches citations and a confidence estimate.
package answer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkoukk/tiktoken-go"

	"github.com/Aman-CERP/reporag/internal/llm"
	"github.com/Aman-CERP/reporag/internal/search"
)

// Defaults for context assembly and the LLM call.
const (
	DefaultContextChunks = 10
	DefaultContextTokens = 8000
	DefaultMaxTokens     = 2048
	DefaultTemperature   = 0.1

	// NoInformationAnswer is the canonical response when retrieval finds
	// nothing relevant.
	NoInformationAnswer = "No relevant information found."

	// contextDelimiter separates context blocks in the prompt.
	contextDelimiter = "\n---\n"

	// tokenEncoding is the tiktoken encoding for the context budget.
	tokenEncoding = "cl100k_base"

	answerCacheSize = 256
)

// Confidence bucket thresholds.
const (
	confidenceHigh   = 0.7
	confidenceMedium = 0.4
)

// systemPrompt fixes the answer style: grounded, cited, no invention.
const systemPrompt = `You are a code analysis assistant answering questions about an indexed repository.

Base every statement strictly on the provided context. Cite file paths and line numbers when referencing code. If the context does not contain the answer, say so plainly instead of inventing one. Use Markdown headings and bullet points; put code in fenced blocks with a language tag.`

// intentInstructions carries per-intent answer guidance.
var intentInstructions = map[search.Intent]string{
	search.IntentImplementation: "Show the actual implementation: function signatures, key logic, and the file paths and line ranges they come from.",
	search.IntentDebugging:      "Analyze failure scenarios: error handling, edge cases, and what could cause the described problem.",
	search.IntentArchitecture:   "Describe the high-level structure: how the components relate and where the main entry points live.",
	search.IntentDocumentation:  "Answer with practical usage guidance and concrete examples from the context.",
	search.IntentGeneral:        "Provide a comprehensive technical answer based on the context.",
}

// greetings are answered without retrieval.
var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "greetings": true,
}

// Source is one citation entry.
type Source struct {
	File     string  `json:"file"`
	Lines    string  `json:"lines"`
	Score    float64 `json:"score"`
	Category string  `json:"category"`
}

// Confidence is the bucketed aggregate of top fused scores.
type Confidence struct {
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

// Answer is the grounded response returned to the caller.
type Answer struct {
	Answer     string     `json:"answer"`
	Sources    []Source   `json:"sources"`
	Confidence Confidence `json:"confidence"`
	Intent     string     `json:"intent"`
}

// Config configures the answerer.
type Config struct {
	Model         string
	ContextChunks int
	ContextTokens int
	MaxTokens     int
	Temperature   float64
	CacheTTL      time.Duration
}

// DefaultConfig returns the answerer defaults.
func DefaultConfig() Config {
	return Config{
		ContextChunks: DefaultContextChunks,
		ContextTokens: DefaultContextTokens,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   DefaultTemperature,
		CacheTTL:      5 * time.Minute,
	}
}

// Answerer turns retrieval results into grounded, cited answers.
// Answers are memoized per (namespace, query, model) with a TTL; the cache only
// affects latency, never content.
type Answerer struct {
	cfg      Config
	provider llm.Provider
	cache    *expirable.LRU[string, *Answer]

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// New creates an Answerer.
func New(cfg Config, provider llm.Provider) *Answerer {
	def := DefaultConfig()
	if cfg.ContextChunks <= 0 {
		cfg.ContextChunks = def.ContextChunks
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = def.ContextTokens
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature <= 0 || cfg.Temperature > 0.3 {
		cfg.Temperature = def.Temperature
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &Answerer{
		cfg:      cfg,
		provider: provider,
		cache:    expirable.NewLRU[string, *Answer](answerCacheSize, nil, cfg.CacheTTL),
	}
}

// countTokens measures text against the context budget, with a bytes/4
// fallback when the encoding cannot load.
func (a *Answerer) countTokens(text string) int {
	a.encOnce.Do(func() {
		a.enc, _ = tiktoken.GetEncoding(tokenEncoding)
	})
	if a.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(a.enc.Encode(text, nil, nil))
}

// Answer produces a grounded answer for a retrieval result.
// model optionally overrides the configured LLM for this request.
func (a *Answerer) Answer(ctx context.Context, namespace, query, model string, result *search.Result) (*Answer, error) {
	if greeting := normalizeGreeting(query); greeting {
		return &Answer{
			Answer:     "Hello! I have the repository indexed and ready. Ask me about its code, structure, or behavior.",
			Sources:    []Source{},
			Confidence: Confidence{Score: 1.0, Level: "high"},
			Intent:     string(search.IntentGeneral),
		}, nil
	}

	if model == "" {
		model = a.cfg.Model
	}
	cacheKey := namespace + "\x00" + query + "\x00" + model
	if cached, ok := a.cache.Get(cacheKey); ok {
		return cached, nil
	}

	intent := result.Plan.Intent
	if len(result.Candidates) == 0 {
		return &Answer{
			Answer:     NoInformationAnswer,
			Sources:    []Source{},
			Confidence: Confidence{Score: 0, Level: "none"},
			Intent:     string(intent),
		}, nil
	}

	selected := result.Candidates
	if limit := a.contextSize(intent); len(selected) > limit {
		selected = selected[:limit]
	}
	contextText, used := a.assembleContext(selected)

	instructions := intentInstructions[intent]
	user := fmt.Sprintf("Context from the repository:\n%s\n\nIntent: %s. %s\n\nQuestion: %s",
		contextText, intent, instructions, query)

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		User:        user,
		Model:       model,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	out := &Answer{
		Answer:     resp.Text,
		Sources:    citations(used),
		Confidence: confidenceFor(result.Candidates),
		Intent:     string(intent),
	}
	a.cache.Add(cacheKey, out)
	return out, nil
}

// contextSize adjusts the chunk budget by intent: tighter for
// documentation and general questions, wider for debugging.
func (a *Answerer) contextSize(intent search.Intent) int {
	n := a.cfg.ContextChunks
	switch intent {
	case search.IntentDocumentation, search.IntentGeneral:
		if n > 4 {
			return n - 4
		}
	case search.IntentDebugging:
		return n + 2
	}
	return n
}

// assembleContext formats candidates into numbered blocks under the token
// budget, dropping from the tail when over. Returns the context text and
// the candidates that made it into the window.
func (a *Answerer) assembleContext(candidates []*search.Candidate) (string, []*search.Candidate) {
	var blocks []string
	var used []*search.Candidate
	budget := a.cfg.ContextTokens

	for i, c := range candidates {
		block := fmt.Sprintf("[S%d] %s (L%d-%d):\n%s",
			i+1, c.Metadata.Path, c.Metadata.StartLine, c.Metadata.EndLine, c.Metadata.Text)

		cost := a.countTokens(block)
		if cost > budget {
			break
		}
		budget -= cost
		blocks = append(blocks, block)
		used = append(used, c)
	}

	return strings.Join(blocks, contextDelimiter), used
}

// citations deduplicates the context candidates by (path, line span) and
// returns them sorted by descending fused score.
func citations(used []*search.Candidate) []Source {
	ordered := make([]*search.Candidate, len(used))
	copy(ordered, used)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FusedScore > ordered[j].FusedScore
	})

	seen := make(map[string]bool, len(ordered))
	sources := make([]Source, 0, len(ordered))

	for _, c := range ordered {
		key := fmt.Sprintf("%s:%d-%d", c.Metadata.Path, c.Metadata.StartLine, c.Metadata.EndLine)
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, Source{
			File:     c.Metadata.Path,
			Lines:    fmt.Sprintf("%d-%d", c.Metadata.StartLine, c.Metadata.EndLine),
			Score:    round3(c.FusedScore),
			Category: c.Metadata.Category,
		})
	}
	return sources
}

// confidenceFor computes mean(top-5 fused scores) and buckets it:
// high >= 0.7, medium >= 0.4, low otherwise. It reads the frozen fused
// scores, not the rerank-boosted working scores.
func confidenceFor(candidates []*search.Candidate) Confidence {
	if len(candidates) == 0 {
		return Confidence{Score: 0, Level: "none"}
	}

	n := len(candidates)
	if n > 5 {
		n = 5
	}
	var sum float64
	for _, c := range candidates[:n] {
		score := c.FusedScore
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		sum += score
	}
	score := sum / float64(n)

	level := "low"
	switch {
	case score >= confidenceHigh:
		level = "high"
	case score >= confidenceMedium:
		level = "medium"
	}
	return Confidence{Score: round3(score), Level: level}
}

// normalizeGreeting reports whether the query is a bare greeting.
func normalizeGreeting(query string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	trimmed = strings.TrimRight(trimmed, "!?. ")
	return greetings[trimmed]
}

// round3 rounds to three decimals for stable response shapes.
func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
