package chunk

import (
	"math"
	"strings"
)

// enrich computes the derived metadata for a chunk: word count, size
// category, language-aware boolean flags, and the complexity proxy.
func enrich(ch *Chunk) {
	ch.WordCount = len(strings.Fields(ch.Text))
	ch.SizeCategory = sizeCategoryFor(ch.WordCount)

	p := patternsFor(ch.Language)
	ch.HasClassDef = p.classDef != nil && p.classDef.MatchString(ch.Text)
	ch.HasFnDef = p.fnDef != nil && p.fnDef.MatchString(ch.Text)
	ch.HasImports = p.imports != nil && p.imports.MatchString(ch.Text)
	ch.HasTests = p.tests != nil && p.tests.MatchString(ch.Text)

	ch.Complexity = complexityScore(ch.Text)
}

// complexityScore is clip(1 + floor(log2(1 + branches + loops + calls/4)), 1, 10).
// The counts are cheap regex hits; the score is a monotone proxy, not exact.
func complexityScore(text string) int {
	branches := len(complexityTokens.FindAllStringIndex(text, -1))
	calls := len(callToken.FindAllStringIndex(text, -1))

	raw := 1 + int(math.Floor(math.Log2(float64(1+branches+calls/4))))
	if raw < 1 {
		return 1
	}
	if raw > 10 {
		return 10
	}
	return raw
}
