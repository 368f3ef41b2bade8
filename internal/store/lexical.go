package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	index "github.com/blevesearch/bleve_index_api"
)

const (
	// CodeTokenizerName is the name of the custom code tokenizer.
	CodeTokenizerName = "code_tokenizer"

	// CodeStopFilterName is the name of the custom stop word filter.
	CodeStopFilterName = "code_stop"

	// CodeAnalyzerName is the name of the custom code analyzer.
	CodeAnalyzerName = "code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(CodeStopFilterName, codeStopFilterConstructor)
}

// BM25 parameters of the retrieval contract. Bleve's BM25 scorer uses the
// same classical values and does not expose them as knobs, so the config
// is validated against these rather than tuning the scorer.
const (
	BM25K1 = 1.2
	BM25B  = 0.75
)

// LexicalConfig configures the lexical index.
type LexicalConfig struct {
	// K1 is the term frequency saturation parameter. Must equal BM25K1.
	K1 float64

	// B is the length normalization parameter. Must equal BM25B.
	B float64

	// StopWords lists the code stop words. NewLexicalIndex does not read
	// it: the analyzer always filters DefaultCodeStopWords.
	StopWords []string
}

// DefaultLexicalConfig returns the BM25 parameters the retrieval contract
// fixes: k1=1.2, b=0.75.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		K1:        BM25K1,
		B:         BM25B,
		StopWords: DefaultCodeStopWords,
	}
}

// DefaultCodeStopWords contains programming keywords to filter out.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// Document is one entry of the lexical corpus.
type Document struct {
	ID      string
	Content string
}

// LexicalResult is a single keyword search result.
type LexicalResult struct {
	DocID string
	Score float64
}

// LexicalIndex is an in-memory keyword index over one namespace's chunk
// corpus, wrapping Bleve with the code analyzer. Instances are built from
// a full corpus and are immutable afterwards; refreshes create a new index.
type LexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	docs   int
	closed bool
}

// NewLexicalIndex builds an in-memory BM25 index over the corpus.
// Zero-value K1/B take the contract defaults; any other values are
// rejected because the underlying scorer cannot honor them.
func NewLexicalIndex(cfg LexicalConfig, docs []*Document) (*LexicalIndex, error) {
	if cfg.K1 == 0 {
		cfg.K1 = BM25K1
	}
	if cfg.B == 0 {
		cfg.B = BM25B
	}
	if cfg.K1 != BM25K1 || cfg.B != BM25B {
		return nil, fmt.Errorf("unsupported BM25 parameters k1=%v b=%v: scorer fixes k1=%v b=%v", cfg.K1, cfg.B, BM25K1, BM25B)
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	batch := idx.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, map[string]string{"content": doc.Content}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("execute batch: %w", err)
	}

	return &LexicalIndex{index: idx, docs: len(docs)}, nil
}

// createIndexMapping builds the Bleve mapping with the code analyzer and
// BM25 relevance scoring.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.ScoringModel = index.BM25Scoring

	err := indexMapping.AddCustomAnalyzer(CodeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": CodeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			CodeStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = CodeAnalyzerName
	return indexMapping, nil
}

// Search returns documents matching the query, ranked by relevance.
func (l *LexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit

	result, err := l.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &LexicalResult{
			DocID: hit.ID,
			Score: hit.Score,
		})
	}
	return results, nil
}

// DocCount returns the number of indexed documents.
func (l *LexicalIndex) DocCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.docs
}

// Close closes the index.
func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}

// codeTokenizerConstructor creates the code tokenizer for Bleve.
func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

// bleveCodeTokenizer implements analysis.Tokenizer for code-aware tokenization.
type bleveCodeTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}

// codeStopFilterConstructor creates the code stop word filter for Bleve.
func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveCodeStopFilter{
		stopWords: BuildStopWordMap(DefaultCodeStopWords),
	}, nil
}

// bleveCodeStopFilter implements analysis.TokenFilter for code stop words.
type bleveCodeStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveCodeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
