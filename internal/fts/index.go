// Package fts is the lexical full-text index: one bleve document per file
// (not per chunk), offering exact, fuzzy, and token-level regex query
// modes over a code-aware token stream. It is backed entirely by its own
// on-disk bleve index under fts_index/, independent of the vector store.
package fts

import (
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	_ "github.com/blevesearch/bleve/v2/config"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	fieldPath     = "path"
	fieldLanguage = "language"
	fieldText     = "text"
	fieldTokensCI = "tokens_ci"
	fieldTokensCS = "tokens_cs"

	analyzerTokensCI = "code_ci"
	analyzerTokensCS = "code_cs"
)

// maxFuzziness is bleve's built-in Levenshtein-automaton ceiling. The spec
// asks for edit distance 0-3; requests above 2 are clamped here and the
// clamp is surfaced to callers via Index.MaxFuzziness.
const maxFuzziness = 2

// Document is one file's FTS-indexable content.
type Document struct {
	Path     string
	Language string
	Text     string
}

// Hit is one match from a query, carrying enough to hydrate a full result
// via the vector store / file finder.
type Hit struct {
	Path     string
	Language string
	Text     string
	Score    float64
}

// Index is the file-granularity lexical index.
type Index struct {
	bi bleve.Index
}

// bleveDoc is the document shape actually handed to bleve.Index.
type bleveDoc struct {
	Path      string `json:"path"`
	Language  string `json:"language"`
	Text      string `json:"text"`
	TokensCI  string `json:"tokens_ci"`
	TokensCS  string `json:"tokens_cs"`
}

// Open opens the bleve index at path, creating it with the engine's
// mapping if it doesn't exist yet.
func Open(path string) (*Index, error) {
	bi, err := bleve.Open(path)
	if err == nil {
		return &Index{bi: bi}, nil
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return nil, fmt.Errorf("fts: open index at %s: %w", path, err)
	}

	bi, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("fts: create index at %s: %w", path, err)
	}
	return &Index{bi: bi}, nil
}

func buildMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()

	if err := m.AddCustomAnalyzer(analyzerTokensCI, map[string]interface{}{
		"type":          "custom",
		"tokenizer":     "unicode",
		"token_filters": []string{"to_lower"},
	}); err != nil {
		panic(fmt.Sprintf("fts: register %s analyzer: %v", analyzerTokensCI, err))
	}
	if err := m.AddCustomAnalyzer(analyzerTokensCS, map[string]interface{}{
		"type":      "custom",
		"tokenizer": "unicode",
	}); err != nil {
		panic(fmt.Sprintf("fts: register %s analyzer: %v", analyzerTokensCS, err))
	}

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"

	textStoredOnly := bleve.NewTextFieldMapping()
	textStoredOnly.Index = false
	textStoredOnly.Store = true

	tokensCIField := bleve.NewTextFieldMapping()
	tokensCIField.Analyzer = analyzerTokensCI

	tokensCSField := bleve.NewTextFieldMapping()
	tokensCSField.Analyzer = analyzerTokensCS

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldPath, keywordField)
	doc.AddFieldMappingsAt(fieldLanguage, keywordField)
	doc.AddFieldMappingsAt(fieldText, textStoredOnly)
	doc.AddFieldMappingsAt(fieldTokensCI, tokensCIField)
	doc.AddFieldMappingsAt(fieldTokensCS, tokensCSField)

	m.DefaultMapping = doc
	m.DefaultAnalyzer = analyzerTokensCI
	return m
}

// MaxFuzziness is the largest edit distance the index can actually search
// at; requests above it are silently clamped.
func (idx *Index) MaxFuzziness() int { return maxFuzziness }

// IndexFile replaces path's document with doc's content. Re-indexing an
// existing path overwrites it; this is how incremental updates work.
func (idx *Index) IndexFile(doc Document) error {
	// Each token field also carries the text's whole words, so an
	// identifier such as MaxRetries or test_user is itself a token next
	// to its camelCase/snake_case subtokens.
	bd := bleveDoc{
		Path:     doc.Path,
		Language: doc.Language,
		Text:     doc.Text,
		TokensCI: strings.Join(TokenizeCode(doc.Text), " ") + " " + doc.Text,
		TokensCS: strings.Join(TokenizeCodeCased(doc.Text), " ") + " " + doc.Text,
	}
	if err := idx.bi.Index(doc.Path, bd); err != nil {
		return fmt.Errorf("fts: index %s: %w", doc.Path, err)
	}
	return nil
}

// DeleteFile removes path's document. Deleting an unindexed path is a
// no-op, matching bleve's own semantics.
func (idx *Index) DeleteFile(path string) error {
	if err := idx.bi.Delete(path); err != nil {
		return fmt.Errorf("fts: delete %s: %w", path, err)
	}
	return nil
}

// DocCount reports the number of indexed files, for the "FTS document set
// equals the code-collection file set" invariant check.
func (idx *Index) DocCount() (uint64, error) {
	return idx.bi.DocCount()
}

// Close releases the underlying bleve index.
func (idx *Index) Close() error {
	return idx.bi.Close()
}

// Options tunes a single query.
type Options struct {
	CaseSensitive bool
	FuzzyEditDistance int
	Limit         int
}

func (o Options) field() string {
	if o.CaseSensitive {
		return fieldTokensCS
	}
	return fieldTokensCI
}

func (o Options) normalizeTerm(term string) string {
	if o.CaseSensitive {
		return term
	}
	return strings.ToLower(term)
}

func (o Options) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}

// QueryExact runs an exact (optionally case-sensitive) token match.
func (idx *Index) QueryExact(term string, opts Options) ([]Hit, error) {
	q := bleve.NewTermQuery(opts.normalizeTerm(term))
	q.SetField(opts.field())
	return idx.run(q, opts)
}

// QueryFuzzy runs a fuzzy match at the requested edit distance, clamped to
// maxFuzziness.
func (idx *Index) QueryFuzzy(term string, opts Options) ([]Hit, error) {
	dist := opts.FuzzyEditDistance
	if dist <= 0 {
		dist = 1
	}
	if dist > maxFuzziness {
		dist = maxFuzziness
	}
	q := bleve.NewFuzzyQuery(opts.normalizeTerm(term))
	q.SetField(opts.field())
	q.Fuzziness = dist
	return idx.run(q, opts)
}

// QueryTokenRegex compiles pattern and matches it against individual
// indexed tokens — never whole lines or raw file content. This is the
// bright-line constraint that distinguishes it from grep: `def\s+\w+`
// cannot match here because no single token contains whitespace; `def`,
// `test_.*`, `TODO` do, because bleve's regexp query runs per indexed
// term, not per document.
func (idx *Index) QueryTokenRegex(pattern string, opts Options) ([]Hit, error) {
	q := bleve.NewRegexpQuery(pattern)
	q.SetField(opts.field())
	return idx.run(q, opts)
}

func (idx *Index) run(q query.Query, opts Options) ([]Hit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = opts.limit()
	req.Fields = []string{fieldPath, fieldLanguage, fieldText}

	result, err := idx.bi.Search(req)
	if err != nil {
		return nil, fmt.Errorf("fts: search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{
			Path:     stringField(h.Fields, fieldPath),
			Language: stringField(h.Fields, fieldLanguage),
			Text:     stringField(h.Fields, fieldText),
			Score:    h.Score,
		})
	}
	return hits, nil
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
