package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// StaticDimensions is the static embedder's output width. It equals
// DefaultDimensions, EmbeddingGemma's width, so a collection indexed
// against an EmbeddingGemma-backed Ollama provider can fall back to this
// one without a rebuild.
const StaticDimensions = 768

// Feature weights: identifier tokens carry most of the signal, character
// trigrams add partial-word overlap ("authenticate" vs "authentication").
const (
	tokenFeatureWeight   = 0.7
	trigramFeatureWeight = 0.3
)

// codeKeywords are dropped from the token features: they appear in almost
// every chunk of their language and would dominate every similarity.
var codeKeywords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// StaticEmbedder is the deterministic offline fallback: an embedding is a
// hashed bag of identifier subtokens and character trigrams, not model
// output. Semantic quality is far below a real provider; determinism,
// zero network, and zero model downloads are the point — tests, CI, and
// air-gapped indexing all run on it.
type StaticEmbedder struct {
	closed atomic.Bool
}

// NewStaticEmbedder returns a ready embedder; there is nothing to warm up.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed hashes text's features into a unit-length vector. Empty or
// whitespace-only input embeds to the zero vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("static embedder is closed")
	}

	vec := make([]float32, StaticDimensions)
	text = strings.TrimSpace(text)
	if text == "" {
		return vec, nil
	}

	for _, tok := range identTokens(text) {
		vec[featureBucket(tok)] += tokenFeatureWeight
	}
	for _, gram := range charTrigrams(text) {
		vec[featureBucket(gram)] += trigramFeatureWeight
	}
	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text independently; there is no batching win for
// pure hashing.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *StaticEmbedder) Dimensions() int   { return StaticDimensions }
func (e *StaticEmbedder) ModelName() string { return "static768" }

func (e *StaticEmbedder) Available(_ context.Context) bool {
	return !e.closed.Load()
}

func (e *StaticEmbedder) Close() error {
	e.closed.Store(true)
	return nil
}

// identTokens walks text once, emitting lowercased identifier subtokens:
// alphanumeric runs split at underscores and at lower-to-upper case
// boundaries, with language keywords dropped.
func identTokens(text string) []string {
	var toks []string
	var cur []rune

	flush := func() {
		if len(cur) == 0 {
			return
		}
		t := strings.ToLower(string(cur))
		cur = cur[:0]
		if !codeKeywords[t] {
			toks = append(toks, t)
		}
	}

	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return toks
}

// charTrigrams lowercases text, strips everything but letters and digits,
// and returns its 3-byte sliding windows.
func charTrigrams(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) < 3 {
		return nil
	}

	grams := make([]string, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		grams = append(grams, s[i:i+3])
	}
	return grams
}

// featureBucket maps a feature string to its vector index via FNV-1a.
func featureBucket(s string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % StaticDimensions)
}
