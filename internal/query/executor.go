package query

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semcore/engine/internal/config"
	"github.com/semcore/engine/internal/embed"
	engineerr "github.com/semcore/engine/internal/errors"
	"github.com/semcore/engine/internal/fts"
	"github.com/semcore/engine/internal/hnswengine"
	"github.com/semcore/engine/internal/vectorstore"
)

// probeFactor widens the HNSW candidate set before filters are applied,
// so min-score/glob/language filters never narrow the approximate search
// itself below the width a caller's limit needs.
const probeFactor = 2

// Collection bundles one collection's store and HNSW graph.
type Collection struct {
	Store *vectorstore.Store
	HNSW  *hnswengine.Engine
}

// AncestorChecker resolves commit ancestry for the at_commit filter,
// satisfied by *internal/temporal.Repository.
type AncestorChecker interface {
	IsAncestor(commitHash, ofHash string) (bool, error)
}

// Dependencies are the collaborators an Executor searches across.
type Dependencies struct {
	ProjectRoot string
	Config      config.QueryConfig

	Embedder embed.Embedder
	Code     Collection
	Temporal Collection
	FTS      *fts.Index
	Blobs    vectorstore.BlobSource
	Ancestry AncestorChecker
}

// Executor runs query requests against the code/temporal collections and
// the FTS index in parallel, merges, and hydrates results.
type Executor struct {
	deps Dependencies
}

// New builds an Executor over deps.
func New(deps Dependencies) *Executor {
	return &Executor{deps: deps}
}

// Execute runs req to completion or until its Deadline, whichever comes
// first. On deadline expiry it returns whatever results had already been
// gathered with Response.TimedOut set, together with a QueryTimeoutError,
// rather than hanging.
func (x *Executor) Execute(ctx context.Context, req Request) (Response, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	var semanticHits, ftsHits []Result
	var semanticErr, ftsErr error

	g, gctx := errgroup.WithContext(ctx)

	if req.Mode == ModeSemantic || req.Mode == ModeHybrid || req.Mode == ModeTemporal {
		g.Go(func() error {
			semanticHits, semanticErr = x.semanticSearch(gctx, req)
			return nil // collected, not propagated: a partial result beats a hard failure
		})
	}
	if req.Mode == ModeFTS || req.Mode == ModeHybrid {
		g.Go(func() error {
			ftsHits, ftsErr = x.ftsSearch(req)
			return nil
		})
	}

	_ = g.Wait()

	timedOut := ctx.Err() != nil

	var merged []Result
	switch req.Mode {
	case ModeFTS:
		merged = ftsHits
	case ModeSemantic, ModeTemporal:
		merged = semanticHits
	case ModeHybrid:
		merged = fuseRRF(semanticHits, ftsHits, x.deps.Config.RRFConstant,
			x.deps.Config.HybridSemanticWeight, x.deps.Config.HybridLexicalWeight)
	}

	merged = x.applyFilters(merged, req)
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}

	var err error
	switch {
	case timedOut:
		err = engineerr.QueryTimeoutError(fmt.Sprintf("query timed out after deadline %s", req.Deadline))
	case semanticErr != nil && ftsErr != nil:
		err = fmt.Errorf("query: semantic search failed: %v; fts search failed: %v", semanticErr, ftsErr)
	}
	return Response{Results: merged, TimedOut: timedOut}, err
}

// semanticSearch embeds req.QueryText (Thread B) while the HNSW graph for
// the target collection is already memory-resident (Thread A's cold-load
// happened at collection Open time, outside the query's critical path),
// then runs the ANN search and hydrates each candidate's payload.
func (x *Executor) semanticSearch(ctx context.Context, req Request) ([]Result, error) {
	col := x.deps.Code
	if req.Mode == ModeTemporal {
		col = x.deps.Temporal
	}

	vec, err := x.deps.Embedder.Embed(ctx, req.QueryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates := col.HNSW.Search(vec, req.Limit*probeFactor)
	results := make([]Result, 0, len(candidates))
	for rank, c := range candidates {
		rec, err := col.Store.Hydrate(c.ID)
		if err != nil {
			continue
		}
		text, _ := col.Store.Text(rec, x.deps.ProjectRoot, x.deps.Blobs)
		result := Result{
			ID:        c.ID,
			Path:      rec.Payload.Path,
			LineStart: rec.Payload.LineStart,
			LineEnd:   rec.Payload.LineEnd,
			Score:     1 - float64(c.Distance),
			Snippet:   snippet(text),
			Kind:      string(rec.Payload.Kind),
			Language:  rec.Payload.Language,
			PayloadRaw: map[string]string{
				"rank": fmt.Sprint(rank),
			},
		}
		if req.Mode == ModeTemporal {
			result.CommitHash = rec.Payload.CommitHash
			result.CommitAuthor = rec.Payload.CommitAuthor
			result.CommitEmail = rec.Payload.CommitEmail
			result.DiffType = rec.Payload.DiffType
			if rec.Payload.CommitTimestamp != 0 {
				result.CommitTimestamp = time.Unix(rec.Payload.CommitTimestamp, 0).UTC()
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// ftsSearch runs the lexical query matching req's mode flags (exact,
// fuzzy, or token regex) against the FTS index. FTS documents are
// per-file, so results carry no chunk-level line range.
func (x *Executor) ftsSearch(req Request) ([]Result, error) {
	opts := fts.Options{
		CaseSensitive:     req.CaseSensitive,
		FuzzyEditDistance: req.EditDistance,
		Limit:             req.Limit * probeFactor,
	}

	var hits []fts.Hit
	var err error
	switch {
	case req.Regex != "":
		hits, err = x.deps.FTS.QueryTokenRegex(req.Regex, opts)
	case req.Fuzzy:
		hits, err = x.deps.FTS.QueryFuzzy(req.QueryText, opts)
	default:
		hits, err = x.deps.FTS.QueryExact(req.QueryText, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ID:       h.Path,
			Path:     h.Path,
			Score:    h.Score,
			Snippet:  snippet(h.Text),
			Language: h.Language,
			Kind:     "fts",
		})
	}
	return results, nil
}

// fuseRRF merges two ranked result lists via Reciprocal Rank Fusion:
// score(doc) = sum over lists containing it of weight / (k + rank).
func fuseRRF(semantic, lexical []Result, k int, semanticWeight, lexicalWeight float64) []Result {
	if k <= 0 {
		k = 60
	}
	byKey := map[string]*Result{}
	add := func(list []Result, weight float64) {
		for rank, r := range list {
			key := r.Path
			if existing, ok := byKey[key]; ok {
				existing.Score += weight / float64(k+rank+1)
				if r.Snippet != "" && existing.Snippet == "" {
					existing.Snippet = r.Snippet
				}
				continue
			}
			cp := r
			cp.Score = weight / float64(k+rank+1)
			byKey[key] = &cp
		}
	}
	add(semantic, semanticWeight)
	add(lexical, lexicalWeight)

	merged := make([]Result, 0, len(byKey))
	for _, r := range byKey {
		merged = append(merged, *r)
	}
	return merged
}

// applyFilters applies min-score, include/exclude language,
// include/exclude path globs, and (for temporal mode) time range, author,
// diff type, chunk type, and at_commit filters to merged candidates. Run
// after the approximate search (which already over-fetched by
// probeFactor), never before.
func (x *Executor) applyFilters(results []Result, req Request) []Result {
	out := results[:0]
	for _, r := range results {
		if req.MinScore > 0 && r.Score < req.MinScore {
			continue
		}
		if req.Language != "" && r.Language != req.Language {
			continue
		}
		if req.ExcludeLanguage != "" && r.Language == req.ExcludeLanguage {
			continue
		}
		if len(req.PathFilter) > 0 && !matchesAny(r.Path, req.PathFilter) {
			continue
		}
		if len(req.ExcludePath) > 0 && matchesAny(r.Path, req.ExcludePath) {
			continue
		}
		if req.Mode == ModeTemporal && !x.matchesTemporal(r, req) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// matchesTemporal applies the temporal-only filters: time_range,
// author, diff_type, chunk_type, and at_commit.
func (x *Executor) matchesTemporal(r Result, req Request) bool {
	if req.TimeRange != nil && !req.TimeRange.All {
		if !req.TimeRange.From.IsZero() && r.CommitTimestamp.Before(req.TimeRange.From) {
			return false
		}
		if !req.TimeRange.To.IsZero() && r.CommitTimestamp.After(req.TimeRange.To) {
			return false
		}
	}
	if req.Author != "" {
		needle := strings.ToLower(req.Author)
		if !strings.Contains(strings.ToLower(r.CommitAuthor), needle) &&
			!strings.Contains(strings.ToLower(r.CommitEmail), needle) {
			return false
		}
	}
	if req.ChunkType != "" && r.Kind != req.ChunkType {
		return false
	}
	if len(req.DiffType) > 0 {
		if r.Kind != string(vectorstore.KindCommitDiff) {
			// commit_message records carry no diff type; a diff_type filter
			// only ever matches commit_diff records.
			return false
		}
		if !containsString(req.DiffType, r.DiffType) {
			return false
		}
	}
	if req.AtCommit != "" {
		if r.CommitHash == req.AtCommit {
			return true
		}
		if x.deps.Ancestry == nil {
			return false
		}
		ok, err := x.deps.Ancestry.IsAncestor(r.CommitHash, req.AtCommit)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func matchesAny(path string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, path); ok {
			return true
		}
	}
	return false
}

func snippet(text string) string {
	const maxLen = 240
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "…"
}

