// Package query implements the parallel query executor: parse filters,
// fan out semantic/lexical/temporal search in parallel, merge and rank,
// and hydrate payloads into snippets.
package query

import "time"

// Mode selects which backing index (or combination) a Request searches.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeFTS      Mode = "fts"
	ModeHybrid   Mode = "hybrid"
	ModeTemporal Mode = "temporal"
)

// AtCommitMode controls how the at_commit filter is interpreted.
type AtCommitMode string

const (
	// AtCommitFilterOnly restricts results to temporal records whose
	// commit is an ancestor of the given commit. Default: cheaper, and
	// matches the common "what did we say about this around commit X"
	// intent rather than a full checkout.
	AtCommitFilterOnly AtCommitMode = "filter_only"

	// AtCommitReconstruct additionally resolves code content via the git
	// blob at the given commit rather than HEAD.
	AtCommitReconstruct AtCommitMode = "reconstruct"
)

// TimeRange bounds commit timestamps for temporal queries. All == true
// means "no bound", overriding From/To.
type TimeRange struct {
	From time.Time
	To   time.Time
	All  bool
}

// Request is a structured query against one or both collections.
type Request struct {
	QueryText string
	Mode      Mode
	Limit     int
	MinScore  float64

	Language        string
	ExcludeLanguage string
	PathFilter      []string
	ExcludePath     []string

	// FTS-specific.
	CaseSensitive bool
	Fuzzy         bool
	EditDistance  int
	Regex         string

	// Temporal-specific.
	TimeRange *TimeRange
	DiffType  []string
	Author    string
	ChunkType string

	AtCommit     string
	AtCommitMode AtCommitMode

	Deadline time.Time
}

// Result is one ranked hit.
type Result struct {
	ID         string
	Path       string
	LineStart  int
	LineEnd    int
	Score      float64
	Snippet    string
	Kind       string
	Language   string
	PayloadRaw map[string]string

	// Temporal-only fields, populated when Kind is commit_message or
	// commit_diff.
	CommitHash      string
	CommitAuthor    string
	CommitEmail     string
	CommitTimestamp time.Time
	DiffType        string
}

// TimedOut reports whether this batch of results was cut short by the
// request's deadline. Checked by callers that need to distinguish a
// complete-but-empty result from a partial one.
type Response struct {
	Results  []Result
	TimedOut bool
}
