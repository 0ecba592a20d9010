// Package config defines the engine's injected configuration. It never
// reads environment variables or files itself — resolving a user-facing
// config file or flags into this struct is a job for the CLI layer.
// WithDefaults fills zero-valued fields.
package config

import "time"

// Config is the complete set of tunables the engine core accepts.
type Config struct {
	// Embedding selects and configures the embedding provider.
	Embedding EmbeddingConfig

	// Chunking controls the fixed-width chunker.
	Chunking ChunkConfig

	// Dispatch controls the embedding dispatcher's batching/concurrency.
	Dispatch DispatchConfig

	// HNSW controls the vector index build/rebuild behavior.
	HNSW HNSWConfig

	// FTS controls the lexical index.
	FTS FTSConfig

	// Temporal controls the git-history indexer.
	Temporal TemporalConfig

	// Query controls the parallel query executor.
	Query QueryConfig

	// IndexDir is the root directory the vector store, FTS index, and
	// lock file live under, relative to the indexed project root.
	IndexDir string

	// Logging controls the engine's file-based structured logging.
	Logging LoggingConfig
}

// LoggingConfig controls the engine's file-based logging, mirroring
// internal/logging.Config's shape so Open can wire it in directly.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// FilePath is the rotating log file's path. Empty means
	// <IndexDir>/logs/engine.log, filled in by engine.Open.
	FilePath string

	// MaxSizeMB is the size in MB a log file reaches before rotation.
	MaxSizeMB int

	// MaxFiles is the number of rotated files kept alongside the active one.
	MaxFiles int

	// WriteToStderr additionally mirrors log output to stderr.
	WriteToStderr bool
}

// EmbeddingConfig selects and tunes the embedding provider. Mirrors
// internal/embed.Config's shape; kept separate so the top-level Config
// doesn't force every caller to import the embed package.
type EmbeddingConfig struct {
	Provider string // "ollama" (default) or "static"
	Model    string
	Host     string // Ollama host override
	Timeout  time.Duration
}

// ChunkConfig controls fixed-width overlap chunking.
type ChunkConfig struct {
	// SizeByModel maps an embedding model identifier to its chunk size in
	// bytes. Looked up by EmbeddingConfig.Model; unknown models fall back
	// to DefaultChunkSize.
	SizeByModel map[string]int

	// DefaultChunkSize is used when the model isn't in SizeByModel.
	DefaultChunkSize int

	// OverlapFraction is f in the stride formula k*(C - round(C*f)).
	OverlapFraction float64
}

// DispatchConfig controls the embedding dispatcher's pipeline.
type DispatchConfig struct {
	// TokenBudget is the per-request token budget (default 120,000).
	TokenBudget int

	// Workers is W_vec, the back-end embedding pool size. The front-end
	// file/chunk pool is sized Workers+2.
	Workers int

	// MaxRetries, InitialBackoff, MaxBackoff are not read by engine.Open:
	// the dispatchers it builds always use engineerr.DefaultRetryConfig.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HNSWConfig controls the HNSW Engine.
type HNSWConfig struct {
	// M and EfConstruction are the standard HNSW build parameters.
	M              int
	EfConstruction int
	EfSearch       int

	// RebuildChurnFraction is the soft-deleted/total-node ratio above which
	// finalise() performs a full rebuild instead of an incremental patch
	// (resolved in DESIGN.md).
	RebuildChurnFraction float64
}

// FTSConfig controls the bleve-backed lexical index.
type FTSConfig struct {
	// FuzzyMaxEditDistance is filled in by WithDefaults but not read by the
	// query path: fuzzy queries use the request's EditDistance, which the
	// fts package clamps to its own maxFuzziness.
	FuzzyMaxEditDistance int
}

// TemporalConfig controls the git-history indexer.
type TemporalConfig struct {
	// MaxCommits caps how many commits a full index walks per branch (0 =
	// unbounded).
	MaxCommits int

	// Branch selects which branch to walk; empty means the repository's
	// current HEAD.
	Branch string

	// SinceDate, if set, excludes commits authored before it.
	SinceDate *time.Time
}

// QueryConfig controls the parallel query executor.
type QueryConfig struct {
	// Timeout bounds a single query end to end (QueryTimeoutError).
	Timeout time.Duration

	// RRFConstant is k in RRF's score = weight / (k + rank).
	RRFConstant int

	// HybridSemanticWeight and HybridLexicalWeight weight RRF fusion
	// between the semantic and lexical result sets.
	HybridSemanticWeight float64
	HybridLexicalWeight  float64
}

const (
	defaultChunkSize        = 1500
	defaultOverlapFraction  = 0.15
	defaultTokenBudget      = 120_000
	defaultDispatchWorkers  = 8
	defaultHNSWM            = 16
	defaultHNSWEfConstruct  = 200
	defaultHNSWEfSearch     = 50
	defaultChurnFraction    = 0.3
	defaultFuzzyEditDist    = 2
	defaultQueryTimeout     = 10 * time.Second
	defaultRRFConstant      = 60
	defaultSemanticWeight   = 0.6
	defaultLexicalWeight    = 0.4
	defaultIndexDir         = ".index"
)

// WithDefaults returns a copy of cfg with every zero-valued field filled
// in.
func (cfg Config) WithDefaults() Config {
	if cfg.IndexDir == "" {
		cfg.IndexDir = defaultIndexDir
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxFiles <= 0 {
		cfg.Logging.MaxFiles = 5
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}

	if cfg.Chunking.DefaultChunkSize <= 0 {
		cfg.Chunking.DefaultChunkSize = defaultChunkSize
	}
	if cfg.Chunking.OverlapFraction <= 0 {
		cfg.Chunking.OverlapFraction = defaultOverlapFraction
	}
	if cfg.Chunking.SizeByModel == nil {
		cfg.Chunking.SizeByModel = map[string]int{}
	}

	if cfg.Dispatch.TokenBudget <= 0 {
		cfg.Dispatch.TokenBudget = defaultTokenBudget
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = defaultDispatchWorkers
	}

	if cfg.HNSW.M <= 0 {
		cfg.HNSW.M = defaultHNSWM
	}
	if cfg.HNSW.EfConstruction <= 0 {
		cfg.HNSW.EfConstruction = defaultHNSWEfConstruct
	}
	if cfg.HNSW.EfSearch <= 0 {
		cfg.HNSW.EfSearch = defaultHNSWEfSearch
	}
	if cfg.HNSW.RebuildChurnFraction <= 0 {
		cfg.HNSW.RebuildChurnFraction = defaultChurnFraction
	}

	if cfg.FTS.FuzzyMaxEditDistance <= 0 {
		cfg.FTS.FuzzyMaxEditDistance = defaultFuzzyEditDist
	}

	if cfg.Query.Timeout <= 0 {
		cfg.Query.Timeout = defaultQueryTimeout
	}
	if cfg.Query.RRFConstant <= 0 {
		cfg.Query.RRFConstant = defaultRRFConstant
	}
	if cfg.Query.HybridSemanticWeight <= 0 {
		cfg.Query.HybridSemanticWeight = defaultSemanticWeight
	}
	if cfg.Query.HybridLexicalWeight <= 0 {
		cfg.Query.HybridLexicalWeight = defaultLexicalWeight
	}

	return cfg
}

// ChunkSizeFor returns the configured chunk size for model, falling back to
// DefaultChunkSize when the model isn't in SizeByModel.
func (c ChunkConfig) ChunkSizeFor(model string) int {
	if size, ok := c.SizeByModel[model]; ok && size > 0 {
		return size
	}
	return c.DefaultChunkSize
}
