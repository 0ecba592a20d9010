package embed

import (
	"context"
	"fmt"
	"strings"
)

// ProviderType identifies an embedding backend.
type ProviderType string

const (
	// ProviderOllama calls a local/remote Ollama server over HTTP.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses a deterministic hash-based embedder. Useful for
	// tests and for BM25-only operation when no network backend is reachable.
	ProviderStatic ProviderType = "static"
)

// Config selects and configures an embedding provider. It is filled by the
// caller (the engine's injected configuration) and never reads environment
// variables or files itself.
type Config struct {
	// Provider selects the backend. Defaults to ProviderOllama.
	Provider ProviderType

	// Model is the embedding model identifier passed to the provider.
	Model string

	// Ollama holds provider-specific settings, applied when Provider is
	// ProviderOllama. Zero fields fall back to DefaultOllamaConfig values.
	Ollama OllamaConfig

	// CacheQueries wraps the embedder with an LRU query cache. Defaults to
	// true when nil.
	CacheQueries *bool

	// CacheSize bounds the query cache when CacheQueries is enabled.
	CacheSize int
}

func (c Config) cacheEnabled() bool {
	if c.CacheQueries == nil {
		return true
	}
	return *c.CacheQueries
}

// NewEmbedder constructs the embedder selected by cfg. Provider selection is
// static: there is no runtime fallback chain. A caller that wants graceful
// degradation must catch the error and retry with ProviderStatic explicitly;
// the dispatcher treats construction failure as a PermanentBackendError
// configuration.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	var embedder Embedder
	var err error

	switch cfg.Provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()

	case ProviderOllama, "":
		oc := cfg.Ollama
		if oc.Model == "" && cfg.Model != "" {
			oc.Model = cfg.Model
		}
		embedder, err = NewOllamaEmbedder(ctx, oc)

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("construct %s embedder: %w", cfg.Provider, err)
	}

	if cfg.cacheEnabled() {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}
	return embedder, nil
}

// ParseProvider converts a string to ProviderType, defaulting to Ollama for
// unrecognized values.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return ProviderStatic
	case "ollama":
		return ProviderOllama
	default:
		return ProviderOllama
	}
}

// ValidProviders lists the provider names NewEmbedder accepts.
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderStatic)}
}

// EmbedderInfo summarizes a constructed embedder for diagnostics.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo inspects embedder, unwrapping a CachedEmbedder to find the
// underlying provider type.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}
	return info
}
