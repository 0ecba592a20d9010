package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_StaticProvider(t *testing.T) {
	embedder, err := NewEmbedder(context.Background(), Config{Provider: ProviderStatic})
	require.NoError(t, err)
	defer embedder.Close()

	assert.Equal(t, StaticDimensions, embedder.Dimensions())
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Config{Provider: "bogus"})
	assert.Error(t, err)
}

func TestNewEmbedder_CacheDisabled(t *testing.T) {
	noCache := false
	embedder, err := NewEmbedder(context.Background(), Config{
		Provider:     ProviderStatic,
		CacheQueries: &noCache,
	})
	require.NoError(t, err)
	defer embedder.Close()

	_, ok := embedder.(*CachedEmbedder)
	assert.False(t, ok, "embedder should not be wrapped when caching is disabled")
}

func TestNewEmbedder_CacheEnabledByDefault(t *testing.T) {
	embedder, err := NewEmbedder(context.Background(), Config{Provider: ProviderStatic})
	require.NoError(t, err)
	defer embedder.Close()

	_, ok := embedder.(*CachedEmbedder)
	assert.True(t, ok, "embedder should be wrapped with the query cache by default")
}

func TestParseProvider(t *testing.T) {
	tests := map[string]ProviderType{
		"ollama":  ProviderOllama,
		"STATIC":  ProviderStatic,
		"static":  ProviderStatic,
		"bogus":   ProviderOllama,
		"":        ProviderOllama,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseProvider(input), "input=%q", input)
	}
}

func TestGetInfo_UnwrapsCachedEmbedder(t *testing.T) {
	embedder, err := NewEmbedder(context.Background(), Config{Provider: ProviderStatic})
	require.NoError(t, err)
	defer embedder.Close()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.Equal(t, StaticDimensions, info.Dimensions)
}
