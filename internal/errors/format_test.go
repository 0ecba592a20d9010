package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSurface_KindMessageAndHint(t *testing.T) {
	err := StaleRecordError("blob a1b2c3 no longer resolves", nil).
		WithSuggestion("run reconcile")

	got := Surface(err)
	assert.Equal(t, "StaleRecordError: blob a1b2c3 no longer resolves (hint: run reconcile)", got)
}

func TestSurface_NoHintOmitsParenthetical(t *testing.T) {
	got := Surface(QueryTimeoutError("query exceeded 10s deadline"))
	assert.Equal(t, "QueryTimeoutError: query exceeded 10s deadline", got)
}

func TestSurface_PlainErrorFallsBackToInternal(t *testing.T) {
	got := Surface(errors.New("disk exploded"))
	assert.Equal(t, "INTERNAL: disk exploded", got)
}

func TestSurface_WrappedEngineErrorStillStructured(t *testing.T) {
	inner := PermanentBackendError("model not found", nil)
	wrapped := fmt.Errorf("dispatch batch 3: %w", inner)

	got := Surface(wrapped)
	assert.Contains(t, got, "PermanentBackendError:")
	assert.Contains(t, got, "model not found")
}

func TestSurface_Nil(t *testing.T) {
	assert.Empty(t, Surface(nil))
}

func TestLogAttrs_CarriesKindCodeAndDetails(t *testing.T) {
	err := StorageError("vector file unreadable", errors.New("permission denied")).
		WithDetail("path", "vectors/ab/cd/vector_x.json")

	attrs := LogAttrs(err)
	byKey := map[string]string{}
	retryable := true
	for _, a := range attrs {
		if a.Key == "retryable" {
			retryable = a.Value.Bool()
			continue
		}
		byKey[a.Key] = a.Value.String()
	}

	assert.Equal(t, string(KindStorage), byKey["kind"])
	assert.NotEmpty(t, byKey["code"])
	assert.Equal(t, "permission denied", byKey["cause"])
	assert.Equal(t, "vectors/ab/cd/vector_x.json", byKey["detail.path"])
	assert.False(t, retryable)
}

func TestLogAttrs_PlainError(t *testing.T) {
	attrs := LogAttrs(errors.New("boom"))
	assert.Len(t, attrs, 1)
	assert.Equal(t, "error", attrs[0].Key)
}

func TestLogAttrs_Nil(t *testing.T) {
	assert.Nil(t, LogAttrs(nil))
}
