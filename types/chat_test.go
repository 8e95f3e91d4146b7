package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseText(t *testing.T) {
	r := &ChatResponse{Answer: "the answer", Reference: "[1]. [Video](url) 00:01:05"}
	out := r.ResponseText(false, "fallback")
	assert.Contains(t, out, "the answer")
	assert.Contains(t, out, "### Reference")
	assert.Contains(t, out, "[1]. [Video](url)")
}

func TestResponseTextNoReference(t *testing.T) {
	r := &ChatResponse{Answer: "just an answer"}
	assert.Equal(t, "just an answer", r.ResponseText(false, "fallback"))
}

func TestResponseTextSearchMode(t *testing.T) {
	r := &ChatResponse{Reference: "results"}
	assert.Equal(t, "results", r.ResponseText(true, "fallback"))

	empty := &ChatResponse{}
	assert.Equal(t, "fallback", empty.ResponseText(true, "fallback"))
	assert.Equal(t, "fallback", empty.ResponseText(false, "fallback"))
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsTransient(ErrProviderTransient))
	assert.False(t, IsTransient(ErrProviderMalformed))
	assert.True(t, IsMalformed(ErrProviderMalformed))
	assert.False(t, IsMalformed(ErrValidation))
}

func TestIsMetadataFilterKey(t *testing.T) {
	assert.True(t, IsMetadataFilterKey(MetaSourceKey))
	assert.True(t, IsMetadataFilterKey(MetaPubYearMonthKey))
	assert.False(t, IsMetadataFilterKey("chunk-no"))
	assert.False(t, IsMetadataFilterKey("bogus"))
}
