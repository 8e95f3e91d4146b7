package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeminiModelPerTier(t *testing.T) {
	s := &GeminiService{modelName: "gemini-1.5-pro", ecoModelName: "gemini-1.5-flash"}

	assert.Equal(t, "gemini-1.5-pro", s.modelFor(TierPrimary))
	assert.Equal(t, "gemini-1.5-flash", s.modelFor(TierFallback))
}

func TestGeminiModelPerTierWithoutEcoModel(t *testing.T) {
	s := &GeminiService{modelName: "gemini-1.5-pro"}

	// A single configured model serves both tiers.
	assert.Equal(t, "gemini-1.5-pro", s.modelFor(TierPrimary))
	assert.Equal(t, "gemini-1.5-pro", s.modelFor(TierFallback))
}
