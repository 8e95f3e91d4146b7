package service

import (
	"testing"

	"github.com/baoteam/rag-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalCompletion(t *testing.T) {
	var out struct {
		Score string `json:"score"`
	}
	err := UnmarshalCompletion(`{"score": "yes"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "yes", out.Score)
}

func TestUnmarshalCompletionStripsFences(t *testing.T) {
	var out struct {
		Type string `json:"type"`
	}
	text := "Here is the result:\n```json\n{\"type\": \"greeting\"}\n```\n"
	err := UnmarshalCompletion(text, &out)
	require.NoError(t, err)
	assert.Equal(t, "greeting", out.Type)
}

func TestUnmarshalCompletionMalformed(t *testing.T) {
	var out map[string]any
	err := UnmarshalCompletion("no json here", &out)
	assert.ErrorIs(t, err, types.ErrProviderMalformed)

	err = UnmarshalCompletion("{broken", &out)
	assert.ErrorIs(t, err, types.ErrProviderMalformed)
}
