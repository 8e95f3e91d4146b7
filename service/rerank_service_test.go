package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRerankService(endpoint string, maxRetries int) *RerankService {
	return NewRerankService(config.RerankerConfig{
		Endpoint:   endpoint,
		Model:      "test-rerank",
		K:          4,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	})
}

func TestRerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-rerank", req.Model)
		assert.Len(t, req.Documents, 3)

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.4},
			},
		})
	}))
	defer server.Close()

	s := newTestRerankService(server.URL, 1)
	results, err := s.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Index)
	assert.Equal(t, 0, results[1].Index)
}

func TestRerankRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 0, "relevance_score": 1.0}},
		})
	}))
	defer server.Close()

	s := newTestRerankService(server.URL, 3)
	results, err := s.Rerank(context.Background(), "q", []string{"a"}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRerankRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	s := newTestRerankService(server.URL, 3)
	_, err := s.Rerank(context.Background(), "q", []string{"a"}, 1)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRerankMalformedNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	s := newTestRerankService(server.URL, 3)
	_, err := s.Rerank(context.Background(), "q", []string{"a"}, 1)
	require.Error(t, err)
	assert.True(t, types.IsMalformed(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRerankOutOfRangeIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 5, "relevance_score": 1.0}},
		})
	}))
	defer server.Close()

	s := newTestRerankService(server.URL, 1)
	_, err := s.Rerank(context.Background(), "q", []string{"a"}, 1)
	require.Error(t, err)
	assert.True(t, types.IsMalformed(err))
}

func TestRetryFixedContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryFixed(ctx, 3, time.Millisecond, func() error {
		t.Fatal("op must not run after cancel")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
