package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/types"
)

// RerankService is a minimal REST client to a cross-encoder rerank endpoint
// (cohere-compatible request/response shape).
type RerankService struct {
	endpoint   string
	apiKey     string
	model      string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

func NewRerankService(cfg config.RerankerConfig) *RerankService {
	return &RerankService{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank calls the provider with a fixed retry budget on transient failures.
func (s *RerankService) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	var results []RerankResult
	err := retryFixed(ctx, s.maxRetries, s.retryDelay, func() error {
		var callErr error
		results, callErr = s.rerankOnce(ctx, query, documents, topN)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *RerankService) rerankOnce(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	body, err := json.Marshal(rerankRequest{
		Model:     s.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: rerank returned status %d", types.ErrProviderTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
	}
	var parsed rerankResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProviderMalformed, err)
	}

	results := make([]RerankResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("%w: result index %d out of range", types.ErrProviderMalformed, r.Index)
		}
		results = append(results, RerankResult{Index: r.Index, Score: r.RelevanceScore})
	}
	return results, nil
}

// retryFixed runs op up to maxAttempts times with a fixed delay between
// attempts. Transient errors are retried; anything else stops immediately.
func retryFixed(ctx context.Context, maxAttempts int, delay time.Duration, op func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !types.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
