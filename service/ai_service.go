package service

import (
	"context"

	"github.com/baoteam/rag-bot/types"
)

// ModelTier selects the cost/quality tradeoff for a completion. The pipeline
// tries TierPrimary first and escalates to TierFallback on provider errors.
type ModelTier int

const (
	TierPrimary ModelTier = iota
	TierFallback
)

// LanguageModel is the prompt -> completion capability.
type LanguageModel interface {
	Complete(ctx context.Context, messages []types.Message, tier ModelTier) (string, error)

	// CompleteJSON completes and unmarshals the response into out. Unparseable
	// output returns an error wrapping types.ErrProviderMalformed.
	CompleteJSON(ctx context.Context, messages []types.Message, tier ModelTier, out any) error

	// CompleteStream yields incremental tokens through handler.
	CompleteStream(ctx context.Context, messages []types.Message, tier ModelTier, handler types.StreamHandler) error
}

// Embedder is the text -> vector capability. Deterministic per input, batched.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RerankResult is one reranked document: its index in the request slice and
// the provider's relevance score.
type RerankResult struct {
	Index int
	Score float64
}

// Reranker orders documents by relevance to a query and keeps the top n.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}
