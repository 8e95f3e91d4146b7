package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testModel implements LanguageModel with a scripted completion function and
// records which tiers were called. streamFn, when set, overrides the default
// single-token streaming.
type testModel struct {
	mu       sync.Mutex
	fn       func(messages []types.Message, tier ModelTier) (string, error)
	streamFn func(tier ModelTier, handler types.StreamHandler) error
	tiers    []ModelTier
}

func fixedModel(response string) *testModel {
	return &testModel{fn: func([]types.Message, ModelTier) (string, error) {
		return response, nil
	}}
}

func (m *testModel) Complete(_ context.Context, messages []types.Message, tier ModelTier) (string, error) {
	m.mu.Lock()
	m.tiers = append(m.tiers, tier)
	m.mu.Unlock()
	return m.fn(messages, tier)
}

func (m *testModel) CompleteJSON(ctx context.Context, messages []types.Message, tier ModelTier, out any) error {
	text, err := m.Complete(ctx, messages, tier)
	if err != nil {
		return err
	}
	return UnmarshalCompletion(text, out)
}

func (m *testModel) CompleteStream(ctx context.Context, messages []types.Message, tier ModelTier, handler types.StreamHandler) error {
	if m.streamFn != nil {
		m.mu.Lock()
		m.tiers = append(m.tiers, tier)
		m.mu.Unlock()
		return m.streamFn(tier, handler)
	}
	text, err := m.Complete(ctx, messages, tier)
	if err != nil {
		return err
	}
	handler(text)
	return nil
}

func (m *testModel) calledTiers() []ModelTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ModelTier(nil), m.tiers...)
}

// testIndex implements database.VectorIndex with canned search hits.
type testIndex struct {
	hits    []types.ScoredDocument
	err     error
	lastK   int
	filters map[string]string
	addErr  error
	added   []types.Document
	deleted [][]string
}

func (i *testIndex) AddDocuments(_ context.Context, docs []types.Document, _ [][]float32) error {
	if i.addErr != nil {
		return i.addErr
	}
	i.added = append(i.added, docs...)
	return nil
}

func (i *testIndex) Search(_ context.Context, _ []float32, k int, filter map[string]string) ([]types.ScoredDocument, error) {
	i.lastK = k
	i.filters = filter
	return i.hits, i.err
}

func (i *testIndex) DeleteByMetadata(_ context.Context, key string, values []string) error {
	i.deleted = append(i.deleted, append([]string{key}, values...))
	return nil
}

type testEmbedder struct {
	err   error
	texts []string
}

func (e *testEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.texts = append(e.texts, texts...)
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

type testReranker struct {
	results []RerankResult
	err     error
}

func (r *testReranker) Rerank(context.Context, string, []string, int) ([]RerankResult, error) {
	return r.results, r.err
}

func retrieverConfig() *config.Config {
	return &config.Config{
		Retriever: config.RetrieverConfig{
			Collection:     "Transcript",
			K:              10,
			ScoreThreshold: 0.7,
			SearchScale:    1.5,
			PostFilter:     PostFilterGrader,
		},
		Grader:   config.GraderConfig{K: 4},
		Reranker: config.RerankerConfig{K: 4},
		Templates: config.ChatTemplates{
			RewriteTemplate: "rewrite",
			GraderTemplate:  "grade",
		},
	}
}

func scored(content string, score float32) types.ScoredDocument {
	return types.ScoredDocument{
		Document: types.Document{ID: content, Content: content},
		Score:    score,
	}
}

func TestRetrieveFiltersByThreshold(t *testing.T) {
	index := &testIndex{hits: []types.ScoredDocument{
		scored("high", 0.9),
		scored("mid", 0.75),
		scored("low", 0.4),
	}}
	s := NewRetrieverService(retrieverConfig(), index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), fixedModel(`{"score": "yes"}`), &testReranker{})

	docs, err := s.Retrieve(context.Background(), RetrieveInput{Question: "q"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "high", docs[0].Content)
	assert.Equal(t, "mid", docs[1].Content)
}

func TestRetrieveKeepsTopTwoBelowThreshold(t *testing.T) {
	index := &testIndex{hits: []types.ScoredDocument{
		scored("best", 0.6),
		scored("second", 0.5),
		scored("third", 0.4),
	}}
	s := NewRetrieverService(retrieverConfig(), index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), fixedModel(`{"score": "yes"}`), &testReranker{})

	docs, err := s.Retrieve(context.Background(), RetrieveInput{Question: "q"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "best", docs[0].Content)
	assert.Equal(t, "second", docs[1].Content)
}

func TestRetrieveSearchModeScalesK(t *testing.T) {
	index := &testIndex{}
	s := NewRetrieverService(retrieverConfig(), index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), fixedModel(`{"score": "yes"}`), &testReranker{})

	_, err := s.Retrieve(context.Background(), RetrieveInput{
		Question:    "q",
		SearchMode:  true,
		ContextSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 15, index.lastK)
}

func TestRetrieveSearchModeKeepsConfiguredKWhenLarger(t *testing.T) {
	index := &testIndex{}
	s := NewRetrieverService(retrieverConfig(), index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), fixedModel(`{"score": "yes"}`), &testReranker{})

	_, err := s.Retrieve(context.Background(), RetrieveInput{
		Question:    "q",
		SearchMode:  true,
		ContextSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, index.lastK)
}

func TestRewriteQueryExtractsFilters(t *testing.T) {
	index := &testIndex{}
	rewrite := fixedModel(`{"query": "standalone", "pub-year": "2024"}`)
	s := NewRetrieverService(retrieverConfig(), index, &testEmbedder{},
		rewrite, fixedModel(`{"score": "yes"}`), &testReranker{})

	_, err := s.Retrieve(context.Background(), RetrieveInput{Question: "what about last year?"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{types.MetaPubYearKey: "2024"}, index.filters)
}

func TestRewriteQueryMalformedFallsBackToQuestion(t *testing.T) {
	s := NewRetrieverService(retrieverConfig(), &testIndex{}, &testEmbedder{},
		fixedModel("not json at all"), fixedModel(`{"score": "yes"}`), &testReranker{})

	rewrite := s.RewriteQuery(context.Background(), "original question", nil)
	assert.Equal(t, "original question", rewrite.Query)
	assert.Empty(t, rewrite.Filters())
}

func TestRewriteQueryEscalatesOnTransientError(t *testing.T) {
	model := &testModel{fn: func(_ []types.Message, tier ModelTier) (string, error) {
		if tier == TierPrimary {
			return "", fmt.Errorf("%w: rate limited", types.ErrProviderTransient)
		}
		return `{"query": "recovered"}`, nil
	}}
	s := NewRetrieverService(retrieverConfig(), &testIndex{}, &testEmbedder{},
		model, fixedModel(`{"score": "yes"}`), &testReranker{})

	rewrite := s.RewriteQuery(context.Background(), "q", nil)
	assert.Equal(t, "recovered", rewrite.Query)
	assert.Equal(t, []ModelTier{TierPrimary, TierFallback}, model.calledTiers())
}

func TestGradeDropsIrrelevant(t *testing.T) {
	index := &testIndex{hits: []types.ScoredDocument{
		scored("keep one", 0.9),
		scored("drop", 0.85),
		scored("keep two", 0.8),
	}}
	grader := &testModel{fn: func(messages []types.Message, _ ModelTier) (string, error) {
		if strings.Contains(messages[1].Content, "drop") {
			return `{"score": "no"}`, nil
		}
		return `{"score": "yes"}`, nil
	}}
	s := NewRetrieverService(retrieverConfig(), index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), grader, &testReranker{})

	docs, err := s.Retrieve(context.Background(), RetrieveInput{Question: "q"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "keep one", docs[0].Content)
	assert.Equal(t, "keep two", docs[1].Content)
}

func TestGradeCapsAtConfiguredK(t *testing.T) {
	cfg := retrieverConfig()
	cfg.Grader.K = 2
	index := &testIndex{hits: []types.ScoredDocument{
		scored("a", 0.9),
		scored("b", 0.85),
		scored("c", 0.8),
	}}
	s := NewRetrieverService(cfg, index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), fixedModel(`{"score": "yes"}`), &testReranker{})

	docs, err := s.Retrieve(context.Background(), RetrieveInput{Question: "q"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestGradeFailureTreatedAsNotRelevant(t *testing.T) {
	index := &testIndex{hits: []types.ScoredDocument{
		scored("good", 0.9),
		scored("broken", 0.85),
	}}
	grader := &testModel{fn: func(messages []types.Message, _ ModelTier) (string, error) {
		if strings.Contains(messages[1].Content, "broken") {
			return "", errors.New("provider exploded")
		}
		return `{"score": "yes"}`, nil
	}}
	s := NewRetrieverService(retrieverConfig(), index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), grader, &testReranker{})

	docs, err := s.Retrieve(context.Background(), RetrieveInput{Question: "q"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "good", docs[0].Content)
}

func TestRerankPathOrdersByProvider(t *testing.T) {
	cfg := retrieverConfig()
	cfg.Retriever.PostFilter = PostFilterReranker
	cfg.Reranker.K = 2
	index := &testIndex{hits: []types.ScoredDocument{
		scored("a", 0.9),
		scored("b", 0.85),
		scored("c", 0.8),
	}}
	reranker := &testReranker{results: []RerankResult{
		{Index: 2, Score: 0.95},
		{Index: 0, Score: 0.6},
	}}
	s := NewRetrieverService(cfg, index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), fixedModel(`{"score": "yes"}`), reranker)

	docs, err := s.Retrieve(context.Background(), RetrieveInput{Question: "q"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].Content)
	assert.Equal(t, "a", docs[1].Content)
}

func TestRerankFailureTruncatesInVectorOrder(t *testing.T) {
	cfg := retrieverConfig()
	cfg.Retriever.PostFilter = PostFilterReranker
	cfg.Reranker.K = 2
	index := &testIndex{hits: []types.ScoredDocument{
		scored("a", 0.9),
		scored("b", 0.85),
		scored("c", 0.8),
	}}
	reranker := &testReranker{err: fmt.Errorf("%w: down", types.ErrProviderTransient)}
	s := NewRetrieverService(cfg, index, &testEmbedder{},
		fixedModel(`{"query": "q"}`), fixedModel(`{"score": "yes"}`), reranker)

	docs, err := s.Retrieve(context.Background(), RetrieveInput{Question: "q"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Content)
	assert.Equal(t, "b", docs[1].Content)
}

func TestRetrieveEmbedErrorSurfaces(t *testing.T) {
	s := NewRetrieverService(retrieverConfig(), &testIndex{}, &testEmbedder{err: errors.New("embed down")},
		fixedModel(`{"query": "q"}`), fixedModel(`{"score": "yes"}`), &testReranker{})

	_, err := s.Retrieve(context.Background(), RetrieveInput{Question: "q"})
	assert.Error(t, err)
}
