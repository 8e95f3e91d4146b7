package service

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/database"
	"github.com/baoteam/rag-bot/types"
	"github.com/baoteam/rag-bot/utils"
	"github.com/panjf2000/ants/v2"
)

const (
	// PostFilterGrader judges each candidate with a yes/no LLM call.
	PostFilterGrader = "grader"
	// PostFilterReranker truncates candidates through a rerank provider.
	PostFilterReranker = "reranker"

	// thresholdFloor is how many hits survive when the score threshold would
	// otherwise empty the result set. Near-threshold documents are usually
	// still useful.
	thresholdFloor = 2
)

// QueryRewrite is the structured output of the rewrite step: a standalone
// query plus any metadata filters extracted from the question and history.
type QueryRewrite struct {
	Query        string `json:"query"`
	Video        string `json:"video,omitempty"`
	PubDate      string `json:"pub-date,omitempty"`
	PubYear      string `json:"pub-year,omitempty"`
	PubYearMonth string `json:"pub-year-month,omitempty"`
}

// Filters converts the extracted fields to the index filter map.
func (q *QueryRewrite) Filters() map[string]string {
	filters := make(map[string]string)
	if q.Video != "" {
		filters[types.MetaVideoKey] = q.Video
	}
	if q.PubDate != "" {
		filters[types.MetaPubDateKey] = q.PubDate
	}
	if q.PubYear != "" {
		filters[types.MetaPubYearKey] = q.PubYear
	}
	if q.PubYearMonth != "" {
		filters[types.MetaPubYearMonthKey] = q.PubYearMonth
	}
	return filters
}

// RetrieveInput is one retrieval request.
type RetrieveInput struct {
	Question    string
	History     []types.Message
	SearchMode  bool
	ContextSize int
	Topic       string
}

// RetrieverService turns a question into a ranked, relevance-filtered
// document set: rewrite -> vector search -> grade or rerank.
type RetrieverService struct {
	retrieverCfg config.RetrieverConfig
	graderCfg    config.GraderConfig
	rerankerCfg  config.RerankerConfig
	templates    config.ChatTemplates

	index      database.VectorIndex
	embedder   Embedder
	rewriteLLM LanguageModel
	graderLLM  LanguageModel
	reranker   Reranker
}

func NewRetrieverService(
	cfg *config.Config,
	index database.VectorIndex,
	embedder Embedder,
	rewriteLLM LanguageModel,
	graderLLM LanguageModel,
	reranker Reranker,
) *RetrieverService {
	return &RetrieverService{
		retrieverCfg: cfg.Retriever,
		graderCfg:    cfg.Grader,
		rerankerCfg:  cfg.Reranker,
		templates:    cfg.Templates,
		index:        index,
		embedder:     embedder,
		rewriteLLM:   rewriteLLM,
		graderLLM:    graderLLM,
		reranker:     reranker,
	}
}

// Retrieve runs the full stage and returns the final input documents for
// answer synthesis, most relevant first.
func (s *RetrieverService) Retrieve(ctx context.Context, input RetrieveInput) ([]types.Document, error) {
	rewrite := s.RewriteQuery(ctx, input.Question, input.History)

	candidates, err := s.vectorSearch(ctx, rewrite, input)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	switch s.retrieverCfg.PostFilter {
	case PostFilterReranker:
		return s.rerank(ctx, rewrite.Query, candidates, input), nil
	default:
		return s.grade(ctx, input.Question, candidates), nil
	}
}

// RewriteQuery extracts metadata filters and reformulates the question into a
// history-independent query. Provider failures escalate to the fallback tier;
// malformed output degrades to the original question with no filters.
func (s *RetrieverService) RewriteQuery(ctx context.Context, question string, history []types.Message) QueryRewrite {
	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, types.Message{Role: types.RoleSystem, Content: s.templates.RewriteTemplate})
	messages = append(messages, history...)
	messages = append(messages, types.Message{Role: types.RoleUser, Content: question})

	var rewrite QueryRewrite
	err := s.rewriteLLM.CompleteJSON(ctx, messages, TierPrimary, &rewrite)
	if err != nil && !types.IsMalformed(err) {
		log.Printf("query rewrite failed on primary tier, retrying on fallback: %v", err)
		err = s.rewriteLLM.CompleteJSON(ctx, messages, TierFallback, &rewrite)
	}
	if err != nil || rewrite.Query == "" {
		if err != nil {
			log.Printf("query rewrite failed, using question as-is: %v", err)
		}
		return QueryRewrite{Query: question}
	}
	return rewrite
}

func (s *RetrieverService) vectorSearch(ctx context.Context, rewrite QueryRewrite, input RetrieveInput) ([]types.ScoredDocument, error) {
	k := s.retrieverCfg.K
	if input.SearchMode && input.ContextSize > 0 {
		// Widen the candidate pool so the grade/rerank cut can still fill the
		// requested context.
		scaled := int(float64(input.ContextSize) * s.retrieverCfg.SearchScale)
		if scaled > k {
			k = scaled
		}
	}

	filters := rewrite.Filters()
	if input.Topic != "" {
		filters[types.MetaTopicKey] = input.Topic
	}

	vectors, err := s.embedder.Embed(ctx, []string{rewrite.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.index.Search(ctx, vectors[0], k, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	logScores(hits)

	kept := make([]types.ScoredDocument, 0, len(hits))
	for _, hit := range hits {
		if hit.Score >= s.retrieverCfg.ScoreThreshold {
			kept = append(kept, hit)
		}
	}
	if len(kept) == 0 {
		// Nothing cleared the threshold; the best hits are probably still
		// useful, so keep the top few instead of failing the request.
		n := thresholdFloor
		if n > len(hits) {
			n = len(hits)
		}
		log.Printf("no documents above score threshold %.2f, keeping top %d", s.retrieverCfg.ScoreThreshold, n)
		kept = hits[:n]
	}
	return kept, nil
}

func logScores(hits []types.ScoredDocument) {
	minScore, maxScore, sum := hits[0].Score, hits[0].Score, float32(0)
	for _, h := range hits {
		if h.Score < minScore {
			minScore = h.Score
		}
		if h.Score > maxScore {
			maxScore = h.Score
		}
		sum += h.Score
	}
	log.Printf("score distribution: max=%.4f min=%.4f avg=%.4f", maxScore, minScore, sum/float32(len(hits)))
}

type gradeVerdict struct {
	Score string `json:"score"`
}

// grade fans out one yes/no relevance judgment per candidate, joins them and
// keeps the relevant documents in their original rank order, capped at the
// grader's k. A candidate whose grading call fails on both tiers or returns
// malformed output is treated as not relevant.
func (s *RetrieverService) grade(ctx context.Context, question string, candidates []types.ScoredDocument) []types.Document {
	relevant := make([]bool, len(candidates))

	var wg sync.WaitGroup
	pool, err := ants.NewPool(len(candidates))
	if err != nil {
		log.Printf("grader pool unavailable, keeping candidates unfiltered: %v", err)
		return truncateDocs(candidates, s.graderCfg.K)
	}
	defer pool.Release()

	for i := range candidates {
		i := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			relevant[i] = s.gradeOne(ctx, question, candidates[i].Document)
		})
		if submitErr != nil {
			wg.Done()
			log.Printf("grader submit failed for candidate %d: %v", i, submitErr)
		}
	}
	wg.Wait()

	var docs []types.Document
	for i, c := range candidates {
		if relevant[i] {
			docs = append(docs, c.Document)
		}
		if s.graderCfg.K > 0 && len(docs) == s.graderCfg.K {
			break
		}
	}
	return docs
}

func (s *RetrieverService) gradeOne(ctx context.Context, question string, doc types.Document) bool {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: s.templates.GraderTemplate},
		{Role: types.RoleUser, Content: fmt.Sprintf("Document:\n%s\n\nQuestion:\n%s", doc.Content, question)},
	}
	var verdict gradeVerdict
	err := s.graderLLM.CompleteJSON(ctx, messages, TierPrimary, &verdict)
	if err != nil && !types.IsMalformed(err) {
		err = s.graderLLM.CompleteJSON(ctx, messages, TierFallback, &verdict)
	}
	if err != nil {
		log.Printf("grading failed for document %s: %v", doc.ID, err)
		return false
	}
	return verdict.Score == "yes"
}

// rerank truncates the candidate set through the rerank provider. In search
// mode the cap follows the requested context size, otherwise the configured k.
// After the retry budget is exhausted the candidates pass through truncated in
// their original vector-search order.
func (s *RetrieverService) rerank(ctx context.Context, query string, candidates []types.ScoredDocument, input RetrieveInput) []types.Document {
	topN := s.rerankerCfg.K
	if input.SearchMode && input.ContextSize > 0 {
		topN = input.ContextSize
	}
	if len(candidates) <= topN {
		return truncateDocs(candidates, topN)
	}

	// Dedupe by content hash; the provider sees each text once.
	byHash := make(map[string]types.Document, len(candidates))
	var texts []string
	var docs []types.Document
	for _, c := range candidates {
		h := utils.HashOfText(c.Document.Content)
		if _, ok := byHash[h]; ok {
			continue
		}
		byHash[h] = c.Document
		texts = append(texts, c.Document.Content)
		docs = append(docs, c.Document)
	}

	results, err := s.reranker.Rerank(ctx, query, texts, topN)
	if err != nil {
		log.Printf("rerank failed after retries, truncating candidates: %v", err)
		return truncateDocs(candidates, topN)
	}

	reranked := make([]types.Document, 0, len(results))
	for _, r := range results {
		reranked = append(reranked, docs[r.Index])
	}
	if len(reranked) > topN {
		reranked = reranked[:topN]
	}
	return reranked
}

func truncateDocs(candidates []types.ScoredDocument, n int) []types.Document {
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	docs := make([]types.Document, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Document
	}
	return docs
}
