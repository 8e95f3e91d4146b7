package service

import (
	"context"
	"log"
	"strings"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/types"
	"github.com/baoteam/rag-bot/utils"
)

// ChatService drives one end-to-end answer: intent classification, greeting
// short-circuit, retrieval and answer synthesis, with primary-to-fallback
// model-tier escalation at every model call. It holds no per-request state.
type ChatService struct {
	chatCfg   config.ChatConfig
	templates config.ChatTemplates

	retriever   *RetrieverService
	intentLLM   LanguageModel
	greetingLLM LanguageModel
	answerLLM   LanguageModel
	clips       *utils.ClipRenderer
}

func NewChatService(
	cfg *config.Config,
	retriever *RetrieverService,
	intentLLM LanguageModel,
	greetingLLM LanguageModel,
	answerLLM LanguageModel,
) *ChatService {
	return &ChatService{
		chatCfg:     cfg.Chat,
		templates:   cfg.Templates,
		retriever:   retriever,
		intentLLM:   intentLLM,
		greetingLLM: greetingLLM,
		answerLLM:   answerLLM,
		clips: &utils.ClipRenderer{
			YoutubeDomain:   cfg.Chat.YoutubeDomain,
			YoutubeShortURL: cfg.Chat.YoutubeShortURL,
		},
	}
}

type intentVerdict struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

const intentGreeting = "greeting"

// Answer runs the pipeline for one request. Provider failures never reach the
// caller: when every tier is down the response is the configured fallback
// message plus the FAQ list.
func (s *ChatService) Answer(ctx context.Context, req *types.ChatRequest) *types.ChatResponse {
	question, history, search := s.ParseInput(req)

	if !search {
		if intent := s.classifyIntent(ctx, question); intent == intentGreeting {
			return s.greet(ctx, question)
		}
	}

	docs, err := s.retriever.Retrieve(ctx, RetrieveInput{
		Question:    question,
		History:     history,
		SearchMode:  search,
		ContextSize: req.ContextSize,
	})
	if err != nil {
		log.Printf("retrieval failed: %v", err)
		return s.fallbackResponse()
	}
	if len(docs) == 0 {
		// Nothing to ground an answer in; skip synthesis entirely.
		return s.fallbackResponse()
	}

	reference := utils.GenReference(docs, req.ShowAllSources, s.clips.Render)
	if search {
		return &types.ChatResponse{Answer: "", Reference: reference}
	}

	answer, err := s.synthesize(ctx, question, history, docs)
	if err != nil {
		log.Printf("answer synthesis failed on both tiers: %v", err)
		return s.fallbackResponse()
	}
	log.Printf("from bot: %s", answer)
	return &types.ChatResponse{Answer: answer, Reference: reference}
}

// AnswerStream streams the synthesized answer token by token, then emits the
// reference block through onReference. Search mode and greeting requests fall
// back to the non-streaming path.
func (s *ChatService) AnswerStream(ctx context.Context, req *types.ChatRequest, onToken types.StreamHandler, onReference func(reference string)) error {
	question, history, search := s.ParseInput(req)
	if search {
		resp := s.Answer(ctx, req)
		onReference(resp.ResponseText(true, s.fallbackText()))
		return nil
	}

	docs, err := s.retriever.Retrieve(ctx, RetrieveInput{
		Question:    question,
		History:     history,
		ContextSize: req.ContextSize,
	})
	if err != nil || len(docs) == 0 {
		if err != nil {
			log.Printf("retrieval failed: %v", err)
		}
		onToken(s.fallbackText())
		return nil
	}

	messages := s.answerMessages(question, history, docs)
	emitted := false
	counting := func(token string) {
		emitted = true
		onToken(token)
	}
	err = s.answerLLM.CompleteStream(ctx, messages, TierPrimary, counting)
	if err != nil && !emitted {
		// Only retry when nothing reached the client yet. A mid-stream
		// failure cannot be retried without repeating delivered tokens.
		log.Printf("streaming synthesis failed on primary tier, retrying on fallback: %v", err)
		err = s.answerLLM.CompleteStream(ctx, messages, TierFallback, counting)
	}
	if err != nil {
		if !emitted {
			onToken(s.fallbackText())
		}
		return err
	}
	onReference(utils.GenReference(docs, true, s.clips.Render))
	return nil
}

// ParseInput normalizes the question, converts the bounded history pairs to
// messages and detects search mode from the question prefix.
func (s *ChatService) ParseInput(req *types.ChatRequest) (string, []types.Message, bool) {
	question := utils.CleanMessage(req.Question)

	pairs := req.ChatHistory
	if len(pairs) > s.chatCfg.MaxHistoryLen {
		pairs = pairs[len(pairs)-s.chatCfg.MaxHistoryLen:]
	}
	var history []types.Message
	for _, p := range pairs {
		// Skip pairs whose bot side is empty: those came from search results,
		// not conversation.
		if strings.TrimSpace(p[1]) == "" {
			continue
		}
		history = append(history,
			types.Message{Role: types.RoleUser, Content: truncate(p[0], s.chatCfg.MaxHistoryMsgLen)},
			types.Message{Role: types.RoleAssistant, Content: truncate(p[1], s.chatCfg.MaxHistoryMsgLen)},
		)
	}

	search := req.ChatMode == types.ChatModeSearch
	if strings.HasPrefix(strings.ToLower(question), types.SearchModePrefix) {
		search = true
		question = strings.TrimSpace(question[len(types.SearchModePrefix):])
	}
	return question, history, search
}

// classifyIntent routes the question to greeting or the retrieval path.
// Malformed output and double-tier failures both default to the retrieval
// path, which answers anything.
func (s *ChatService) classifyIntent(ctx context.Context, question string) string {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: s.templates.IntentTemplate},
		{Role: types.RoleUser, Content: question},
	}
	var verdict intentVerdict
	err := s.intentLLM.CompleteJSON(ctx, messages, TierPrimary, &verdict)
	if err != nil && !types.IsMalformed(err) {
		err = s.intentLLM.CompleteJSON(ctx, messages, TierFallback, &verdict)
	}
	if err != nil {
		log.Printf("intent classification failed, assuming non-greeting: %v", err)
		return ""
	}
	return verdict.Type
}

func (s *ChatService) greet(ctx context.Context, question string) *types.ChatResponse {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: s.templates.GreetingTemplate},
		{Role: types.RoleUser, Content: question},
	}
	answer, err := s.greetingLLM.Complete(ctx, messages, TierPrimary)
	if err != nil {
		log.Printf("greeting failed on primary tier, retrying on fallback: %v", err)
		answer, err = s.greetingLLM.Complete(ctx, messages, TierFallback)
	}
	if err != nil {
		log.Printf("greeting failed on both tiers: %v", err)
		return s.fallbackResponse()
	}
	return &types.ChatResponse{Answer: answer}
}

func (s *ChatService) synthesize(ctx context.Context, question string, history []types.Message, docs []types.Document) (string, error) {
	messages := s.answerMessages(question, history, docs)
	answer, err := s.answerLLM.Complete(ctx, messages, TierPrimary)
	if err != nil {
		log.Printf("synthesis failed on primary tier, retrying on fallback: %v", err)
		answer, err = s.answerLLM.Complete(ctx, messages, TierFallback)
	}
	return answer, err
}

// answerMessages stuffs the document contents into the answer template's
// context block.
func (s *ChatService) answerMessages(question string, history []types.Message, docs []types.Document) []types.Message {
	var contextBlock strings.Builder
	for _, doc := range docs {
		contextBlock.WriteString(doc.Content)
		contextBlock.WriteString("\n\n")
	}
	system := strings.ReplaceAll(s.templates.AnswerTemplate, "{context}", strings.TrimSpace(contextBlock.String()))

	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, types.Message{Role: types.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, types.Message{Role: types.RoleUser, Content: question})
	return messages
}

func (s *ChatService) fallbackText() string {
	text := s.chatCfg.FallbackMessage
	if faq := s.chatCfg.FrequentlyAskedQuestions(); faq != "" {
		text += "\nFrequently Asked Questions:\n" + faq
	}
	return text
}

func (s *ChatService) fallbackResponse() *types.ChatResponse {
	return &types.ChatResponse{Answer: s.fallbackText()}
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
