package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/baoteam/rag-bot/types"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiService implements LanguageModel on the Gemini API, mirroring the
// OpenAI provider's tier split across two model names. It also rotates across
// API keys when a call fails.
type GeminiService struct {
	apiKeys      []string
	currentKey   int
	client       *genai.Client
	modelName    string
	ecoModelName string
	mu           sync.Mutex
}

func NewGeminiService(apiKeys []string, modelName, ecoModelName string) (*GeminiService, error) {
	if len(apiKeys) == 0 {
		return nil, errors.New("no API keys provided")
	}

	service := &GeminiService{
		apiKeys:      apiKeys,
		currentKey:   0,
		modelName:    modelName,
		ecoModelName: ecoModelName,
	}
	if err := service.initClient(); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *GeminiService) initClient() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return err
	}
	s.client = client
	return nil
}

// modelFor picks the model name per tier, like the OpenAI super/eco split.
// Without a configured eco model both tiers use the same one.
func (s *GeminiService) modelFor(tier ModelTier) string {
	if tier == TierFallback && s.ecoModelName != "" {
		return s.ecoModelName
	}
	return s.modelName
}

func (s *GeminiService) generativeModel(tier ModelTier) *genai.GenerativeModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.GenerativeModel(s.modelFor(tier))
}

func (s *GeminiService) rotateAPIKey() error {
	s.mu.Lock()
	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
	if err := s.client.Close(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.initClient()
}

func (s *GeminiService) Complete(ctx context.Context, messages []types.Message, tier ModelTier) (string, error) {
	history, prompt := toGeminiHistory(messages)
	chat := s.generativeModel(tier).StartChat()
	chat.History = history

	resp, err := chat.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		// Rotate the key and try once more before surfacing.
		if rotateErr := s.rotateAPIKey(); rotateErr != nil {
			return "", fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
		}
		chat = s.generativeModel(tier).StartChat()
		chat.History = history
		resp, err = chat.SendMessage(ctx, genai.Text(prompt))
		if err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
		}
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no response generated", types.ErrProviderMalformed)
	}

	content := ""
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				content += string(text)
			}
		}
	}
	return content, nil
}

func (s *GeminiService) CompleteJSON(ctx context.Context, messages []types.Message, tier ModelTier, out any) error {
	text, err := s.Complete(ctx, messages, tier)
	if err != nil {
		return err
	}
	return UnmarshalCompletion(text, out)
}

func (s *GeminiService) CompleteStream(ctx context.Context, messages []types.Message, tier ModelTier, handler types.StreamHandler) error {
	history, prompt := toGeminiHistory(messages)
	chat := s.generativeModel(tier).StartChat()
	chat.History = history

	iter := chat.SendMessageStream(ctx, genai.Text(prompt))
	for {
		resp, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					handler(string(text))
				}
			}
		}
	}
}

// toGeminiHistory converts messages to genai chat history, keeping the last
// user message aside as the prompt. System prompts become the first user turn
// since Gemini has no system role in chat history.
func toGeminiHistory(messages []types.Message) ([]*genai.Content, string) {
	prompt := ""
	if n := len(messages); n > 0 && messages[n-1].Role == types.RoleUser {
		prompt = messages[n-1].Content
		messages = messages[:n-1]
	}
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == types.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Parts: []genai.Part{genai.Text(msg.Content)},
			Role:  role,
		})
	}
	return history, prompt
}
