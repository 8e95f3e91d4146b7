package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/types"
	"github.com/sashabaranov/go-openai"
)

// OpenAIService implements LanguageModel and Embedder on the OpenAI API.
// TierPrimary maps to the super model, TierFallback to the eco model.
type OpenAIService struct {
	client         *openai.Client
	superModel     string
	ecoModel       string
	embeddingModel string
	timeout        time.Duration
}

func NewOpenAIService(cfg config.OpenAIConfig) *OpenAIService {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)
	return &OpenAIService{
		client:         client,
		superModel:     cfg.SuperModel,
		ecoModel:       cfg.EcoModel,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
	}
}

func (s *OpenAIService) model(tier ModelTier) string {
	if tier == TierFallback {
		return s.ecoModel
	}
	return s.superModel
}

func (s *OpenAIService) Complete(ctx context.Context, messages []types.Message, tier ModelTier) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Messages:    toOpenAIMessages(messages),
			Model:       s.model(tier),
			Temperature: 0.01,
		},
	)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response generated", types.ErrProviderMalformed)
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *OpenAIService) CompleteJSON(ctx context.Context, messages []types.Message, tier ModelTier, out any) error {
	text, err := s.Complete(ctx, messages, tier)
	if err != nil {
		return err
	}
	return UnmarshalCompletion(text, out)
}

func (s *OpenAIService) CompleteStream(ctx context.Context, messages []types.Message, tier ModelTier, handler types.StreamHandler) error {
	stream, err := s.client.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Messages:    toOpenAIMessages(messages),
			Model:       s.model(tier),
			Temperature: 0.01,
		},
	)
	if err != nil {
		return classifyOpenAIError(err)
	}
	defer stream.Close()
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Println("Error receiving response from stream:", err)
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) > 0 {
			handler(resp.Choices[0].Delta.Content)
		}
	}
}

func (s *OpenAIService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.embeddingModel),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", types.ErrProviderMalformed, len(texts), len(resp.Data))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

func toOpenAIMessages(messages []types.Message) []openai.ChatCompletionMessage {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case types.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case types.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return openaiMessages
}

// classifyOpenAIError maps vendor errors onto the pipeline taxonomy so the
// orchestrator can pick retry policy without knowing the provider.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
		}
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", types.ErrProviderTransient, err)
	}
	return err
}

// UnmarshalCompletion parses a JSON object out of a completion, tolerating
// markdown code fences and leading prose around the object.
func UnmarshalCompletion(text string, out any) error {
	trimmed := strings.TrimSpace(text)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return fmt.Errorf("%w: %v", types.ErrProviderMalformed, err)
	}
	return nil
}
