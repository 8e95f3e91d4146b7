package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port      string          `mapstructure:"port"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Weaviate  WeaviateConfig  `mapstructure:"weaviate"`
	Retriever RetrieverConfig `mapstructure:"retriever"`
	Grader    GraderConfig    `mapstructure:"grader"`
	Reranker  RerankerConfig  `mapstructure:"reranker"`
	Templates ChatTemplates   `mapstructure:"templates"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Chat      ChatConfig      `mapstructure:"chat"`
}

type OpenAIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"OPENAI_API_KEY"`
	SuperModel     string        `mapstructure:"super_model"`
	EcoModel       string        `mapstructure:"eco_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type GeminiConfig struct {
	APIKeys  []string `mapstructure:"GEMINI_API_KEYS"`
	Model    string   `mapstructure:"model"`
	EcoModel string   `mapstructure:"eco_model"`
}

type WeaviateConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"WEAVIATE_APIKEY"`
}

// RetrieverConfig controls the vector search stage.
// SearchScale widens k in search mode to survive the later grade/rerank cut.
type RetrieverConfig struct {
	Collection     string  `mapstructure:"collection"`
	K              int     `mapstructure:"k"`
	ScoreThreshold float32 `mapstructure:"score_threshold"`
	SearchScale    float64 `mapstructure:"search_scale"`
	// PostFilter selects the relevance pass: "grader" or "reranker".
	PostFilter string `mapstructure:"post_filter"`
}

type GraderConfig struct {
	K int `mapstructure:"k"`
}

type RerankerConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"RERANK_API_KEY"`
	Model      string        `mapstructure:"model"`
	K          int           `mapstructure:"k"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// ChatTemplates holds the prompt texts and the provider each pipeline step
// talks to ("openai" or "gemini").
type ChatTemplates struct {
	IntentModel      string `mapstructure:"intent_model"`
	IntentTemplate   string `mapstructure:"intent_template"`
	GreetingModel    string `mapstructure:"greeting_model"`
	GreetingTemplate string `mapstructure:"greeting_template"`
	RewriteModel     string `mapstructure:"rewrite_model"`
	RewriteTemplate  string `mapstructure:"rewrite_template"`
	GraderModel      string `mapstructure:"grader_model"`
	GraderTemplate   string `mapstructure:"grader_template"`
	AnswerModel      string `mapstructure:"answer_model"`
	AnswerTemplate   string `mapstructure:"answer_template"`
}

type IngestConfig struct {
	SourceDir    string   `mapstructure:"source_dir"`
	ChunkSize    int      `mapstructure:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap"`
	DefaultTopic string   `mapstructure:"default_topic"`
	Topics       []string `mapstructure:"topics"`
}

type ChatConfig struct {
	HistoryTTL       time.Duration `mapstructure:"history_ttl"`
	MaxHistoryLen    int           `mapstructure:"max_history_len"`
	MaxHistoryMsgLen int           `mapstructure:"max_history_msg_len"`
	FallbackMessage  string        `mapstructure:"fallback_message"`
	FAQ              []string      `mapstructure:"faq"`
	YoutubeDomain    string        `mapstructure:"youtube_domain"`
	YoutubeShortURL  string        `mapstructure:"youtube_short_url"`
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	v.BindEnv("openai.OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("gemini.GEMINI_API_KEYS", "GEMINI_API_KEYS")
	v.BindEnv("weaviate.WEAVIATE_APIKEY", "WEAVIATE_APIKEY")
	v.BindEnv("reranker.RERANK_API_KEY", "RERANK_API_KEY")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Retriever.K == 0 {
		c.Retriever.K = 10
	}
	if c.Retriever.ScoreThreshold == 0 {
		c.Retriever.ScoreThreshold = 0.7
	}
	if c.Retriever.SearchScale == 0 {
		c.Retriever.SearchScale = 1.5
	}
	if c.Retriever.PostFilter == "" {
		c.Retriever.PostFilter = "grader"
	}
	if c.Grader.K == 0 {
		c.Grader.K = 4
	}
	if c.Reranker.K == 0 {
		c.Reranker.K = 4
	}
	if c.Reranker.MaxRetries == 0 {
		c.Reranker.MaxRetries = 3
	}
	if c.Reranker.RetryDelay == 0 {
		c.Reranker.RetryDelay = 2 * time.Second
	}
	if c.OpenAI.Timeout == 0 {
		c.OpenAI.Timeout = 30 * time.Second
	}
	if c.Chat.HistoryTTL == 0 {
		c.Chat.HistoryTTL = 600 * time.Second
	}
	if c.Chat.MaxHistoryLen == 0 {
		c.Chat.MaxHistoryLen = 3
	}
	if c.Chat.MaxHistoryMsgLen == 0 {
		c.Chat.MaxHistoryMsgLen = 100
	}
	if c.Chat.YoutubeDomain == "" {
		c.Chat.YoutubeDomain = "https://www.youtube.com"
	}
	if c.Chat.YoutubeShortURL == "" {
		c.Chat.YoutubeShortURL = "https://youtu.be"
	}
	if c.Ingest.ChunkSize == 0 {
		c.Ingest.ChunkSize = 1000
	}
	if c.Ingest.ChunkOverlap == 0 {
		c.Ingest.ChunkOverlap = 100
	}
}

// FrequentlyAskedQuestions renders the configured FAQ list as markdown bullets.
func (c *ChatConfig) FrequentlyAskedQuestions() string {
	out := ""
	for _, q := range c.FAQ {
		out += "* " + q + "\n"
	}
	return out
}
