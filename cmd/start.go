/*
Copyright © 2025 baoteam
*/
package cmd

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/database"
	"github.com/baoteam/rag-bot/handler"
	"github.com/baoteam/rag-bot/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the chat server",
	Long:  `Starts the HTTP and websocket server that answers transcript questions.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		weaviateDb, err := database.NewWeaviateStore(cfg.Weaviate, cfg.Retriever.Collection)
		if err != nil {
			log.Fatalf("Failed to connect to Weaviate database: %v", err)
		}
		ledger, err := database.NewIngestLedger(".")
		if err != nil {
			log.Fatalf("Failed to open ingest ledger: %v", err)
		}
		defer ledger.Close()

		models, err := buildModels(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize model providers: %v", err)
		}
		openaiService := models.openai

		reranker := service.NewRerankService(cfg.Reranker)
		retriever := service.NewRetrieverService(
			cfg,
			weaviateDb,
			openaiService,
			models.forStep(cfg.Templates.RewriteModel),
			models.forStep(cfg.Templates.GraderModel),
			reranker,
		)
		chatService := service.NewChatService(
			cfg,
			retriever,
			models.forStep(cfg.Templates.IntentModel),
			models.forStep(cfg.Templates.GreetingModel),
			models.forStep(cfg.Templates.AnswerModel),
		)
		ingestService := service.NewIngestService(cfg, weaviateDb, ledger, openaiService)

		history := service.NewHistoryCache(cfg.Chat.HistoryTTL, 2*cfg.Chat.MaxHistoryLen)
		history.Start()
		defer history.Stop()

		wsService := service.NewWebSocketService(chatService, history)

		chatHandler := handler.NewChatHandler(chatService, history)
		searchHandler := handler.NewSearchHandler(chatService)
		ingestHandler := handler.NewIngestHandler(ingestService)

		router := gin.Default()
		router.Use(handler.CorsMiddleware)

		apiV1 := router.Group("/api/v1")
		{
			apiV1.POST("/chat", chatHandler.HandleChat)
			apiV1.POST("/search", searchHandler.HandleSearch)
			apiV1.POST("/sources/upload", ingestHandler.HandleUpload)
			apiV1.DELETE("/sources", ingestHandler.HandleRemoveSources)
			apiV1.GET("/sources", ingestHandler.HandleListSources)
		}
		router.GET("/ws/chat", gin.WrapF(wsService.HandleChat))
		router.GET("/health", gin.WrapH(wsService.Health()))

		port := cfg.Port
		if port == "" {
			port = "8080"
		}
		server := &http.Server{
			Addr:    ":" + port,
			Handler: router,
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			log.Printf("Starting server on port %s...", port)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("Server error:", err)
			}
		}()

		<-ctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	},
}

// modelProviders resolves the per-step provider names from the templates
// config. Gemini is optional; steps pointed at it fall back to OpenAI when no
// Gemini keys are configured.
type modelProviders struct {
	openai *service.OpenAIService
	gemini *service.GeminiService
}

func buildModels(cfg *config.Config) (*modelProviders, error) {
	models := &modelProviders{
		openai: service.NewOpenAIService(cfg.OpenAI),
	}
	if len(cfg.Gemini.APIKeys) > 0 {
		gemini, err := service.NewGeminiService(cfg.Gemini.APIKeys, cfg.Gemini.Model, cfg.Gemini.EcoModel)
		if err != nil {
			return nil, err
		}
		models.gemini = gemini
	}
	return models, nil
}

func (m *modelProviders) forStep(name string) service.LanguageModel {
	if name == "gemini" && m.gemini != nil {
		return m.gemini
	}
	return m.openai
}

func init() {
	rootCmd.AddCommand(startCmd)
}
