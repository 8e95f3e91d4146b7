package handler

import (
	"net/http"

	"github.com/baoteam/rag-bot/service"
	"github.com/baoteam/rag-bot/types"
	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	chatService *service.ChatService
}

func NewSearchHandler(chatService *service.ChatService) *SearchHandler {
	return &SearchHandler{
		chatService: chatService,
	}
}

// HandleSearch runs the pipeline in search mode: no answer synthesis, just
// the reference block for the matching clips.
func (h *SearchHandler) HandleSearch(c *gin.Context) {
	var req types.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "Invalid request body",
		})
		return
	}
	if req.Question == "" {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "Question is required",
		})
		return
	}

	resp := h.chatService.Answer(c.Request.Context(), &types.ChatRequest{
		Question:       req.Question,
		ChatMode:       types.ChatModeSearch,
		ContextSize:    req.ContextSize,
		ShowAllSources: req.ShowAllSources,
	})

	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data:   resp,
	})
}
