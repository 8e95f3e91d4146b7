package handler

import (
	"net/http"

	"github.com/baoteam/rag-bot/service"
	"github.com/baoteam/rag-bot/types"
	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService *service.ChatService
	history     *service.HistoryCache
}

func NewChatHandler(chatService *service.ChatService, history *service.HistoryCache) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		history:     history,
	}
}

// HandleChat answers one question. When the request names a user and carries
// no history, the server-side history cache fills it in.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	var req types.ChatRequest
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

	if req.UserID != "" && len(req.ChatHistory) == 0 {
		req.ChatHistory = h.history.Pairs(req.UserID)
	}

	resp := h.chatService.Answer(c.Request.Context(), &req)

	if req.UserID != "" {
		h.history.Add(req.UserID, req.Question)
		h.history.Add(req.UserID, resp.Answer)
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data:   resp,
	})
}
