package service

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/baoteam/rag-bot/types"
	"github.com/gorilla/websocket"
)

type WebSocketService struct {
	chat     *ChatService
	history  *HistoryCache
	upgrader websocket.Upgrader
}

func NewWebSocketService(chat *ChatService, history *HistoryCache) *WebSocketService {
	return &WebSocketService{
		chat:    chat,
		history: history,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (adjust for production)
			},
		},
	}
}

// HandleChat upgrades the connection and serves chat requests until the client
// goes away. Answers stream token by token, followed by one reference message.
func (s *WebSocketService) HandleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var req types.WebsocketRequest
		if err := json.Unmarshal(p, &req); err != nil {
			log.Println("Unmarshal error:", err)
			s.writeError(conn, "Error processing message")
			continue
		}

		switch req.Type {
		case types.TypeWebsocketChat:
			payloadBytes, err := json.Marshal(req.Payload)
			if err != nil {
				log.Println("Marshal error:", err)
				s.writeError(conn, "Error processing message")
				continue
			}
			var payload types.WebSocketChatPayload
			if err := json.Unmarshal(payloadBytes, &payload); err != nil {
				log.Println("Unmarshal error:", err)
				s.writeError(conn, "Error processing message")
				continue
			}
			s.serveChat(ctx, conn, &payload.ChatRequest)
		case types.TypeWebsocketPing:
			pongRes := types.WebSocketResponse{
				Type:    types.TypeWebsocketPong,
				Payload: nil,
			}
			if err := conn.WriteJSON(pongRes); err != nil {
				log.Println("Write error:", err)
			}
		default:
			log.Println("Invalid message type:", req.Type)
		}
	}
}

func (s *WebSocketService) serveChat(ctx context.Context, conn *websocket.Conn, req *types.ChatRequest) {
	if req.UserID != "" && len(req.ChatHistory) == 0 {
		req.ChatHistory = s.history.Pairs(req.UserID)
	}

	var answer strings.Builder
	err := s.chat.AnswerStream(ctx, req,
		func(token string) {
			answer.WriteString(token)
			msg := types.WebSocketResponse{
				Type:    types.TypeWebsocketChat,
				Payload: types.WebSocketChatResponse{Message: token},
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Println("Write error:", err)
			}
		},
		func(reference string) {
			msg := types.WebSocketResponse{
				Type:    types.TypeWebsocketReference,
				Payload: types.WebSocketChatResponse{Message: reference},
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Println("Write error:", err)
			}
		},
	)
	if err != nil {
		log.Println("Chat error:", err)
	}

	if req.UserID != "" {
		s.history.Add(req.UserID, req.Question)
		s.history.Add(req.UserID, answer.String())
	}
}

func (s *WebSocketService) writeError(conn *websocket.Conn, message string) {
	res := types.WebSocketResponse{
		Type:    types.TypeWebsocketError,
		Payload: types.WebSocketChatResponse{Message: message},
	}
	if err := conn.WriteJSON(res); err != nil {
		log.Println("Write error:", err)
	}
}

func (s *WebSocketService) Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
