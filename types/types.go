package types

const (
	TypeWebsocketPing      = "ping"
	TypeWebsocketPong      = "pong"
	TypeWebsocketChat      = "chat"
	TypeWebsocketReference = "reference"
	TypeWebsocketError     = "error"
)

type WebsocketRequest struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type WebSocketChatPayload struct {
	ChatRequest
}

type WebSocketResponse struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type WebSocketChatResponse struct {
	Message string `json:"message"`
}

// DataResponse is the HTTP envelope for every JSON endpoint.
type DataResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type SearchRequest struct {
	Question       string `json:"question"`
	ContextSize    int    `json:"context_size,omitempty"`
	ShowAllSources bool   `json:"show_all_sources,omitempty"`
}

type RemoveSourcesRequest struct {
	FilterKey    string   `json:"filter_key"`
	FilterValues []string `json:"filter_values"`
}
