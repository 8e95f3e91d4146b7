package types

import "strings"

const (
	ChatModeChat   = "chat"
	ChatModeSearch = "search"

	// SearchModePrefix switches a question into search mode when it leads the text.
	SearchModePrefix = "/s"
)

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is one question plus its conversational context.
// ChatHistory holds (human, bot) pairs, oldest first.
type ChatRequest struct {
	UserID         string      `json:"user_id"`
	Question       string      `json:"question"`
	ChatHistory    [][2]string `json:"chat_history"`
	ChatMode       string      `json:"chat_mode"`
	ContextSize    int         `json:"context_size"`
	ShowAllSources bool        `json:"show_all_sources"`
}

// ChatResponse carries the synthesized answer and the citation block.
// In search mode Answer is empty and Reference carries the result.
type ChatResponse struct {
	Answer    string `json:"answer"`
	Reference string `json:"reference"`
}

const referenceHeadline = "### Reference"

// ResponseText renders the response as a single message for transports that
// cannot show answer and reference separately. fallback is used when the
// response is empty.
func (r *ChatResponse) ResponseText(search bool, fallback string) string {
	if search {
		if strings.TrimSpace(r.Reference) == "" {
			return fallback
		}
		return r.Reference
	}
	answer := r.Answer
	if strings.TrimSpace(r.Reference) != "" {
		answer = r.Answer + "\n\n" + referenceHeadline + "\n" + r.Reference
	}
	if strings.TrimSpace(answer) == "" {
		return fallback
	}
	return answer
}

// StreamHandler receives incremental completion tokens.
type StreamHandler func(token string)
