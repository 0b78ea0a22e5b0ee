package domain

import "time"

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a chat message
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Source represents a citation source
type Source struct {
	DocumentID     string  `json:"document_id"`
	Filename       string  `json:"filename"`
	RelevanceScore float64 `json:"relevance_score"`
}

// PromptMessage is one entry of a completion request.
type PromptMessage struct {
	Role    Role
	Content string
}

// ChatRequest is the request to send a chat message
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message" binding:"required"`
}

// ChatResponse is the response from a chat message
type ChatResponse struct {
	SessionID string   `json:"session_id"`
	Response  string   `json:"response"`
	Sources   []Source `json:"sources"`
}
