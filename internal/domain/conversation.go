package domain

import "time"

const (
	MainConversationTitle = "Main Conversation"
	MainSessionLabel      = "main_conversation"
)

// Conversation es la única conversación continua de un usuario.
type Conversation struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	SessionLabel  string    `json:"session_label"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}
