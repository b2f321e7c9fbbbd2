package domain

import "time"

type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeAI   MessageType = "ai"
)

func (t MessageType) Valid() bool {
	return t == MessageTypeUser || t == MessageTypeAI
}

type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversation_id"`
	Type           MessageType `json:"message_type"`
	Content        string      `json:"content"`
	Timestamp      time.Time   `json:"timestamp"`
	ResponseID     string      `json:"response_id,omitempty"`
}

// NewMessage son los datos que aporta quien escribe; el timestamp lo asigna el store.
type NewMessage struct {
	ConversationID int64
	Type           MessageType
	Content        string
	ResponseID     string
}

// InteractionPair agrupa un turno del usuario con la respuesta de IA que lo sigue.
// No se persiste.
type InteractionPair struct {
	UserContent string
	AIContent   string
	HasAI       bool
	Timestamp   time.Time
}
