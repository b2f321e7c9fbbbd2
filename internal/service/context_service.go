package service

import (
	"context"
	"fmt"
	"strings"

	"smartops-chat/internal/domain"
	"smartops-chat/internal/repository"
)

const (
	DefaultContextWindow = 6
	DefaultHistoryLimit  = 12

	maxContextPairs = 3
	maxUserChars    = 150
	maxAIChars      = 200
	ellipsis        = "..."

	contextHeader = "=== Contexto da conversa anterior ==="
	contextFooter = "=== Pergunta atual ==="
	pairSeparator = "---"
)

// ContextService define contrato para recuperar contexto conversacional.
type ContextService interface {
	GetContext(ctx context.Context, conversationID int64) (string, error)
}

// BasicContextService obtiene los mensajes recientes y los convierte en el preámbulo acotado.
type BasicContextService struct {
	messageRepo  repository.MessageRepository
	historyLimit int
	window       int
}

func NewBasicContextService(messageRepo repository.MessageRepository, historyLimit, window int) *BasicContextService {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &BasicContextService{
		messageRepo:  messageRepo,
		historyLimit: historyLimit,
		window:       window,
	}
}

func (s *BasicContextService) GetContext(ctx context.Context, conversationID int64) (string, error) {
	messages, err := s.messageRepo.ListRecent(ctx, conversationID, s.historyLimit)
	if err != nil {
		return "", fmt.Errorf("list recent messages: %w", err)
	}
	return BuildContext(messages, s.window), nil
}

// BuildContext recibe mensajes del más nuevo al más viejo y devuelve el preámbulo con
// las últimas tres interacciones, o "" si no hay ninguna. Es una función pura.
func BuildContext(recent []domain.Message, window int) string {
	if window <= 0 {
		window = DefaultContextWindow
	}
	if len(recent) > window {
		recent = recent[:window]
	}

	chronological := make([]domain.Message, len(recent))
	for i, m := range recent {
		chronological[len(recent)-1-i] = m
	}

	pairs := PairInteractions(chronological)
	if len(pairs) > maxContextPairs {
		pairs = pairs[len(pairs)-maxContextPairs:]
	}
	if len(pairs) == 0 {
		return ""
	}

	lines := make([]string, 0, 2+len(pairs)*4)
	lines = append(lines, contextHeader)
	for i, p := range pairs {
		lines = append(lines, fmt.Sprintf("Interação %d:", i+1))
		lines = append(lines, "Usuário: "+truncateRunes(p.UserContent, maxUserChars))
		if p.HasAI {
			lines = append(lines, "Assistente: "+truncateRunes(p.AIContent, maxAIChars))
		}
		lines = append(lines, pairSeparator)
	}
	lines = append(lines, contextFooter)

	return strings.Join(lines, "\n")
}

// PairInteractions agrupa mensajes en orden cronológico. Un mensaje de usuario abre un
// par nuevo (cerrando el pendiente aunque no tenga respuesta); un mensaje de IA cierra el
// par pendiente, y sin par pendiente se descarta.
func PairInteractions(chronological []domain.Message) []domain.InteractionPair {
	var (
		pairs   []domain.InteractionPair
		pending *domain.InteractionPair
	)
	for _, m := range chronological {
		switch m.Type {
		case domain.MessageTypeUser:
			if pending != nil {
				pairs = append(pairs, *pending)
			}
			pending = &domain.InteractionPair{UserContent: m.Content, Timestamp: m.Timestamp}
		case domain.MessageTypeAI:
			if pending == nil {
				continue
			}
			pending.AIContent = m.Content
			pending.HasAI = true
			pairs = append(pairs, *pending)
			pending = nil
		}
	}
	if pending != nil {
		pairs = append(pairs, *pending)
	}
	return pairs
}

// ComposePayload antepone el contexto al mensaje; sin contexto el mensaje va intacto.
func ComposePayload(contextText, userMessage string) string {
	if contextText == "" {
		return userMessage
	}
	return contextText + "\n" + userMessage
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + ellipsis
}
