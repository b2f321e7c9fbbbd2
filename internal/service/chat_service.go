package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smartops-chat/internal/domain"
	"smartops-chat/internal/llm"
	"smartops-chat/internal/repository"
)

// RateLimitedText se devuelve como respuesta cuando el limitador rechaza el turno.
const RateLimitedText = "Muitas mensagens em pouco tempo. Aguarde um instante e tente novamente."

var (
	ErrChatServiceNotConfigured = errors.New("chat service not configured")
	ErrChatInvalidInput         = errors.New("chat invalid input")
)

// TurnResult es lo que recibe el cliente de /chat. ResponseID queda vacío cuando no se persistió nada.
type TurnResult struct {
	Response   string
	ResponseID string
}

// ChatService orquesta un turno: identidad, conversación, contexto, backend y persistencia.
type ChatService struct {
	logger         *zap.Logger
	identity       *IdentityService
	conversations  repository.ConversationRepository
	messages       repository.MessageRepository
	contextService ContextService
	llmClient      llm.Client
	responses      *ResponseService
	limiter        ChatRateLimiter
	newResponseID  func() string
}

// NewChatService arma el orquestador. responses y limiter son opcionales.
func NewChatService(
	logger *zap.Logger,
	identity *IdentityService,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	contextService ContextService,
	llmClient llm.Client,
	responses *ResponseService,
	limiter ChatRateLimiter,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		logger:         logger,
		identity:       identity,
		conversations:  conversations,
		messages:       messages,
		contextService: contextService,
		llmClient:      llmClient,
		responses:      responses,
		limiter:        limiter,
		newResponseID:  uuid.NewString,
	}
}

// HandleTurn ejecuta un turno completo. Los fallos del backend no son errores: se convierten
// en texto, se guardan como respuesta de IA y se devuelven. Solo los fallos de almacenamiento
// se propagan. El turno no se cancela con el contexto del llamador.
func (s *ChatService) HandleTurn(ctx context.Context, rawAddress, userMessage string) (TurnResult, error) {
	if s == nil || s.identity == nil || s.conversations == nil || s.messages == nil || s.contextService == nil || s.llmClient == nil {
		return TurnResult{}, ErrChatServiceNotConfigured
	}
	if strings.TrimSpace(userMessage) == "" {
		return TurnResult{}, ErrChatInvalidInput
	}
	ctx = context.WithoutCancel(ctx)

	ipHash := HashAddress(rawAddress)
	log := s.logger.With(zap.String("identity", ipHash[:12]))

	if s.limiter != nil && !s.limiter.Allow(ipHash) {
		log.Warn("chat turn rate limited")
		return TurnResult{Response: RateLimitedText}, nil
	}

	user, err := s.identity.Resolve(ctx, rawAddress)
	if err != nil {
		return TurnResult{}, err
	}

	conv, err := s.conversations.GetOrCreateForUser(ctx, user.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("get conversation: %w", err)
	}

	contextText, err := s.contextService.GetContext(ctx, conv.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("get context: %w", err)
	}

	if _, err := s.messages.Append(ctx, domain.NewMessage{
		ConversationID: conv.ID,
		Type:           domain.MessageTypeUser,
		Content:        userMessage,
	}); err != nil {
		return TurnResult{}, fmt.Errorf("persist user message: %w", err)
	}

	reply := s.ask(ctx, log, ComposePayload(contextText, userMessage))

	aiMessage, err := s.messages.Append(ctx, domain.NewMessage{
		ConversationID: conv.ID,
		Type:           domain.MessageTypeAI,
		Content:        reply,
		ResponseID:     s.newResponseID(),
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("persist ai message: %w", err)
	}
	if s.responses != nil {
		s.responses.remember(ctx, aiMessage)
	}

	log.Info("chat turn finished",
		zap.Int64("conversation_id", conv.ID),
		zap.Bool("with_context", contextText != ""),
		zap.String("response_id", aiMessage.ResponseID),
	)
	return TurnResult{Response: reply, ResponseID: aiMessage.ResponseID}, nil
}

func (s *ChatService) ask(ctx context.Context, log *zap.Logger, payload string) string {
	text, err := s.llmClient.Run(ctx, payload)
	if err != nil {
		log.Warn("langflow call failed", zap.Error(err))
		return FallbackReply(err)
	}
	return text
}

// FallbackReply traduce un fallo del backend al texto que ve el usuario.
func FallbackReply(err error) string {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("Erro na comunicação com o agente (Status: %d)", statusErr.Code)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Erro de conexão: %v", err)
	}
	return fmt.Sprintf("Erro interno: %v", err)
}

// CurrentConversation devuelve la conversación del usuario y su historial completo, del más viejo al más nuevo.
func (s *ChatService) CurrentConversation(ctx context.Context, rawAddress string) (domain.User, domain.Conversation, []domain.Message, error) {
	if s == nil || s.identity == nil || s.conversations == nil || s.messages == nil {
		return domain.User{}, domain.Conversation{}, nil, ErrChatServiceNotConfigured
	}

	user, err := s.identity.Resolve(ctx, rawAddress)
	if err != nil {
		return domain.User{}, domain.Conversation{}, nil, err
	}
	conv, err := s.conversations.GetOrCreateForUser(ctx, user.ID)
	if err != nil {
		return domain.User{}, domain.Conversation{}, nil, fmt.Errorf("get conversation: %w", err)
	}
	messages, err := s.messages.ListForUser(ctx, conv.ID, user.ID)
	if err != nil {
		return domain.User{}, domain.Conversation{}, nil, fmt.Errorf("list messages: %w", err)
	}
	return user, conv, messages, nil
}
