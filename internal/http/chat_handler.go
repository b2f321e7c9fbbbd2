package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartops-chat/internal/domain"
	"smartops-chat/internal/service"
)

// invalidChatText responde a un cuerpo vacío o mal formado; no se persiste nada.
const invalidChatText = "Erro interno: mensagem vazia ou inválida."

// ChatHandler mantiene dependencias para los endpoints de chat e historial.
type ChatHandler struct {
	logger   *zap.Logger
	chatServ *service.ChatService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chatServ *service.ChatService) *ChatHandler {
	return &ChatHandler{
		logger:   logger,
		chatServ: chatServ,
	}
}

// PostChat maneja POST /chat.
func (h *ChatHandler) PostChat(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"response": invalidChatText})
		return
	}

	res, err := h.chatServ.HandleTurn(c.Request.Context(), clientAddress(c.Request), req.Message)
	if err != nil {
		// el cliente siempre recibe 200 con el texto del error
		h.logger.Error("chat turn failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"response": fmt.Sprintf("Erro interno: %v", err)})
		return
	}

	body := gin.H{"response": res.Response}
	if res.ResponseID != "" {
		body["response_id"] = res.ResponseID
	}
	c.JSON(http.StatusOK, body)
}

type messageView struct {
	MessageType domain.MessageType `json:"message_type"`
	Content     string             `json:"content"`
	Timestamp   time.Time          `json:"timestamp"`
	ResponseID  *string            `json:"response_id"`
}

// GetCurrentConversation maneja GET /get_current_conversation.
func (h *ChatHandler) GetCurrentConversation(c *gin.Context) {
	_, conv, messages, err := h.chatServ.CurrentConversation(c.Request.Context(), clientAddress(c.Request))
	if err != nil {
		h.logger.Error("load conversation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		v := messageView{
			MessageType: m.Type,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
		}
		if m.ResponseID != "" {
			id := m.ResponseID
			v.ResponseID = &id
		}
		views = append(views, v)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"conversation_id": conv.ID,
		"title":           conv.Title,
		"total_messages":  len(views),
		"messages":        views,
	})
}
