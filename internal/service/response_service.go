package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"smartops-chat/internal/domain"
	"smartops-chat/internal/repository"
)

var ErrResponseNotFound = errors.New("response not found")

// ResponseService resuelve un response_id a la respuesta de IA guardada.
type ResponseService struct {
	logger   *zap.Logger
	messages repository.MessageRepository
	cache    ResponseCache
}

func NewResponseService(logger *zap.Logger, messages repository.MessageRepository, cache ResponseCache) *ResponseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseService{logger: logger, messages: messages, cache: cache}
}

func (s *ResponseService) Lookup(ctx context.Context, responseID string) (domain.Message, error) {
	responseID = strings.TrimSpace(responseID)
	if responseID == "" {
		return domain.Message{}, ErrResponseNotFound
	}

	if s.cache != nil {
		msg, hit, err := s.cache.Get(ctx, responseID)
		if err != nil {
			s.logger.Warn("response cache get failed", zap.Error(err))
		} else if hit {
			return msg, nil
		}
	}

	msg, err := s.messages.GetByResponseID(ctx, responseID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Message{}, ErrResponseNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("get response: %w", err)
	}
	if msg.Type != domain.MessageTypeAI {
		return domain.Message{}, ErrResponseNotFound
	}

	s.remember(ctx, msg)
	return msg, nil
}

func (s *ResponseService) remember(ctx context.Context, msg domain.Message) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, msg); err != nil {
		s.logger.Warn("response cache put failed", zap.Error(err), zap.String("response_id", msg.ResponseID))
	}
}
