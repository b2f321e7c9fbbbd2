package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"smartops-chat/internal/domain"
	"smartops-chat/internal/repository"
)

var ErrIdentityServiceNotConfigured = errors.New("identity service not configured")

// IdentityService resuelve una dirección de cliente al usuario seudónimo que le corresponde.
// La dirección cruda nunca se persiste.
type IdentityService struct {
	users repository.UserRepository
	now   func() time.Time
}

func NewIdentityService(users repository.UserRepository) *IdentityService {
	return &IdentityService{
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// HashAddress devuelve el SHA-256 en hex (64 caracteres) de la dirección.
func HashAddress(rawAddress string) string {
	sum := sha256.Sum256([]byte(rawAddress))
	return hex.EncodeToString(sum[:])
}

func (s *IdentityService) Resolve(ctx context.Context, rawAddress string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrIdentityServiceNotConfigured
	}
	user, err := s.users.UpsertByIPHash(ctx, HashAddress(rawAddress), s.now())
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve user: %w", err)
	}
	return user, nil
}
