package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartops-chat/internal/domain"
)

// ConversationRepository garantiza una única conversación por usuario.
type ConversationRepository interface {
	GetOrCreateForUser(ctx context.Context, userID int64) (domain.Conversation, error)
	GetByID(ctx context.Context, id int64) (domain.Conversation, error)
}

type PgConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPgConversationRepository(pool *pgxpool.Pool) *PgConversationRepository {
	return &PgConversationRepository{pool: pool}
}

// GetOrCreateForUser inserta con ON CONFLICT DO NOTHING sobre user_id y luego lee la
// conversación más antigua; quien pierde una carrera concurrente cae directo a la lectura.
func (r *PgConversationRepository) GetOrCreateForUser(ctx context.Context, userID int64) (domain.Conversation, error) {
	const insert = `
		INSERT INTO conversations (user_id, session_id, title, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`
	const query = `
		SELECT id, user_id, session_id, title, created_at, last_message_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	_, err := r.pool.Exec(ctx, insert, userID, domain.MainSessionLabel, domain.MainConversationTitle, storeNow())
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Conversation{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return domain.Conversation{}, err
	}

	var c domain.Conversation
	err = r.pool.QueryRow(ctx, query, userID).Scan(
		&c.ID,
		&c.UserID,
		&c.SessionLabel,
		&c.Title,
		&c.CreatedAt,
		&c.LastMessageAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, ErrNotFound
	}
	return c, err
}

func (r *PgConversationRepository) GetByID(ctx context.Context, id int64) (domain.Conversation, error) {
	const query = `
		SELECT id, user_id, session_id, title, created_at, last_message_at
		FROM conversations
		WHERE id = $1
	`
	var c domain.Conversation
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.UserID,
		&c.SessionLabel,
		&c.Title,
		&c.CreatedAt,
		&c.LastMessageAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, ErrNotFound
	}
	return c, err
}
