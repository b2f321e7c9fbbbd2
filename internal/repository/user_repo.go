package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartops-chat/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios anónimos.
type UserRepository interface {
	// UpsertByIPHash crea el usuario si no existe o actualiza last_seen, en una sola sentencia.
	UpsertByIPHash(ctx context.Context, ipHash string, seenAt time.Time) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) UpsertByIPHash(ctx context.Context, ipHash string, seenAt time.Time) (domain.User, error) {
	const query = `
		INSERT INTO users (ip_hash, first_seen, last_seen, total_messages)
		VALUES ($1, $2, $2, 0)
		ON CONFLICT (ip_hash) DO UPDATE SET last_seen = EXCLUDED.last_seen
		RETURNING id, ip_hash, first_seen, last_seen, total_messages
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, ipHash, seenAt.UTC()).Scan(
		&u.ID,
		&u.IPHash,
		&u.FirstSeen,
		&u.LastSeen,
		&u.TotalMessages,
	)
	return u, err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	const query = `
		SELECT id, ip_hash, first_seen, last_seen, total_messages
		FROM users
		WHERE id = $1
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.IPHash,
		&u.FirstSeen,
		&u.LastSeen,
		&u.TotalMessages,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}
