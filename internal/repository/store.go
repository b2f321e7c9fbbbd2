package repository

import (
	"context"
	"fmt"

	"smartops-chat/internal/config"
	"smartops-chat/internal/db"
)

// Store agrupa los repositorios de un backend junto con su ping y cierre.
type Store struct {
	Users         UserRepository
	Conversations ConversationRepository
	Messages      MessageRepository
	Backend       string

	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStore aplica las migraciones y abre Postgres o SQLite según DATABASE_URL.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		return &Store{
			Users:         NewPgUserRepository(pool),
			Conversations: NewPgConversationRepository(pool),
			Messages:      NewPgMessageRepository(pool),
			Backend:       "postgres",
			Ping:          func(ctx context.Context) error { return db.Ping(ctx, pool) },
			Close:         pool.Close,
		}, nil
	}

	conn, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{
		Users:         NewSQLiteUserRepository(conn),
		Conversations: NewSQLiteConversationRepository(conn),
		Messages:      NewSQLiteMessageRepository(conn),
		Backend:       "sqlite",
		Ping:          conn.PingContext,
		Close:         func() { _ = conn.Close() },
	}, nil
}
