package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartops-chat/internal/domain"
)

// SQLiteUserRepository implementa UserRepository sobre database/sql y go-sqlite3.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) UpsertByIPHash(ctx context.Context, ipHash string, seenAt time.Time) (domain.User, error) {
	const upsert = `
		INSERT INTO users (ip_hash, first_seen, last_seen, total_messages)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (ip_hash) DO UPDATE SET last_seen = excluded.last_seen
	`
	// RETURNING no expone el tipo declarado de las columnas, así que las fechas se leen aparte.
	const query = `
		SELECT id, ip_hash, first_seen, last_seen, total_messages
		FROM users
		WHERE ip_hash = ?
	`
	seenAt = seenAt.UTC()
	if _, err := r.db.ExecContext(ctx, upsert, ipHash, seenAt, seenAt); err != nil {
		return domain.User{}, err
	}

	var u domain.User
	err := r.db.QueryRowContext(ctx, query, ipHash).Scan(
		&u.ID,
		&u.IPHash,
		&u.FirstSeen,
		&u.LastSeen,
		&u.TotalMessages,
	)
	return u, err
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	const query = `
		SELECT id, ip_hash, first_seen, last_seen, total_messages
		FROM users
		WHERE id = ?
	`
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.IPHash,
		&u.FirstSeen,
		&u.LastSeen,
		&u.TotalMessages,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

type SQLiteConversationRepository struct {
	db *sql.DB
}

func NewSQLiteConversationRepository(db *sql.DB) *SQLiteConversationRepository {
	return &SQLiteConversationRepository{db: db}
}

func (r *SQLiteConversationRepository) GetOrCreateForUser(ctx context.Context, userID int64) (domain.Conversation, error) {
	const insert = `
		INSERT INTO conversations (user_id, session_id, title, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`
	const query = `
		SELECT id, user_id, session_id, title, created_at, last_message_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	now := storeNow()
	_, err := r.db.ExecContext(ctx, insert, userID, domain.MainSessionLabel, domain.MainConversationTitle, now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Conversation{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return domain.Conversation{}, err
	}

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, ErrNotFound
	}
	return c, err
}

func (r *SQLiteConversationRepository) GetByID(ctx context.Context, id int64) (domain.Conversation, error) {
	const query = `
		SELECT id, user_id, session_id, title, created_at, last_message_at
		FROM conversations
		WHERE id = ?
	`
	c, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, ErrNotFound
	}
	return c, err
}

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.SessionLabel,
		&c.Title,
		&c.CreatedAt,
		&c.LastMessageAt,
	)
	return c, err
}

type SQLiteMessageRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db, now: storeNow}
}

func (r *SQLiteMessageRepository) Append(ctx context.Context, message domain.NewMessage) (domain.Message, error) {
	if !message.Type.Valid() {
		return domain.Message{}, fmt.Errorf("invalid message type %q", message.Type)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		userID int64
		last   time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, last_message_at
		FROM conversations
		WHERE id = ?
	`, message.ConversationID).Scan(&userID, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("conversation %d: %w", message.ConversationID, ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("read conversation: %w", err)
	}

	stamp := monotonicStamp(r.now(), last)

	var responseID interface{}
	if message.ResponseID != "" {
		responseID = message.ResponseID
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, message_type, content, timestamp, response_id)
		VALUES (?, ?, ?, ?, ?)
	`, message.ConversationID, string(message.Type), message.Content, stamp, responseID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Message{}, fmt.Errorf("%w: %s", ErrDuplicateResponseID, message.ResponseID)
		}
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, fmt.Errorf("message id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = ? WHERE id = ?`, stamp, message.ConversationID); err != nil {
		return domain.Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET total_messages = total_messages + 1 WHERE id = ?`, userID); err != nil {
		return domain.Message{}, fmt.Errorf("count user message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("commit: %w", err)
	}

	return domain.Message{
		ID:             id,
		ConversationID: message.ConversationID,
		Type:           message.Type,
		Content:        message.Content,
		Timestamp:      stamp,
		ResponseID:     message.ResponseID,
	}, nil
}

func (r *SQLiteMessageRepository) ListRecent(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	const query = `
		SELECT id, conversation_id, message_type, content, timestamp, response_id
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	rows, err := r.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *SQLiteMessageRepository) ListForUser(ctx context.Context, conversationID, userID int64) ([]domain.Message, error) {
	const query = `
		SELECT m.id, m.conversation_id, m.message_type, m.content, m.timestamp, m.response_id
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.conversation_id = ? AND c.user_id = ?
		ORDER BY m.timestamp ASC, m.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *SQLiteMessageRepository) GetByResponseID(ctx context.Context, responseID string) (domain.Message, error) {
	const query = `
		SELECT id, conversation_id, message_type, content, timestamp, response_id
		FROM messages
		WHERE response_id = ?
	`
	if strings.TrimSpace(responseID) == "" {
		return domain.Message{}, ErrNotFound
	}

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, responseID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	return msg, err
}
