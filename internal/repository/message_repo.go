package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartops-chat/internal/domain"
)

type MessageRepository interface {
	// Append guarda el mensaje, asigna el timestamp y actualiza los contadores de
	// la conversación y del usuario en la misma transacción.
	Append(ctx context.Context, message domain.NewMessage) (domain.Message, error)
	// ListRecent devuelve hasta limit mensajes, del más nuevo al más viejo.
	ListRecent(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error)
	// ListForUser devuelve el historial completo en orden cronológico, solo si la
	// conversación pertenece al usuario; si no, un slice vacío.
	ListForUser(ctx context.Context, conversationID, userID int64) ([]domain.Message, error)
	GetByResponseID(ctx context.Context, responseID string) (domain.Message, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool, now: storeNow}
}

func (r *PgMessageRepository) Append(ctx context.Context, message domain.NewMessage) (domain.Message, error) {
	if !message.Type.Valid() {
		return domain.Message{}, fmt.Errorf("invalid message type %q", message.Type)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		userID int64
		last   time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, last_message_at
		FROM conversations
		WHERE id = $1
		FOR UPDATE
	`, message.ConversationID).Scan(&userID, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("conversation %d: %w", message.ConversationID, ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("lock conversation: %w", err)
	}

	stamp := monotonicStamp(r.now(), last)

	var responseID interface{}
	if message.ResponseID != "" {
		responseID = message.ResponseID
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, message_type, content, timestamp, response_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, message.ConversationID, string(message.Type), message.Content, stamp, responseID).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Message{}, fmt.Errorf("%w: %s", ErrDuplicateResponseID, message.ResponseID)
		}
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE conversations SET last_message_at = $2 WHERE id = $1`, message.ConversationID, stamp); err != nil {
		return domain.Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET total_messages = total_messages + 1 WHERE id = $1`, userID); err != nil {
		return domain.Message{}, fmt.Errorf("count user message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
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

func (r *PgMessageRepository) ListRecent(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	const query = `
		SELECT id, conversation_id, message_type, content, timestamp, response_id
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	rows, err := r.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *PgMessageRepository) ListForUser(ctx context.Context, conversationID, userID int64) ([]domain.Message, error) {
	const query = `
		SELECT m.id, m.conversation_id, m.message_type, m.content, m.timestamp, m.response_id
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.conversation_id = $1 AND c.user_id = $2
		ORDER BY m.timestamp ASC, m.id ASC
	`

	rows, err := r.pool.Query(ctx, query, conversationID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *PgMessageRepository) GetByResponseID(ctx context.Context, responseID string) (domain.Message, error) {
	const query = `
		SELECT id, conversation_id, message_type, content, timestamp, response_id
		FROM messages
		WHERE response_id = $1
	`
	if strings.TrimSpace(responseID) == "" {
		return domain.Message{}, ErrNotFound
	}

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, responseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	return msg, err
}

// rowScanner cubre pgx.Row, pgx.Rows, *sql.Row y *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type rowIterator interface {
	rowScanner
	Next() bool
	Err() error
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var (
		msg        domain.Message
		msgType    string
		responseID *string
	)
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msgType,
		&msg.Content,
		&msg.Timestamp,
		&responseID,
	)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Type = domain.MessageType(msgType)
	msg.Timestamp = msg.Timestamp.UTC()
	if responseID != nil {
		msg.ResponseID = *responseID
	}
	return msg, nil
}

func collectMessages(rows rowIterator) ([]domain.Message, error) {
	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// monotonicStamp evita que un mensaje quede antes del último de su conversación.
func monotonicStamp(now, last time.Time) time.Time {
	if now.Before(last) {
		return last.UTC()
	}
	return now
}
