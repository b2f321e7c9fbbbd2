package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mattn/go-sqlite3"

	"smartops-chat/internal/config"
	"smartops-chat/internal/db"
	"smartops-chat/internal/domain"
)

type pgStore struct {
	users         *PgUserRepository
	conversations *PgConversationRepository
	messages      *PgMessageRepository
}

// newPgStore usa la base de TEST_DATABASE_URL; sin ella los tests de Postgres se saltan.
func newPgStore(t *testing.T) pgStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := db.RunMigrations(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.NewPool(context.Background(), &config.Config{DatabaseURL: url})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pgStore{
		users:         NewPgUserRepository(pool),
		conversations: NewPgConversationRepository(pool),
		messages:      NewPgMessageRepository(pool),
	}
}

func (s pgStore) seedConversation(t *testing.T) (domain.User, domain.Conversation) {
	t.Helper()
	ctx := context.Background()
	u, err := s.users.UpsertByIPHash(ctx, "pg-test-"+uuid.NewString(), time.Now())
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	c, err := s.conversations.GetOrCreateForUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("get or create conversation: %v", err)
	}
	return u, c
}

func TestPgUserRepository_UpsertByIPHash(t *testing.T) {
	s := newPgStore(t)
	ctx := context.Background()
	hash := "pg-test-" + uuid.NewString()

	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	u1, err := s.users.UpsertByIPHash(ctx, hash, first)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	later := first.Add(time.Hour)
	u2, err := s.users.UpsertByIPHash(ctx, hash, later)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if u1.ID != u2.ID {
		t.Fatalf("same hash must map to the same user, got %d and %d", u1.ID, u2.ID)
	}
	if !u2.FirstSeen.Equal(first) || !u2.LastSeen.Equal(later) {
		t.Fatalf("unexpected timestamps first=%v last=%v", u2.FirstSeen, u2.LastSeen)
	}

	got, err := s.users.GetByID(ctx, u1.ID)
	if err != nil || got.IPHash != hash {
		t.Fatalf("get by id: %+v %v", got, err)
	}
	if _, err := s.users.GetByID(ctx, -1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPgConversationRepository_GetOrCreate(t *testing.T) {
	s := newPgStore(t)
	ctx := context.Background()
	u, c1 := s.seedConversation(t)

	c2, err := s.conversations.GetOrCreateForUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("expected a single conversation per user, got %d and %d", c1.ID, c2.ID)
	}
	if c1.Title != domain.MainConversationTitle || c1.SessionLabel != domain.MainSessionLabel {
		t.Fatalf("unexpected conversation %+v", c1)
	}
	if got, err := s.conversations.GetByID(ctx, c1.ID); err != nil || got.UserID != u.ID {
		t.Fatalf("get by id: %+v %v", got, err)
	}
	if _, err := s.conversations.GetByID(ctx, -1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.conversations.GetOrCreateForUser(ctx, -1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user must be ErrNotFound, got %v", err)
	}
}

func TestPgMessageRepository_AppendAndList(t *testing.T) {
	s := newPgStore(t)
	ctx := context.Background()
	u, c := s.seedConversation(t)
	responseID := uuid.NewString()

	past := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.messages.Append(ctx, domain.NewMessage{ConversationID: c.ID, Type: domain.MessageTypeUser, Content: "Olá"})
	if err != nil {
		t.Fatalf("append user: %v", err)
	}
	s.messages.now = func() time.Time { return past }
	second, err := s.messages.Append(ctx, domain.NewMessage{ConversationID: c.ID, Type: domain.MessageTypeAI, Content: "Oi!", ResponseID: responseID})
	if err != nil {
		t.Fatalf("append ai: %v", err)
	}
	if second.Timestamp.Before(first.Timestamp) {
		t.Fatalf("timestamps must not go backwards: %v < %v", second.Timestamp, first.Timestamp)
	}

	hist, err := s.messages.ListForUser(ctx, c.ID, u.ID)
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(hist) != 2 || hist[0].ID != first.ID || hist[1].ResponseID != responseID {
		t.Fatalf("unexpected history %+v", hist)
	}
	if other, err := s.messages.ListForUser(ctx, c.ID, u.ID+1_000_000); err != nil || len(other) != 0 {
		t.Fatalf("foreign user must see nothing, got %+v %v", other, err)
	}

	recent, err := s.messages.ListRecent(ctx, c.ID, 1)
	if err != nil || len(recent) != 1 || recent[0].ID != second.ID {
		t.Fatalf("list recent: %+v %v", recent, err)
	}

	byID, err := s.messages.GetByResponseID(ctx, responseID)
	if err != nil || byID.Content != "Oi!" {
		t.Fatalf("get by response id: %+v %v", byID, err)
	}
	if _, err := s.messages.GetByResponseID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	user, err := s.users.GetByID(ctx, u.ID)
	if err != nil || user.TotalMessages != 2 {
		t.Fatalf("expected total_messages=2, got %+v %v", user, err)
	}
}

func TestPgMessageRepository_AppendErrors(t *testing.T) {
	s := newPgStore(t)
	ctx := context.Background()
	_, c := s.seedConversation(t)
	responseID := uuid.NewString()

	if _, err := s.messages.Append(ctx, domain.NewMessage{ConversationID: c.ID, Type: domain.MessageTypeAI, Content: "a", ResponseID: responseID}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, err := s.messages.Append(ctx, domain.NewMessage{ConversationID: c.ID, Type: domain.MessageTypeAI, Content: "b", ResponseID: responseID})
	if !errors.Is(err, ErrDuplicateResponseID) {
		t.Fatalf("expected ErrDuplicateResponseID, got %v", err)
	}
	if _, err := s.messages.Append(ctx, domain.NewMessage{ConversationID: -1, Type: domain.MessageTypeUser, Content: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown conversation, got %v", err)
	}
	if _, err := s.messages.Append(ctx, domain.NewMessage{ConversationID: c.ID, Type: "system", Content: "x"}); err == nil {
		t.Fatalf("expected invalid type error")
	}
}

func TestPgMessageRepository_ListRecentZeroLimit(t *testing.T) {
	r := NewPgMessageRepository((*pgxpool.Pool)(nil))
	got, err := r.ListRecent(context.Background(), 1, 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("zero limit must short-circuit, got %+v %v", got, err)
	}
	if _, err := r.GetByResponseID(context.Background(), "  "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank response id must be ErrNotFound, got %v", err)
	}
}

func TestConstraintErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		unique, fk bool
	}{
		{name: "pg unique", err: &pgconn.PgError{Code: pgUniqueViolation}, unique: true},
		{name: "pg foreign key", err: &pgconn.PgError{Code: pgForeignKeyViolation}, fk: true},
		{name: "pg envuelto", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation}), unique: true},
		{name: "pg otro código", err: &pgconn.PgError{Code: "40001"}},
		{name: "sqlite unique", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, unique: true},
		{name: "sqlite foreign key", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, fk: true},
		{name: "genérico", err: errors.New("boom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err); got != tc.unique {
				t.Fatalf("isUniqueViolation = %v, want %v", got, tc.unique)
			}
			if got := isForeignKeyViolation(tc.err); got != tc.fk {
				t.Fatalf("isForeignKeyViolation = %v, want %v", got, tc.fk)
			}
		})
	}
}

type fakeRow struct {
	values []any
	err    error
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	for i, v := range f.values {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		case **string:
			*d, _ = v.(*string)
		}
	}
	return nil
}

func TestScanMessage(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	stamp := time.Date(2024, 1, 1, 7, 0, 0, 0, loc)
	rid := "abc"

	msg, err := scanMessage(fakeRow{values: []any{int64(7), int64(3), "ai", "Oi", stamp, &rid}})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if msg.Type != domain.MessageTypeAI || msg.ResponseID != "abc" || msg.Timestamp.Location() != time.UTC {
		t.Fatalf("unexpected message %+v", msg)
	}

	msg, err = scanMessage(fakeRow{values: []any{int64(8), int64(3), "user", "Olá", stamp, (*string)(nil)}})
	if err != nil || msg.ResponseID != "" {
		t.Fatalf("null response_id must map to empty string, got %+v %v", msg, err)
	}

	if _, err := scanMessage(fakeRow{err: pgx.ErrNoRows}); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("scan error must surface, got %v", err)
	}
}

func TestMonotonicStamp(t *testing.T) {
	last := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := monotonicStamp(last.Add(-time.Second), last); !got.Equal(last) {
		t.Fatalf("clock going backwards must reuse last, got %v", got)
	}
	now := last.Add(time.Second)
	if got := monotonicStamp(now, last); !got.Equal(now) {
		t.Fatalf("expected now, got %v", got)
	}
}
