package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartops-chat/internal/db"
	"smartops-chat/internal/llm"
	"smartops-chat/internal/repository"
	"smartops-chat/internal/service"
)

type testServer struct {
	router *gin.Engine
	llm    *llm.MockClient
}

func setupServer(t *testing.T, ping Pinger) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbURL := "sqlite3://" + filepath.Join(t.TempDir(), "chat.db")
	if err := db.RunMigrations(dbURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.OpenSQLite(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	users := repository.NewSQLiteUserRepository(conn)
	conversations := repository.NewSQLiteConversationRepository(conn)
	messages := repository.NewSQLiteMessageRepository(conn)
	mock := &llm.MockClient{Response: "A capital do Brasil é **Brasília**."}
	responses := service.NewResponseService(zap.NewNop(), messages, service.NewLRUResponseCache(16))

	chatSvc := service.NewChatService(
		zap.NewNop(),
		service.NewIdentityService(users),
		conversations,
		messages,
		service.NewBasicContextService(messages, service.DefaultHistoryLimit, service.DefaultContextWindow),
		mock,
		responses,
		nil,
	)
	if ping == nil {
		ping = conn.PingContext
	}

	router := NewRouter(
		zap.NewNop(),
		NewChatHandler(zap.NewNop(), chatSvc),
		NewExportHandler(zap.NewNop(), responses, service.NewExportService()),
		NewHealthHandler(zap.NewNop(), ping),
	)
	return testServer{router: router, llm: mock}
}

func (s testServer) do(t *testing.T, method, path, body, addr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if addr != "" {
		req.Header.Set("X-Forwarded-For", addr)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type chatResponse struct {
	Response   string `json:"response"`
	ResponseID string `json:"response_id"`
}

type historyResponse struct {
	Success        bool   `json:"success"`
	ConversationID int64  `json:"conversation_id"`
	Title          string `json:"title"`
	TotalMessages  int    `json:"total_messages"`
	Messages       []struct {
		MessageType string    `json:"message_type"`
		Content     string    `json:"content"`
		Timestamp   time.Time `json:"timestamp"`
		ResponseID  *string   `json:"response_id"`
	} `json:"messages"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
	return out
}

func TestChatHandler_FirstTurn(t *testing.T) {
	s := setupServer(t, nil)

	rec := s.do(t, http.MethodPost, "/chat", `{"message":"Qual a capital do Brasil?"}`, "203.0.113.7")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	got := decode[chatResponse](t, rec)
	if got.Response != "A capital do Brasil é **Brasília**." {
		t.Fatalf("unexpected response %q", got.Response)
	}
	if got.ResponseID == "" {
		t.Fatalf("expected response_id")
	}
	if in := s.llm.Inputs(); len(in) != 1 || in[0] != "Qual a capital do Brasil?" {
		t.Fatalf("first turn must send the raw message, got %q", in)
	}

	rec = s.do(t, http.MethodGet, "/get_current_conversation", "", "203.0.113.7")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	hist := decode[historyResponse](t, rec)
	if !hist.Success || hist.Title != "Main Conversation" || hist.TotalMessages != 2 {
		t.Fatalf("unexpected history envelope %+v", hist)
	}
	if hist.Messages[0].MessageType != "user" || hist.Messages[0].ResponseID != nil {
		t.Fatalf("unexpected first message %+v", hist.Messages[0])
	}
	if hist.Messages[1].MessageType != "ai" || hist.Messages[1].ResponseID == nil || *hist.Messages[1].ResponseID != got.ResponseID {
		t.Fatalf("unexpected second message %+v", hist.Messages[1])
	}
}

func TestChatHandler_BackendFailureStill200(t *testing.T) {
	s := setupServer(t, nil)
	s.llm.Err = &llm.StatusError{Code: 500}

	rec := s.do(t, http.MethodPost, "/chat", `{"message":"Olá"}`, "203.0.113.8")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[chatResponse](t, rec)
	if !strings.Contains(got.Response, "Status: 500") {
		t.Fatalf("unexpected response %q", got.Response)
	}

	hist := decode[historyResponse](t, s.do(t, http.MethodGet, "/get_current_conversation", "", "203.0.113.8"))
	if len(hist.Messages) != 2 || hist.Messages[1].Content != got.Response {
		t.Fatalf("degraded reply must be persisted, got %+v", hist.Messages)
	}
}

func TestChatHandler_InvalidBody(t *testing.T) {
	s := setupServer(t, nil)
	for _, body := range []string{`{"message":"   "}`, `{}`, `not json`, ``} {
		rec := s.do(t, http.MethodPost, "/chat", body, "203.0.113.9")
		if rec.Code != http.StatusOK {
			t.Fatalf("body %q: expected 200, got %d", body, rec.Code)
		}
		got := decode[map[string]any](t, rec)
		if got["response"] != invalidChatText {
			t.Fatalf("body %q: unexpected response %+v", body, got)
		}
		if _, ok := got["response_id"]; ok {
			t.Fatalf("body %q: invalid request must not get a response_id", body)
		}
	}
	if n := len(s.llm.Inputs()); n != 0 {
		t.Fatalf("invalid requests must not reach the backend, got %d calls", n)
	}

	hist := decode[historyResponse](t, s.do(t, http.MethodGet, "/get_current_conversation", "", "203.0.113.9"))
	if len(hist.Messages) != 0 {
		t.Fatalf("invalid requests must not persist, got %+v", hist.Messages)
	}
}

func TestChatHandler_HistoryIsPerAddress(t *testing.T) {
	s := setupServer(t, nil)
	s.do(t, http.MethodPost, "/chat", `{"message":"primeiro"}`, "198.51.100.1")

	hist := decode[historyResponse](t, s.do(t, http.MethodGet, "/get_current_conversation", "", "198.51.100.2"))
	if !hist.Success || len(hist.Messages) != 0 {
		t.Fatalf("new address must start with empty history, got %+v", hist)
	}
}

func TestExportHandler(t *testing.T) {
	s := setupServer(t, nil)
	got := decode[chatResponse](t, s.do(t, http.MethodPost, "/chat", `{"message":"Qual a capital?"}`, "203.0.113.10"))

	t.Run("generate_html", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/generate_html", `{"response_id":"`+got.ResponseID+`"}`, "")
		body := decode[map[string]any](t, rec)
		if body["success"] != true || body["url"] != "/view_html/"+got.ResponseID {
			t.Fatalf("unexpected body %+v", body)
		}
	})

	t.Run("generate_html desconocido", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/generate_html", `{"response_id":"nope"}`, "")
		body := decode[map[string]any](t, rec)
		if body["success"] != false || body["error"] != "Resposta não encontrada" {
			t.Fatalf("unexpected body %+v", body)
		}
	})

	t.Run("view_html", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/view_html/"+got.ResponseID, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Fatalf("expected html content type, got %q", ct)
		}
		if !strings.Contains(rec.Body.String(), "<strong>Brasília</strong>") {
			t.Fatalf("expected rendered markdown, got:\n%s", rec.Body.String())
		}
	})

	t.Run("view_html desconocido", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/view_html/nope", "", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		if rec.Body.String() != "<h1>Resposta não encontrada</h1>" {
			t.Fatalf("unexpected body %q", rec.Body.String())
		}
	})
}

func TestHealthHandler(t *testing.T) {
	s := setupServer(t, nil)
	if rec := s.do(t, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	down := setupServer(t, func(context.Context) error { return errors.New("db down") })
	if rec := down.do(t, http.MethodGet, "/health", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
