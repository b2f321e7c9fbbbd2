package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"smartops-chat/internal/config"
	"smartops-chat/internal/domain"
	"smartops-chat/internal/llm"
	"smartops-chat/internal/repository"
	"smartops-chat/internal/service"
)

// Scenario es un chequeo de memoria contra el store configurado. Nunca llama a Langflow.
type Scenario struct {
	Name string
	Run  func(ctx context.Context, env checkEnv) (string, error)
}

type checkEnv struct {
	store *repository.Store
	chat  *service.ChatService
	llm   *llm.MockClient
}

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := repository.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		log.Fatalf("db ping: %v", err)
	}

	mock := &llm.MockClient{Response: "Resposta de verificação."}
	chatSvc := service.NewChatService(
		zap.NewNop(),
		service.NewIdentityService(store.Users),
		store.Conversations,
		store.Messages,
		service.NewBasicContextService(store.Messages, cfg.HistoryFetchLimit, cfg.ContextWindow),
		mock,
		nil,
		nil,
	)
	env := checkEnv{store: store, chat: chatSvc, llm: mock}
	ok := runScenarios(ctx, os.Stdout, env, defaultScenarios())
	store.Close()
	if !ok {
		os.Exit(1)
	}
}

func defaultScenarios() []Scenario {
	return []Scenario{
		{Name: "Conversa única por identidade", Run: checkSingleConversation},
		{Name: "Memória entre turnos", Run: checkMemoryAcrossTurns},
		{Name: "Contexto a partir do histórico", Run: checkContextFromHistory},
	}
}

// runScenarios imprime el resultado de cada chequeo y devuelve true si pasaron todos.
func runScenarios(ctx context.Context, w io.Writer, env checkEnv, scenarios []Scenario) bool {
	passed := 0
	for _, sc := range scenarios {
		fmt.Fprintf(w, "=== Executando: %s (%s) ===\n", sc.Name, env.store.Backend)

		runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		detail, err := sc.Run(runCtx, env)
		cancel()
		if detail != "" {
			fmt.Fprintln(w, detail)
		}
		if err != nil {
			fmt.Fprintf(w, "❌ FAIL [%s] %v\n\n", sc.Name, err)
			continue
		}
		fmt.Fprintf(w, "✅ PASS [%s]\n\n", sc.Name)
		passed++
	}

	fmt.Fprintf(w, "Checks: %d/%d passaram\n", passed, len(scenarios))
	return passed == len(scenarios)
}

func checkIdentity() string {
	return "memory-check-" + uuid.NewString()
}

func checkSingleConversation(ctx context.Context, env checkEnv) (string, error) {
	identity := checkIdentity()
	user, err := service.NewIdentityService(env.store.Users).Resolve(ctx, identity)
	if err != nil {
		return "", err
	}

	first, err := env.store.Conversations.GetOrCreateForUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	second, err := env.store.Conversations.GetOrCreateForUser(ctx, user.ID)
	if err != nil {
		return "", err
	}

	detail := fmt.Sprintf("user=%d hash=%s... conversation=%d sessão=%s título=%q",
		user.ID, user.IPHash[:12], first.ID, first.SessionLabel, first.Title)
	if first.ID != second.ID {
		return detail, fmt.Errorf("get-or-create devolveu %d e %d", first.ID, second.ID)
	}
	if first.SessionLabel != domain.MainSessionLabel || first.Title != domain.MainConversationTitle {
		return detail, errors.New("conversa com sessão ou título inesperado")
	}
	return detail, nil
}

func checkMemoryAcrossTurns(ctx context.Context, env checkEnv) (string, error) {
	identity := checkIdentity()
	before := len(env.llm.Inputs())

	if _, err := env.chat.HandleTurn(ctx, identity, "Qual é a capital do Brasil?"); err != nil {
		return "", err
	}
	if _, err := env.chat.HandleTurn(ctx, identity, "E a população dessa cidade?"); err != nil {
		return "", err
	}

	inputs := env.llm.Inputs()[before:]
	if len(inputs) != 2 {
		return "", fmt.Errorf("esperavam-se 2 chamadas, houve %d", len(inputs))
	}
	payload := inputs[1]
	detail := "--- Payload enviado ---\n" + payload + "\n-----------------------"

	if inputs[0] != "Qual é a capital do Brasil?" {
		return detail, errors.New("o primeiro turno não deveria levar contexto")
	}
	if !strings.Contains(payload, "Usuário: Qual é a capital do Brasil?") {
		return detail, errors.New("o segundo turno não lembra o primeiro")
	}

	_, _, messages, err := env.chat.CurrentConversation(ctx, identity)
	if err != nil {
		return detail, err
	}
	if len(messages) != 4 {
		return detail, fmt.Errorf("esperavam-se 4 mensagens, há %d", len(messages))
	}
	return detail, nil
}

func checkContextFromHistory(_ context.Context, _ checkEnv) (string, error) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	chrono := []domain.Message{
		{Type: domain.MessageTypeAI, Content: "Olá! Como posso ajudá-lo hoje?"},
		{Type: domain.MessageTypeUser, Content: "Qual é a capital do Brasil?"},
		{Type: domain.MessageTypeAI, Content: "A capital do Brasil é Brasília."},
		{Type: domain.MessageTypeUser, Content: "E a população dessa cidade?"},
		{Type: domain.MessageTypeAI, Content: "Brasília tem aproximadamente 3,1 milhões de habitantes na região metropolitana."},
		{Type: domain.MessageTypeUser, Content: "Qual é o clima lá?"},
	}
	recent := make([]domain.Message, len(chrono))
	for i, m := range chrono {
		m.Timestamp = base.Add(time.Duration(i) * time.Minute)
		recent[len(chrono)-1-i] = m
	}

	out := service.BuildContext(recent, service.DefaultContextWindow)
	detail := "--- Contexto gerado ---\n" + out + "\n-----------------------"

	if n := strings.Count(out, "Interação "); n != 3 {
		return detail, fmt.Errorf("esperavam-se 3 interações, há %d", n)
	}
	if strings.Contains(out, "Como posso ajudá-lo") {
		return detail, errors.New("a saudação inicial da IA não deveria ser emparelhada")
	}
	return detail, nil
}
