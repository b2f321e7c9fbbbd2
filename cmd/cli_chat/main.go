package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"smartops-chat/internal/config"
	"smartops-chat/internal/domain"
	"smartops-chat/internal/llm"
	"smartops-chat/internal/repository"
	"smartops-chat/internal/service"
)

// cli_chat conversa con el agente desde la terminal usando el mismo orquestador que la API.
// La identidad es fija ("cli") salvo que se pase otra como primer argumento.
func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
	defer logger.Sync()

	store, err := repository.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	llmClient := llm.NewLangflowClient(cfg.LangflowBaseURL, cfg.LangflowFlowID, cfg.LangflowAPIKey, cfg.LangflowTimeout, logger)
	responseSvc := service.NewResponseService(logger, store.Messages, service.NewLRUResponseCache(cfg.ResponseCacheSize))
	chatSvc := service.NewChatService(
		logger,
		service.NewIdentityService(store.Users),
		store.Conversations,
		store.Messages,
		service.NewBasicContextService(store.Messages, cfg.HistoryFetchLimit, cfg.ContextWindow),
		llmClient,
		responseSvc,
		nil,
	)

	identity := "cli"
	if len(os.Args) > 1 {
		identity = os.Args[1]
	}

	fmt.Println("===== SmartOps AI =====")
	fmt.Println("Comandos: /historial, /salir")

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)

		switch line {
		case "":
			continue
		case "/salir":
			return
		case "/historial":
			printHistory(ctx, chatSvc, identity)
			continue
		}

		res, err := chatSvc.HandleTurn(ctx, identity, line)
		if err != nil {
			fmt.Printf("Erro interno: %v\n", err)
			continue
		}
		fmt.Println(res.Response)
		if res.ResponseID != "" {
			fmt.Printf("[response_id: %s]\n", res.ResponseID)
		}
	}
}

func printHistory(ctx context.Context, chatSvc *service.ChatService, identity string) {
	_, conv, messages, err := chatSvc.CurrentConversation(ctx, identity)
	if err != nil {
		fmt.Printf("error cargando historial: %v\n", err)
		return
	}
	fmt.Printf("== %s (%d mensajes) ==\n", conv.Title, len(messages))
	for _, m := range messages {
		who := "Usuário"
		if m.Type == domain.MessageTypeAI {
			who = "Assistente"
		}
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("02/01 15:04"), who, m.Content)
	}
}
