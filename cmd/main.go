package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"navy-registrar/handler"
	"navy-registrar/internal/integrations/gemini"
	"navy-registrar/internal/integrations/openai"
	"navy-registrar/internal/integrations/paramstore"
	"navy-registrar/internal/repository"
	"navy-registrar/internal/repository/mongostore"
	"navy-registrar/internal/repository/sqlite"
	"navy-registrar/internal/usecase"
	"navy-registrar/internal/workflow"
)

type entityAndConversationStore interface {
	workflow.EntityStore
	usecase.ConversationStore
}

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	storeBackend := strings.ToLower(envString("STORE_BACKEND", "dynamodb"))
	conversationBackend := strings.ToLower(envString("CONVERSATION_BACKEND", storeBackend))
	llmProvider := strings.ToLower(envString("LLM_PROVIDER", "openai"))
	maxQueryLen := envInt("MAX_QUERY_LENGTH", 2000)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	// ---- Stores ----
	var store entityAndConversationStore
	switch storeBackend {
	case "dynamodb":
		store, err = repository.New(awsdynamodb.NewFromConfig(cfg), mustEnv("STATE_TABLE"))
	case "sqlite":
		db, openErr := sqlite.Open(envString("SQLITE_PATH", "/tmp/navy-registrar.db"))
		if openErr != nil {
			slog.Error("failed to open sqlite database", "err", openErr)
			os.Exit(1)
		}
		store, err = sqlite.New(db)
	default:
		slog.Error("unsupported store backend", "backend", storeBackend)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("failed to create entity store", "backend", storeBackend, "err", err)
		os.Exit(1)
	}

	var conversations usecase.ConversationStore = store
	if conversationBackend == "mongodb" {
		conversations = mustMongoStore(ctx)
	} else if conversationBackend != storeBackend {
		slog.Error("unsupported conversation backend", "backend", conversationBackend)
		os.Exit(1)
	}

	// ---- Completion provider ----
	var llm usecase.LLMClient
	switch llmProvider {
	case "openai":
		llm, err = openai.NewClient(ssmClient, paramPrefix)
	case "gemini":
		llm, err = gemini.NewClient(ssmClient, paramPrefix)
	default:
		slog.Error("unsupported LLM provider", "provider", llmProvider)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("failed to create LLM client", "provider", llmProvider, "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	intakeService, err := usecase.NewIntakeService(ssmClient, llm, conversations, store, paramPrefix, maxQueryLen)
	if err != nil {
		slog.Error("failed to create intake service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(intakeService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	slog.Info("navy registrar starting",
		"store", storeBackend,
		"conversations", conversationBackend,
		"llm", llmProvider,
	)
	lambda.Start(h.Handle)
}

func mustMongoStore(ctx context.Context) *mongostore.Store {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongostore.Connect(connectCtx, mustEnv("MONGODB_URI"))
	if err != nil {
		slog.Error("failed to connect to MongoDB", "err", err)
		os.Exit(1)
	}
	coll := client.Database(envString("MONGODB_DATABASE", "navy_registrar")).Collection(mongostore.CollectionName)
	if err := mongostore.EnsureIndexes(connectCtx, coll); err != nil {
		slog.Warn("failed to create conversation indexes", "err", err)
	}
	store, err := mongostore.New(coll)
	if err != nil {
		slog.Error("failed to create conversation store", "err", err)
		os.Exit(1)
	}
	return store
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
