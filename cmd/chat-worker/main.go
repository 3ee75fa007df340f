package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/pharmaflow/pharmacy-assistant/cmd/mainconfig"
	"github.com/pharmaflow/pharmacy-assistant/internal/catalog"
	"github.com/pharmaflow/pharmacy-assistant/internal/chat"
	appconfig "github.com/pharmaflow/pharmacy-assistant/internal/config"
	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
	"github.com/pharmaflow/pharmacy-assistant/internal/pending"
	"github.com/pharmaflow/pharmacy-assistant/internal/prescriptions"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// The chat worker drains the SQS turn queue out of process. API instances
// enqueue turns and poll job status; this binary does the actual dialogue
// work so chat throughput scales independently of HTTP traffic.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" || cfg.ChatQueueURL == "" {
		logger.Error("chat worker requires DATABASE_URL and CHAT_QUEUE_URL")
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	catalogStore := catalog.NewStore(pool)
	pendingStore := pending.NewStore(pool)
	orderStore := orders.NewStore(sqlDB)
	rxStore := prescriptions.NewStore(sqlDB)

	var llmClient chat.LLMClient
	if cfg.BedrockModelID != "" {
		llmClient = chat.NewTimeoutLLMClient(
			chat.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)),
			cfg.OracleTimeout,
		)
	}
	classifier := chat.NewIntentClassifier(llmClient, cfg.BedrockModelID, chat.ClassifierConfig{
		EmergencyPhrases: cfg.EmergencyPhrases,
		SymptomWords:     cfg.SymptomWords,
		OrderWords:       cfg.OrderWords,
		CheckoutWords:    cfg.CheckoutWords,
	})
	evaluator := chat.NewEvaluator(llmClient, rxStore, cfg.BedrockModelID, logger)
	scanner := orders.NewScanner(orderStore, nil, logger)

	engine := chat.NewEngine(
		catalogStore,
		pendingStore,
		orderStore,
		classifier,
		evaluator,
		nil,
		scanner,
		nil,
		logger,
		chat.EngineOptions{
			MatchThreshold:       cfg.FuzzyMatchThreshold,
			DefaultQuantity:      cfg.DefaultQuantity,
			MaxAlternatives:      cfg.MaxAlternatives,
			RecentPurchaseWindow: cfg.RecentPurchaseWindow,
			EmergencyPhrases:     cfg.EmergencyPhrases,
		},
	)

	queue := chat.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ChatQueueURL)
	jobs := chat.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.ChatJobsTable, logger)

	dispatcher := chat.NewQueueDispatcher(engine, queue, logger,
		chat.WithWorkerCount(cfg.WorkerCount),
		chat.WithJobStore(jobs, jobs),
	)

	logger.Info("chat worker started", "workers", cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down chat worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("chat worker shutdown timed out", "error", err)
	}
	logger.Info("chat worker stopped")
}
