package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pharmaflow/pharmacy-assistant/cmd/mainconfig"
	"github.com/pharmaflow/pharmacy-assistant/internal/api/router"
	"github.com/pharmaflow/pharmacy-assistant/internal/catalog"
	"github.com/pharmaflow/pharmacy-assistant/internal/chat"
	appconfig "github.com/pharmaflow/pharmacy-assistant/internal/config"
	"github.com/pharmaflow/pharmacy-assistant/internal/http/handlers"
	"github.com/pharmaflow/pharmacy-assistant/internal/notify"
	"github.com/pharmaflow/pharmacy-assistant/internal/observability/metrics"
	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
	"github.com/pharmaflow/pharmacy-assistant/internal/pending"
	"github.com/pharmaflow/pharmacy-assistant/internal/prescriptions"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

func main() {
	// No .env file in production, the platform provides env vars there.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pharmacy-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

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

	catalogStore := catalog.NewStore(pool)
	pendingStore := pending.NewStore(pool)
	orderStore := orders.NewStore(sqlDB)
	rxStore := prescriptions.NewStore(sqlDB)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// LLM oracles: Bedrock primary, Gemini fallback. Either side may be
	// absent; the engine degrades safely without an oracle.
	var primary, fallback chat.LLMClient
	if cfg.BedrockModelID != "" {
		primary = chat.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}
	if cfg.GeminiAPIKey != "" {
		geminiClient, err := chat.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
		} else {
			fallback = geminiClient
			defer func() { _ = geminiClient.Close() }()
		}
	}
	var llmClient chat.LLMClient
	switch {
	case primary != nil:
		llmClient = chat.NewFallbackLLMClient(primary, fallback, logger)
	case fallback != nil:
		llmClient = fallback
	default:
		logger.Warn("no LLM configured, oracle paths disabled")
	}
	if llmClient != nil {
		llmClient = chat.NewTimeoutLLMClient(llmClient, cfg.OracleTimeout)
	}

	classifier := chat.NewIntentClassifier(llmClient, cfg.BedrockModelID, chat.ClassifierConfig{
		EmergencyPhrases: cfg.EmergencyPhrases,
		SymptomWords:     cfg.SymptomWords,
		OrderWords:       cfg.OrderWords,
		CheckoutWords:    cfg.CheckoutWords,
	})
	evaluator := chat.NewEvaluator(llmClient, rxStore, cfg.BedrockModelID, logger)

	// Refill alerting over email when a sender is configured.
	var notifier orders.RefillNotifier
	if sender := buildEmailSender(awsCfg, cfg, logger); sender != nil {
		notifier = notify.NewRefillNotifier(sender, rxStore, logger)
	}
	scanner := orders.NewScanner(orderStore, notifier, logger)

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	historyStore := chat.NewHistoryStore(redis.NewClient(redisOpts), nil)

	chatMetrics := metrics.NewChatMetrics(prometheus.DefaultRegisterer)

	engine := chat.NewEngine(
		catalogStore,
		pendingStore,
		orderStore,
		classifier,
		evaluator,
		historyStore,
		scanner,
		chatMetrics,
		logger,
		chat.EngineOptions{
			MatchThreshold:       cfg.FuzzyMatchThreshold,
			DefaultQuantity:      cfg.DefaultQuantity,
			MaxAlternatives:      cfg.MaxAlternatives,
			RecentPurchaseWindow: cfg.RecentPurchaseWindow,
			EmergencyPhrases:     cfg.EmergencyPhrases,
		},
	)

	// Job tracking: DynamoDB when running against SQS, Postgres otherwise.
	var jobRecorder chat.JobRecorder
	var dispatcher *chat.QueueDispatcher
	if cfg.UseMemoryQueue || cfg.ChatQueueURL == "" {
		logger.Info("using in-memory chat queue")
		pgJobs := chat.NewPGJobStore(pool)
		jobRecorder = pgJobs
		dispatcher = chat.NewQueueDispatcher(engine, chat.NewMemoryQueue(0), logger,
			chat.WithWorkerCount(cfg.WorkerCount),
			chat.WithJobStore(pgJobs, pgJobs),
		)
	} else {
		sqsQueue := chat.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ChatQueueURL)
		dynamoJobs := chat.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.ChatJobsTable, logger)
		jobRecorder = dynamoJobs
		dispatcher = chat.NewQueueDispatcher(engine, sqsQueue, logger,
			chat.WithWorkerCount(cfg.WorkerCount),
			chat.WithJobStore(dynamoJobs, dynamoJobs),
		)
	}

	chatHandler := chat.NewHandler(dispatcher, historyStore, jobRecorder, logger)

	var fileStore *prescriptions.FileStore
	if cfg.PrescriptionBucket != "" {
		fileStore = prescriptions.NewFileStore(s3.NewFromConfig(awsCfg), cfg.PrescriptionBucket)
	}
	rxHandler := prescriptions.NewHandler(rxStore, fileStore, logger)

	routerCfg := &router.Config{
		Logger:               logger,
		ChatHandler:          chatHandler,
		PrescriptionsHandler: rxHandler,
		AdminCatalog:         handlers.NewAdminCatalogHandler(catalogStore, cfg.LowStockThreshold, logger),
		AdminRefill:          handlers.NewAdminRefillHandler(scanner, logger),
		AdminAuthSecret:      cfg.AdminJWTSecret,
		MetricsHandler:       promhttp.Handler(),
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		ChatRateLimit:        cfg.ChatRateLimit,
		ChatRateBurst:        cfg.ChatRateBurst,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

// buildEmailSender picks SendGrid when an API key is present, then SES, and
// returns nil when neither is configured.
func buildEmailSender(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.SendGridAPIKey != "" {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	if cfg.SESFromEmail != "" {
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	return nil
}
