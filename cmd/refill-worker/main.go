package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/pharmaflow/pharmacy-assistant/cmd/mainconfig"
	appconfig "github.com/pharmaflow/pharmacy-assistant/internal/config"
	"github.com/pharmaflow/pharmacy-assistant/internal/notify"
	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
	"github.com/pharmaflow/pharmacy-assistant/internal/prescriptions"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

const scanInterval = 6 * time.Hour

// The refill worker periodically walks purchase history and emails patients
// whose supply is about to run out.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("refill worker requires DATABASE_URL")
		os.Exit(1)
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	orderStore := orders.NewStore(sqlDB)
	rxStore := prescriptions.NewStore(sqlDB)

	var sender notify.EmailSender
	if cfg.SendGridAPIKey != "" {
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	} else if cfg.SESFromEmail != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	}
	if sender == nil {
		logger.Warn("no email sender configured, refill alerts will only be recorded")
	}

	var notifier orders.RefillNotifier
	if sender != nil {
		notifier = notify.NewRefillNotifier(sender, rxStore, logger)
	}
	scanner := orders.NewScanner(orderStore, notifier, logger)

	go func() {
		ticker := time.NewTicker(scanInterval)
		defer ticker.Stop()
		for {
			result, err := scanner.Scan(ctx)
			if err != nil {
				logger.Error("refill scan failed", "error", err)
			} else {
				logger.Info("refill scan complete",
					"patients", result.PatientsScanned,
					"alerts", result.AlertsSent,
					"errors", result.Errors,
				)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("refill worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}
