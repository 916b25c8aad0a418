package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arbitrageos/campaignd/internal/campaign"
	"github.com/arbitrageos/campaignd/internal/classify"
	"github.com/arbitrageos/campaignd/internal/config"
	"github.com/arbitrageos/campaignd/internal/database"
	"github.com/arbitrageos/campaignd/internal/events"
	"github.com/arbitrageos/campaignd/internal/inbox"
	"github.com/arbitrageos/campaignd/internal/mail"
	"github.com/arbitrageos/campaignd/internal/mailbox"
	"github.com/arbitrageos/campaignd/internal/ratelimit"
	"github.com/arbitrageos/campaignd/internal/scheduler"
	"github.com/arbitrageos/campaignd/internal/store/postgres"
	"github.com/arbitrageos/campaignd/internal/web"
	"github.com/arbitrageos/campaignd/internal/web/handlers"
	"github.com/arbitrageos/campaignd/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Database
	db, err := postgres.NewDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Migrations
	if err := database.RunMigrations(migrations.FS, cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Stores
	campaignStore := postgres.NewCampaignStore(db)
	leadStore := postgres.NewLeadStore(db)
	attemptStore := postgres.NewSendAttemptStore(db)
	mailboxStore := postgres.NewMailboxStore(db)
	inboundStore := postgres.NewInboundEmailStore(db)

	// Event publisher
	var publisher events.Publisher = &events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Error("failed to connect to amqp broker", "error", err)
			os.Exit(1)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	// Mailbox connector with per-mailbox send pacing
	sendLimiter := ratelimit.NewLimiter(cfg.SendRatePerSec, cfg.SendBurst)
	connector := mail.NewProviderConnector(sendLimiter)

	// Classifier
	var remote classify.Classifier
	if cfg.ClassifierURL != "" {
		remote = classify.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierKey, cfg.ClassifierModel)
	}
	classifier := classify.NewService(remote)

	// Services
	campaignService := campaign.NewService(campaignStore, leadStore, mailboxStore)
	mailboxService := mailbox.NewService(mailboxStore)
	runner := campaign.NewRunner(campaignStore, leadStore, attemptStore, mailboxStore, connector, publisher, cfg.CooldownWindow)
	processor := inbox.NewProcessor(mailboxStore, inboundStore, campaignStore, leadStore, connector, classifier, publisher, cfg.DefaultSyncBack)
	orchestrator := scheduler.NewOrchestrator(campaignStore, mailboxStore, inboundStore, runner, processor, publisher, scheduler.Options{
		Concurrency:   cfg.TickConcurrency,
		UnitTimeout:   cfg.UnitTimeout,
		RetentionDays: cfg.RetentionDays,
	})

	// Rate limiter for the operator API
	limiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Handlers
	tickHandler := handlers.NewTickHandler(orchestrator, cfg.TickBudget)
	campaignHandler := handlers.NewCampaignHandler(campaignService, mailboxService)
	mailboxHandler := handlers.NewMailboxHandler(mailboxService)

	// Router
	router := web.NewRouter(web.RouterDeps{
		TickHandler:     tickHandler,
		CampaignHandler: campaignHandler,
		MailboxHandler:  mailboxHandler,
		APIToken:        cfg.CronToken,
		Limiter:         limiter,
		DB:              db,
	})

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	// In-process tick loop for deployments without an external cron
	if cfg.TickInterval > 0 {
		go orchestrator.RunLoop(loopCtx, cfg.TickInterval, cfg.TickBudget)
	}

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TickBudget + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("campaignd starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down...")
	stopLoop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
