package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/luxentry/lux-entry-bot/internal/config"
	"github.com/luxentry/lux-entry-bot/internal/handlers"
	"github.com/luxentry/lux-entry-bot/internal/middleware"
	"github.com/luxentry/lux-entry-bot/internal/onboarding"
	"github.com/luxentry/lux-entry-bot/internal/scheduler"
	"github.com/luxentry/lux-entry-bot/internal/verification"
	"github.com/luxentry/lux-entry-bot/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	rdb, err := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "lux_entry")
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	sessions := store.NewRedisSessionStore(rdb, cfg.SessionTTLHours)
	reminderLog := store.NewRedisReminderLog(rdb)

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()

	httpClient := &http.Client{
		Timeout: 10 * time.Minute,
	}
	pollTimeout := 50 * time.Second

	b, err := bot.New(
		cfg.BotToken,
		bot.WithHTTPClient(pollTimeout, httpClient),
	)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	ocr, err := verification.NewVisionExtractor(ctx, cfg.VisionCredentialsFile)
	if err != nil {
		log.Fatalf("Failed to create Vision client: %v", err)
	}
	defer ocr.Close()

	workflow := verification.NewWorkflow(verification.NewTelegramFiles(b), ocr, pgStore, pgStore)
	machine := onboarding.NewMachine(pgStore, pgStore, sessions, workflow)
	h := handlers.NewHandlers(machine)

	handlerChain := middleware.NewMessageAnalyzer().AnalyzeMessageMiddleware(h.MainHandler)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	reminders := scheduler.NewReminderScheduler(pgStore, reminderLog, &scheduler.TelegramSender{Bot: b}, time.Local)
	if err := reminders.Start(cfg.ReminderTime); err != nil {
		log.Fatalf("Failed to start reminder scheduler: %v", err)
	}
	defer reminders.Stop()

	if cfg.BaseURL != "" {
		runWebhook(ctx, b, cfg)
		return
	}

	log.Println("Bot started with long polling. Press Ctrl+C to stop.")
	b.Start(ctx)
}

func runWebhook(ctx context.Context, b *bot.Bot, cfg *config.Config) {
	webhookURL := strings.TrimRight(cfg.BaseURL, "/") + "/bot" + cfg.BotToken
	if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: webhookURL}); err != nil {
		log.Fatalf("Failed to set webhook: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: b.WebhookHandler(),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Webhook server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Bot started via webhook on %s", cfg.ListenAddr)
	b.StartWebhook(ctx)
}
