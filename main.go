package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/automuse/api/bot"
	"github.com/automuse/api/events"
	"github.com/automuse/api/templates"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "err", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
	}

	store := templates.NewStore(cfg.StoreDir)
	composer := templates.NewComposer(store, cfg.IndexPath)
	composer.SetStrictFingerprint(cfg.StrictFingerprint)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "automation-template-composer",
		})
	})

	templateHandler := templates.NewHandler(composer)
	if redisClient != nil {
		templateHandler.SetNotifier(events.NewPublisher(redisClient))
	}
	templateHandler.Mount(mux)
	events.NewHandler(redisClient).Mount(mux)

	var botClient *bot.Client
	if cfg.BotToken != "" {
		botClient = bot.NewClient(cfg.BotToken)
		bot.NewHandler(botClient, composer, cfg.WebhookSecret, redisClient).Mount(mux)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           applyAuth(applyRequestBodyLimit(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if botClient != nil && cfg.BaseURL != "" {
		webhookURL := strings.TrimRight(cfg.BaseURL, "/") + "/telegram/webhook"
		registerCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := botClient.RegisterWebhook(registerCtx, webhookURL, cfg.WebhookSecret); err != nil {
			logger.Warn("webhook registration failed", "url", webhookURL, "err", err)
		} else {
			logger.Info("telegram webhook registered", "url", webhookURL)
		}
		cancel()
	}

	go func() {
		logger.Info("composer API listening", "addr", cfg.ListenAddr, "store", cfg.StoreDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if botClient != nil && cfg.BaseURL != "" {
		if err := botClient.DeleteWebhook(shutdownCtx); err != nil {
			logger.Warn("webhook removal failed", "err", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
