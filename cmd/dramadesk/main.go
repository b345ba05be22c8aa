package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"dramadesk/internal/bot"
	"dramadesk/internal/config"
	"dramadesk/internal/httpapi"
	"dramadesk/internal/intake"
	"dramadesk/internal/session"
	"dramadesk/internal/storage"
	"dramadesk/internal/wizard"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.WithFields(logrus.Fields{
		"server_port":   cfg.ServerPort,
		"dedup_db_path": cfg.DedupDBPath,
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	log.Info("Initializing components...")

	// Update dedup store
	seen, err := storage.NewDedupStore(cfg.DedupDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize dedup store: %v", err)
	}
	defer func() {
		if err := seen.Close(); err != nil {
			log.WithError(err).Error("Error closing dedup store")
		}
	}()

	// Post repository (connects lazily on first use)
	repo := storage.NewMongoRepository(cfg.MongoURI, cfg.MongoDatabase, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Close(closeCtx); err != nil {
			log.WithError(err).Error("Error closing post repository")
		}
	}()

	// Telegram client. The bot is used purely as an outbound/file API
	// client; updates arrive through the webhook endpoint.
	b, err := tgbot.New(cfg.TelegramBotToken, tgbot.WithSkipGetMe())
	if err != nil {
		log.Fatalf("Failed to create Telegram bot client: %v", err)
	}
	sender := bot.NewTelegramSender(b, log)

	// Image intake (Cloudinary client is created lazily on first upload)
	uploader := intake.NewCloudinaryUploader(intake.Credentials{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
	}, sender, log)

	// Wizard and dispatcher
	sessions := session.NewStore()
	wiz := wizard.NewEngine(sessions, uploader, repo, log)
	dispatcher := bot.NewDispatcher(cfg.AdminChatID, sender, wiz, repo, seen, log)

	// HTTP surface
	api := httpapi.NewServer(repo, dispatcher, httpapi.EnvStatus{
		Mongo:    cfg.MongoURI != "",
		Telegram: cfg.TelegramBotToken != "",
		Admin:    cfg.AdminChatID != "",
		Cloudinary: cfg.CloudinaryCloudName != "" &&
			cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "",
	}, log)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: api.Router(),
	}

	// --- Application Startup ---
	log.Info("Starting DramaDesk...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	log.Info("DramaDesk is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down DramaDesk...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	// The deferred repository and dedup store closes run now.
	log.Info("DramaDesk shut down gracefully.")
}
