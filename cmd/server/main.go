package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"github.com/user/mafia-suspicion/config"
	"github.com/user/mafia-suspicion/internal/api"
	"github.com/user/mafia-suspicion/internal/game"
	"github.com/user/mafia-suspicion/internal/narrative"
	"github.com/user/mafia-suspicion/internal/telemetry"
	"github.com/user/mafia-suspicion/internal/whatsapp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.json", "Path to configuration file")
	flag.Parse()

	// A missing .env is fine
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootLogger := setupLogger("info")
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Set up logger
	logger := setupLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		logger.Error("Failed to set up tracing", zap.Error(err))
	}

	// Initialize game manager
	gameManager := game.NewGameManager(cfg)
	gameManager.SetLogger(logger)
	gameManager.SetNarrator(narrative.NewNarrator(narrative.NewClient(cfg.Narration, logger)))

	// Initialize WhatsApp client manager
	clientManager := whatsapp.NewClientManager(gameManager, cfg, logger)

	// The chat is both where updates are published and where roles are whispered
	gameManager.SetPublisher(clientManager)
	gameManager.SetMessageSender(clientManager)

	qrManager := whatsapp.NewQRCodeManager(clientManager, cfg, logger)
	accountManager := whatsapp.NewAccountManager(cfg.WhatsApp.StoreDir, clientManager, logger)

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.NewRouter(cfg.Server, api.Deps{
			Games:    gameManager,
			QR:       qrManager,
			Accounts: accountManager,
			Logger:   logger,
		}),
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// Start the event system after everything else is initialized
	gameManager.StartEventSystem()

	waitForShutdown(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	gameManager.StopEventSystem()
	gameManager.Flush()
	clientManager.DisconnectAll()
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Tracing shutdown failed", zap.Error(err))
	}
}

func setupLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		config.Level = lvl
	}
	logger, _ := config.Build()
	return logger
}

func waitForShutdown(logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("Shutting down")
}
