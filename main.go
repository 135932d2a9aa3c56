package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/phoenixchat/phoenixchat/pkg/ai"
	"github.com/phoenixchat/phoenixchat/pkg/auth"
	"github.com/phoenixchat/phoenixchat/pkg/config"
	"github.com/phoenixchat/phoenixchat/pkg/db"
	"github.com/phoenixchat/phoenixchat/pkg/event"
	"github.com/phoenixchat/phoenixchat/pkg/handler"
	"github.com/phoenixchat/phoenixchat/pkg/service"
	"github.com/phoenixchat/phoenixchat/pkg/utils"
)

func main() {
	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	if _, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("could not write default config", "error", err)
	}
	cfg, configPath, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded", "path", configPath)

	gdb, err := db.Open(cfg.DataDir())
	if err != nil {
		logger.Error("open database failed", "error", err)
		os.Exit(1)
	}

	buffer := service.NewLocalBuffer(cfg.DataDir())
	store := service.NewChatStore(gdb, buffer, cfg.HistoryLimit())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var gen ai.Generator
	if key := cfg.APIKey(); key != "" {
		gemini, err := ai.NewGeminiGenerator(ctx, key, cfg.Model())
		if err != nil {
			logger.Error("gemini initialization failed", "error", err)
			os.Exit(1)
		}
		gen = gemini
	} else {
		logger.Warn("no API key configured, chat generation disabled")
		gen = ai.Unconfigured{}
	}

	session := service.NewChatSession(store, gen)
	migration := service.NewMigrationService(store, session.ApplyLoaded)

	bus := event.Default()
	unbindSession := session.BindUser(bus)
	defer unbindSession()
	unbindMigration := migration.Bind(bus)
	defer unbindMigration()

	provider := auth.NewStaticProvider()
	unbindAuth, err := auth.Bind(ctx, provider, bus)
	if err != nil {
		logger.Error("bind auth provider failed", "error", err)
		os.Exit(1)
	}
	defer unbindAuth()

	chatHandler := handler.NewChatHandler(session, store, migration, provider)
	server := NewServer(cfg.Host(), cfg.Port(), chatHandler)

	if err := server.Start(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
