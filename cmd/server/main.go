package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bidsia.com/bids-assistant/internal/api"
	"bidsia.com/bids-assistant/internal/auth"
	"bidsia.com/bids-assistant/internal/config"
	"bidsia.com/bids-assistant/internal/core"
	"bidsia.com/bids-assistant/internal/logging"
	"bidsia.com/bids-assistant/internal/store"
)

func main() {
	// Command line flags for out-of-band user provisioning
	createUser := flag.String("create-user", "", "Create a user with this username and exit")
	password := flag.String("password", "", "Password for -create-user")
	role := flag.String("role", store.RoleUser, "Role for -create-user (admin or user)")
	flag.Parse()

	// Load configuration; server secrets are checked after the provisioning path
	config.LoadConfig()
	cfg := config.AppConfig

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database store
	dbStore, err := store.NewSQLStore(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DBTimeout)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer dbStore.Close()

	if *createUser != "" {
		if err := provisionUser(dbStore, *createUser, *password, *role); err != nil {
			logger.Fatal("user provisioning failed", zap.String("username", *createUser), zap.Error(err))
		}
		logger.Info("user created", zap.String("username", *createUser), zap.String("role", *role))
		return
	}

	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}

	// Initialize LLM service
	llmService, err := core.NewLLMService(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	accounts := core.NewAccountService(dbStore, logger)
	sessions := core.NewSessionManager(llmService, cfg.UploadDir, cfg.SessionIdleTTL, logger)
	chatService := core.NewChatService(llmService, cfg.LLMTimeout, logger)
	ingestService := core.NewIngestService(llmService, cfg.LLMTimeout, logger)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go sessions.Run(janitorCtx)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(accounts, sessions, chatService, ingestService, dbStore, api.HandlerConfig{
		JWTSecret:       cfg.JWTSecret,
		TokenExpiration: cfg.TokenExpiration,
		MaxUploadBytes:  cfg.MaxUploadMB << 20,
		PerFileTimeout:  cfg.LLMTimeout,
	}, logger)
	router := api.NewRouter(apiHandler, cfg.AllowedOrigins, logger)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,                // PDF uploads
		WriteTimeout: cfg.LLMTimeout + 30*time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	stopJanitor()
	logger.Info("ending live sessions", zap.Int("count", sessions.Count()))
	sessions.Shutdown(ctx)

	// llmService.Close() and dbStore.Close() will be called by their defers.
	logger.Info("server exiting gracefully")
}

func provisionUser(dbStore *store.SQLStore, username, password, role string) error {
	if password == "" {
		return errors.New("-password is required")
	}
	if role != store.RoleAdmin && role != store.RoleUser {
		return fmt.Errorf("unknown role %q", role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = dbStore.CreateUser(context.Background(), username, hash, role)
	return err
}
