package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oscarbot/gateway-service/client"
	"github.com/oscarbot/gateway-service/config"
	"github.com/oscarbot/gateway-service/database"
	"github.com/oscarbot/gateway-service/gateway"
	"github.com/oscarbot/gateway-service/handlers"
	"github.com/oscarbot/gateway-service/logger"
	"github.com/oscarbot/gateway-service/middleware"
	"github.com/oscarbot/gateway-service/services"
)

// sweepInterval is how often the log retention policy is applied.
const sweepInterval = time.Hour

func main() {
	// Load .env file if present (development convenience).
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	settings, err := config.LoadSettings("")
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}

	db, err := database.ConnectGormDB(database.NewDatabaseConfig())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := logger.NewStore(db)
	audit := logger.New(store)

	accounts := services.NewAccountStore(db)

	var sessions services.SessionManager
	switch settings.SessionBackend {
	case "redis":
		redisSessions, err := services.NewRedisSessionStore(ctx,
			settings.RedisAddr, settings.RedisUsername, settings.RedisPassword, settings.RedisDB)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisSessions.Close()
		sessions = redisSessions
	default:
		sessions = services.NewMemorySessionStore()
	}

	csrf := services.NewCSRFSigner(settings.SessionSecret)
	mailer := services.LogMailer{}

	registry := gateway.NewRegistry(
		services.NewUserService(accounts, sessions, csrf, mailer),
		services.NewTestService(settings.MaintenanceMode),
	)
	gate := gateway.NewGate(registry, settings.BackendGatewayToken, audit)
	dispatcher := gateway.NewDispatcher(registry, audit,
		settings.PerformanceTracing, settings.TrackErrorResult)

	gatewayHandler := handlers.NewGatewayHandler(gate, dispatcher, sessions)
	logsHandler := handlers.NewLogsHandler(store)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.Health)
	if settings.ModuleActive("server") {
		mux.HandleFunc("/gateway/{group}/{service}", gatewayHandler.Handle)
	}
	if settings.ModuleActive("client") {
		restClient, err := client.New(client.Config{
			BaseURL:        settings.BaseURL,
			APIKey:         settings.APIKey,
			APIKeyType:     settings.APIKeyType,
			SendParamsType: settings.SendParamsType,
			SkipSSL:        settings.SkipSSL,
			ProxyServer:    settings.ProxyServer,
			Tracing:        settings.PerformanceTracing,
			TrackErrors:    settings.TrackErrorResult,
		}, audit)
		if err != nil {
			slog.Error("Failed to configure REST client", "error", err)
			os.Exit(1)
		}
		mux.HandleFunc("/client/{group}/{service}", handlers.NewClientHandler(restClient).Handle)
	}
	mux.HandleFunc("GET /logs/totals", logsHandler.GetTotals)
	mux.HandleFunc("GET /logs/{type}/{id}", logsHandler.GetEntry)
	mux.HandleFunc("POST /logs/purge", logsHandler.Purge)

	go logger.RunSweeper(ctx, store, logger.RetentionPolicy{
		MaxAge:  time.Duration(settings.LogMaxTime) * time.Second,
		MaxRows: settings.LogMaxRows,
	}, sweepInterval)

	port := config.GetEnvOrDefault("PORT", "3001")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      middleware.SecurityHeaders(middleware.RequestLogging(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Gateway service starting", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
