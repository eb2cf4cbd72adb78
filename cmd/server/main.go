// File: cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/iyunix/go-designdesk/internal/config"
	"github.com/iyunix/go-designdesk/internal/database"
	"github.com/iyunix/go-designdesk/internal/handlers"
	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/middleware"
	"github.com/iyunix/go-designdesk/internal/ratelimit"
	"github.com/iyunix/go-designdesk/internal/realtime"
	"github.com/iyunix/go-designdesk/internal/repository/account"
	"github.com/iyunix/go-designdesk/internal/repository/message"
	"github.com/iyunix/go-designdesk/internal/repository/user"
	"github.com/iyunix/go-designdesk/internal/services/identity"
	"github.com/iyunix/go-designdesk/internal/services/messaging"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, apikey")
		w.Header().Set("Access-Control-Expose-Headers", "X-Total-Count, Retry-After")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	zl, err := logger.New("designdesk", cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	appLog := zl.With("node", nodeID)

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, appLog)
	if err != nil {
		appLog.Error("database open failed", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}

	// --- Repositories ---
	accountRepo := account.NewGormAccountRepository(db, appLog)
	userRepo := user.NewGormUserRepository(db, appLog)
	messageRepo := message.NewMessageRepository(db, appLog)

	// --- Realtime ---
	ctx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()

	hub := realtime.NewHub(appLog)
	if cfg.RedisURL != "" {
		relay, err := realtime.NewRedisRelay(cfg.RedisURL, cfg.RedisChannel, nodeID, hub, appLog)
		if err != nil {
			appLog.Error("redis relay unavailable", "error", err)
			os.Exit(1)
		}
		defer relay.Close()
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("redis relay stopped", "error", err)
			}
		}()
	}

	// --- Services ---
	identityService := identity.NewService(accountRepo, userRepo, cfg.JWTSecretKey, cfg.TokenTTL, appLog)
	messagingService := messaging.NewService(messageRepo, hub, messaging.NewRenderer(), appLog)

	writeLimiter := ratelimit.NewMemoryRateLimiter(ratelimit.DefaultWriteConfig(cfg.WriteRateLimit))
	defer writeLimiter.Close()

	// --- Router Setup ---
	r := handlers.NewRouter(handlers.RouterDeps{
		APIKey:       cfg.APIKey,
		Identity:     identityService,
		Messaging:    messagingService,
		Hub:          hub,
		WriteLimiter: writeLimiter,
		Logger:       appLog,
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, middleware.CodeNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeInvalidRequest, "method not allowed")
	})

	// --- Server Configuration ---
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           corsMiddleware(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	appLog.Info("server starting",
		"addr", srv.Addr,
		"database", cfg.DatabaseDriver,
		"redis_relay", cfg.RedisURL != "",
		"write_rate_limit", cfg.WriteRateLimit,
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("server startup failed", "error", err)
			os.Exit(1)
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	appLog.Info("shutting down server")
	cancelRelay()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server shutdown failed", "error", err)
		return
	}
	appLog.Info("server stopped")
}
