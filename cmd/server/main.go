package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/docstream/internal/api"
	"github.com/lalith-99/docstream/internal/config"
	"github.com/lalith-99/docstream/internal/db"
	"github.com/lalith-99/docstream/internal/document"
	"github.com/lalith-99/docstream/internal/observ"
	"github.com/lalith-99/docstream/internal/realtime"
	"github.com/lalith-99/docstream/internal/repository"
	"github.com/lalith-99/docstream/internal/repository/memory"
	"github.com/lalith-99/docstream/internal/repository/postgres"
	"github.com/lalith-99/docstream/internal/repository/redis"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores is every repository the server needs, from whichever backend.
type stores struct {
	docs     repository.DocumentRepository
	versions repository.VersionRepository
	ops      repository.OperationRepository
	users    repository.UserRepository
	tenants  repository.TenantRepository
	presence repository.PresenceRepository
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var s stores
	checks := make(map[string]api.HealthCheck)

	// ---------------------------------------------------------------
	// 1. Document, version and account storage
	// ---------------------------------------------------------------
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		pool := database.Pool()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		s.docs = postgres.NewDocumentStore(pool)
		s.versions = postgres.NewVersionStore(pool)
		s.ops = postgres.NewOperationStore(pool)
		s.users = postgres.NewUserStore(pool)
		s.tenants = postgres.NewTenantStore(pool)
		checks["postgres"] = database.Health
	default:
		logger.Warn("using in-memory stores; data is lost on restart")
		versions := memory.NewVersionStore()
		s.docs = memory.NewDocumentStore(versions)
		s.versions = versions
		s.ops = memory.NewOperationStore()
		s.users = memory.NewUserStore()
		s.tenants = memory.NewTenantStore()
	}

	// ---------------------------------------------------------------
	// 2. Presence registry
	// ---------------------------------------------------------------
	switch cfg.PresenceBackend {
	case config.BackendRedis:
		rdb, err := db.NewRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()

		s.presence = redis.NewPresenceStore(rdb.Client())
		checks["redis"] = rdb.Health
	default:
		s.presence = memory.NewPresenceStore()
	}

	// ---------------------------------------------------------------
	// 3. Domain: document service and the realtime hub in front of it
	// ---------------------------------------------------------------
	svc := document.NewService(s.docs, s.versions, s.ops, logger,
		document.WithHistoryLimit(cfg.HistoryLimit))

	hub := realtime.NewHub(svc, s.presence, realtime.Options{
		SendBuffer:      cfg.WSSendBuffer,
		WriteTimeout:    cfg.WSWriteTimeout,
		PongTimeout:     cfg.WSPongTimeout,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
		OpTimeout:       cfg.OpTimeout,
	}, logger)

	// ---------------------------------------------------------------
	// 4. HTTP
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Handlers{
		Auth:      api.NewAuthHandler(s.users, s.tenants, cfg.JWTSecret, cfg.TokenTTL, logger),
		Users:     api.NewUserHandler(s.users, logger),
		Documents: api.NewDocumentHandler(svc, hub, logger),
		Presence:  api.NewPresenceHandler(svc, s.presence, logger),
		Health:    api.NewHealthHandler(checks, logger),
	}, cfg.JWTSecret, gin.Logger(), gin.Recovery())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting docstream",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreBackend),
			zap.String("presence", cfg.PresenceBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown does not touch hijacked websocket connections.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
