package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/orderengine/internal/di"
	"github.com/hanko-field/orderengine/internal/handlers"
	"github.com/hanko-field/orderengine/internal/platform/config"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/platform/observability"
	"github.com/hanko-field/orderengine/internal/platform/secrets"
)

// Set at build time with -ldflags "-X main.version=... -X main.commitSHA=...".
var (
	version   = "dev"
	commitSHA = ""
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	bootLogger, err := observability.NewLogger(os.Getenv("ENGINE_LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = bootLogger.Sync()
	}()

	resolver, err := secrets.NewResolver(ctx,
		secrets.WithLogger(bootLogger.Named("secrets")),
		secrets.WithProject(secretsProjectID()),
	)
	if err != nil {
		bootLogger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			bootLogger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			bootLogger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	baseLogger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		bootLogger.Fatal("failed to initialise logger", zap.Error(err))
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("engine").With(zap.String("channel", cfg.Channel.Code))

	container, err := di.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	router := newRouter(cfg, container, logger, handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commitSHA,
		Environment: cfg.Server.Environment,
		StartedAt:   startedAt,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("order engine listening", zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(cfg config.Config, container *di.Container, logger *zap.Logger, build handlers.BuildInfo) http.Handler {
	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.ActorMiddleware,
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware,
	}

	idemOpts := []idempotency.MiddlewareOption{idempotency.WithTTL(cfg.Idempotency.TTL)}
	if cfg.Idempotency.Required {
		idemOpts = append(idemOpts, idempotency.WithRequired())
	}
	paymentGuard := idempotency.Middleware(container.Idempotency, idemOpts...)

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(svc.Orders, svc.Payments, handlers.WithPaymentGuard(paymentGuard))
	paymentHandlers := handlers.NewPaymentHandlers(svc.Payments, paymentGuard)
	adminHandlers := handlers.NewAdminHandlers(svc.Reference,
		handlers.WithInvalidationLimit(cfg.Admin.InvalidateLimit, cfg.Admin.InvalidateWindow, time.Now),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(build),
		handlers.WithHealthSystemService(svc.System),
	)

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)
}

func secretsProjectID() string {
	for _, key := range []string{"ENGINE_SECRETS_PROJECT_ID", "ENGINE_FIRESTORE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}
