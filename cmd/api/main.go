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

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/shopstream/api/internal/di"
	"github.com/shopstream/api/internal/handlers"
	"github.com/shopstream/api/internal/platform/auth"
	"github.com/shopstream/api/internal/platform/config"
	"github.com/shopstream/api/internal/platform/events"
	pfirestore "github.com/shopstream/api/internal/platform/firestore"
	"github.com/shopstream/api/internal/platform/idempotency"
	"github.com/shopstream/api/internal/platform/observability"
	"github.com/shopstream/api/internal/repositories"
	firestoreRepo "github.com/shopstream/api/internal/repositories/firestore"
	"github.com/shopstream/api/internal/repositories/memory"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var registry repositories.Registry
	var healthOpts []handlers.HealthOption
	var idempotencyStore idempotency.Store

	switch cfg.Storage.Backend {
	case "firestore":
		provider := pfirestore.NewProvider(cfg.Firestore)
		client, err := provider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()

		fsRegistry, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			logger.Fatal("failed to initialise repositories", zap.Error(err))
		}
		registry = fsRegistry
		idempotencyStore = idempotency.NewFirestoreStore(client)
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			iter := client.Collections(ctx)
			_, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		}))
	case "memory":
		registry = memory.NewRegistry()
		idempotencyStore = idempotency.NewMemoryStore()
	default:
		logger.Fatal("unknown storage backend", zap.String("backend", cfg.Storage.Backend))
	}

	containerOpts := []di.ContainerOption{di.WithLogger(logger.Named("services"))}

	if cfg.Events.Enabled {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		orderTopic := pubsubClient.Topic(cfg.Events.OrderTopic)
		inventoryTopic := pubsubClient.Topic(cfg.Events.InventoryTopic)

		orderPublisher, err := events.NewPubSubOrderPublisher(orderTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		inventoryPublisher, err := events.NewPubSubInventoryPublisher(inventoryTopic)
		if err != nil {
			logger.Fatal("failed to initialise inventory event publisher", zap.Error(err))
		}
		containerOpts = append(containerOpts,
			di.WithOrderEventPublisher(orderPublisher),
			di.WithInventoryEventPublisher(inventoryPublisher),
		)
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("pubsub", func(ctx context.Context) error {
			ok, err := orderTopic.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("topic %s does not exist", cfg.Events.OrderTopic)
			}
			return nil
		}))
	}

	container, err := di.NewContainer(cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to wire services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	verifierOpts := []auth.HMACOption{}
	if cfg.Auth.Issuer != "" {
		verifierOpts = append(verifierOpts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	if cfg.Auth.Audience != "" {
		verifierOpts = append(verifierOpts, auth.WithAudience(cfg.Auth.Audience))
	}
	verifier, err := auth.NewHMACVerifier(cfg.Auth.JWTSecret, verifierOpts...)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders,
		handlers.WithIdempotency(idempotencyMiddleware),
	)
	adminHandlers := handlers.NewAdminOrderHandlers(authenticator, container.Services.Orders)

	healthOpts = append(healthOpts, handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)))
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute, cfg.RateLimits.AuthenticatedPerMinute),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

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
		serverLogger.Info("shopstream api listening")
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

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
