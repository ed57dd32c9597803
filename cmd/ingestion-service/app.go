package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"receipthub/internal/broker"
	"receipthub/internal/config"
	"receipthub/internal/constants"
	"receipthub/internal/ingestion"
	"receipthub/internal/logger"
	"receipthub/internal/poison"
	"receipthub/internal/store"
	"receipthub/internal/tokenizer"
	"receipthub/pkg/bootstrap"
	"receipthub/pkg/health"
	"receipthub/pkg/metrics"
	"receipthub/pkg/migrations"
)

type App struct {
	*bootstrap.Base
	dbConnector   *bootstrap.DatabaseConnector
	redis         *redis.Client
	mongoClient   *mongo.Client
	service       *ingestion.Service
	poisonService *poison.Service
	server        *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("ingestion-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker("ingestion-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	metrics.RegisterIngestionMetrics()
	metrics.RegisterBrokerMetrics()

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	if mongoClient == nil {
		return fmt.Errorf("mongodb is required for the ingestion service")
	}
	a.mongoClient = mongoClient

	if err := migrations.EnsureMongoCollections(ctx, a.mongoDatabase()); err != nil {
		return fmt.Errorf("failed to ensure mongo collections: %w", err)
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.Warnw("Redis unavailable, event dedup fast path disabled", "error", err)
	} else {
		a.redis = rdb
	}

	return nil
}

func (a *App) mongoDatabase() *mongo.Database {
	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(dbName)
}

func (a *App) initServices() error {
	db := a.mongoDatabase()
	receipts := store.NewReceiptStore(db)
	carts := store.NewCartStore(db)
	events := store.NewBizEventStore(db)
	receiptErrors := store.NewReceiptErrorStore(db)

	dedup := ingestion.NewDedup(a.redis, a.Config.Ingestion.DedupTTLSeconds, a.Logger)
	tokens := tokenizer.NewClient(a.Config.Tokenizer, a.Logger)

	a.service = ingestion.NewService(
		receipts, carts, events, tokens, a.Producer, dedup,
		ingestion.Config{
			GenerationTopic:        a.Config.Broker.Kafka.GenerationTopic,
			AuthenticatedChannels:  a.Config.Ingestion.AuthenticatedChannels,
			UnwantedRemittanceInfo: a.Config.Ingestion.UnwantedRemittanceInfo,
			ECommerceFilterEnabled: a.Config.Ingestion.ECommerceFilterEnabled,
		},
		a.Logger,
	)

	ingestionTopic := a.Config.Broker.Kafka.IngestionTopic
	if ingestionTopic == "" {
		ingestionTopic = constants.DefaultIngestionTopic
	}
	a.poisonService = poison.NewService(
		receiptErrors, a.Producer, ingestionTopic,
		a.Config.Broker.Kafka.GenerationTopic, a.Logger,
	)

	return nil
}

func (a *App) initHTTPServer() error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	ingestionTopic := a.Config.Broker.Kafka.IngestionTopic
	if ingestionTopic == "" {
		ingestionTopic = constants.DefaultIngestionTopic
	}
	g.Go(func() error {
		return a.Consumer.Consume(gCtx, ingestionTopic, a.service.HandleMessage)
	})

	if a.Config.Ingestion.ListenCartEvents {
		cartTopic := a.Config.Broker.Kafka.CartTopic
		if cartTopic == "" {
			cartTopic = constants.DefaultCartTopic
		}
		cartConsumer := broker.NewConsumer(a.Config.Broker, a.Logger)
		cartConsumer.SetServiceName("ingestion-service")
		defer cartConsumer.Close()
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting cart event consumer", "topic", cartTopic)
			return cartConsumer.Consume(gCtx, cartTopic, a.service.HandleMessage)
		})
	}

	poisonTopic := a.Config.Broker.Kafka.PoisonTopic
	if poisonTopic != "" {
		poisonConsumer := broker.NewConsumer(a.Config.Broker, a.Logger)
		poisonConsumer.SetServiceName("ingestion-service")
		defer poisonConsumer.Close()
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting poison queue consumer", "topic", poisonTopic)
			return poisonConsumer.Consume(gCtx, poisonTopic, a.poisonService.HandleMessage)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down ingestion service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, nil, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
