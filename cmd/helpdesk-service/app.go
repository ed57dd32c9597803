package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "receipthub/docs" // swagger spec registration

	"receipthub/internal/config"
	"receipthub/internal/constants"
	"receipthub/internal/helpdesk"
	"receipthub/internal/ingestion"
	"receipthub/internal/logger"
	"receipthub/internal/store"
	"receipthub/internal/tokenizer"
	"receipthub/pkg/bootstrap"
	"receipthub/pkg/health"
	"receipthub/pkg/metrics"
	"receipthub/pkg/middleware"
	"receipthub/pkg/ratelimit"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	mongoClient *mongo.Client
	service     helpdesk.Service
	jobs        *helpdesk.JobRunner
	server      *http.Server
	router      *gin.Engine
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("helpdesk-service")
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

	if err := a.InitBroker("helpdesk-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: a.router,
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	if mongoClient == nil {
		return fmt.Errorf("mongodb is required for the helpdesk service")
	}
	a.mongoClient = mongoClient

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		if err := helpdesk.RunMigrations(db); err != nil {
			db.Close()
			return fmt.Errorf("failed to migrate audit schema: %w", err)
		}
		a.db = db
	} else {
		a.Logger.Warnw("PostgreSQL not configured, recovery audit trail disabled")
	}

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.AccessLogMiddleware(a.Logger))

	if a.Config.Helpdesk.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.Helpdesk.RateLimit.RPS,
			Burst:           a.Config.Helpdesk.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.Helpdesk.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.Helpdesk.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	mongoDB := a.mongoClient.Database(dbName)

	receipts := store.NewReceiptStore(mongoDB)
	carts := store.NewCartStore(mongoDB)
	events := store.NewBizEventStore(mongoDB)
	receiptErrors := store.NewReceiptErrorStore(mongoDB)

	var audit helpdesk.AuditRepository
	if a.db != nil {
		audit = helpdesk.NewAuditRepository(a.db)
	}

	tokens := tokenizer.NewClient(a.Config.Tokenizer, a.Logger)
	rebuild := ingestion.NewReceiptBuilder(ingestion.Config{
		AuthenticatedChannels:  a.Config.Ingestion.AuthenticatedChannels,
		UnwantedRemittanceInfo: a.Config.Ingestion.UnwantedRemittanceInfo,
		ECommerceFilterEnabled: a.Config.Ingestion.ECommerceFilterEnabled,
	}, tokens)

	a.service = helpdesk.NewService(
		receipts, carts, events, receiptErrors,
		a.Producer, rebuild, audit,
		a.Config.Broker.Kafka.IngestionTopic,
		a.Config.Broker.Kafka.GenerationTopic,
		a.Config.Helpdesk.Jobs.LookbackDays,
		a.Logger,
	)
	a.jobs = helpdesk.NewJobRunner(a.service, a.Config.Helpdesk.Jobs, a.Logger)

	handler := helpdesk.NewHandler(a.service, audit, a.Logger)
	handler.RegisterRoutes(router)

	metrics.RegisterHelpdeskMetrics()
	metrics.RegisterBrokerMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	if a.db != nil {
		healthRegistry.RegisterOptional(health.NewPostgreSQLChecker(a.db))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.jobs.Enabled() {
		g.Go(func() error {
			return a.jobs.Start(gCtx)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down helpdesk service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.db, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
