package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-svc/cache"
	"catalog-svc/config"
	"catalog-svc/database"
	"catalog-svc/handlers"
	"catalog-svc/kafka"
	"catalog-svc/middleware"
	"catalog-svc/repository"
	"catalog-svc/rpc"
	"catalog-svc/service"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gorm.io/gorm"
)

func main() {
	seed := flag.Bool("seed", false, "replace the catalog with the sample products and exit")
	flag.Parse()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	// Initialize database
	db, sqlDB, err := database.InitDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	if *seed {
		runSeed(db, sqlDB, logger)
		return
	}

	// Initialize OpenTelemetry
	endpoint := ""
	if cfg.Tracing.Enabled {
		endpoint = cfg.Tracing.JaegerEndpoint
	}
	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, endpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	opts := []service.Option{service.WithMaxLimit(cfg.ListMaxLimit)}

	// Initialize Redis cache; the catalog keeps serving from the database
	// without it.
	var (
		redisClient  *redis.Client
		productCache *cache.ProductCache
		cachePinger  handlers.Pinger
	)
	if cfg.Cache.Enabled {
		redisClient, err = cache.InitRedis(cfg.Cache, logger)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		} else {
			productCache = cache.NewProductCache(redisClient, cfg.Cache.TTL)
			cachePinger = productCache
			opts = append(opts, service.WithCache(productCache))
		}
	}

	// Initialize Kafka
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var (
		producer sarama.SyncProducer
		consumer sarama.Consumer
	)
	if cfg.Kafka.Enabled {
		producer, err = kafka.InitProducer(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
		}
		opts = append(opts, service.WithPublisher(kafka.NewPublisher(producer, cfg.Kafka.Topic, logger)))

		if productCache != nil {
			consumer, err = kafka.InitConsumer(cfg.Kafka, logger)
			if err != nil {
				logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
			}
			handler := kafka.NewEventHandler(productCache, logger)
			go func() {
				if err := kafka.StartConsumer(consumerCtx, consumer, cfg.Kafka.Topic, handler); err != nil {
					logger.Error("Kafka consumer stopped", zap.Error(err))
				}
			}()
		}
	} else {
		opts = append(opts, service.WithPublisher(kafka.NoopPublisher{}))
	}

	productRepo := repository.NewProductRepository(db)
	productService := service.NewProductService(productRepo, logger, opts...)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.NewHealthHandler(cfg.ServiceName, productService, cachePinger).HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	productHandler := handlers.NewProductHandler(productService, logger)
	productHandler.RegisterRoutes(router.Group("/api/products"))

	restSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := restSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Catalog Service REST API started", zap.String("addr", cfg.HTTPAddr))

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	rpc.RegisterCatalogServer(grpcServer, handlers.NewCatalogServer(productService, logger))

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	logger.Info("Catalog Service gRPC server started", zap.String("addr", cfg.GRPCAddr))

	gracefulShutdown(shutdownDeps{
		restSrv:         restSrv,
		grpcServer:      grpcServer,
		sqlDB:           sqlDB,
		redisClient:     redisClient,
		producer:        producer,
		consumer:        consumer,
		stopConsumer:    stopConsumer,
		shutdownTracing: shutdownTracing,
		timeout:         cfg.ShutdownTimeout,
	}, logger)
}

func runSeed(db *gorm.DB, sqlDB *sql.DB, logger *zap.Logger) {
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := database.Seed(ctx, db, logger)
	if err != nil {
		logger.Fatal("Failed to seed database", zap.Error(err))
	}
	logger.Info("Database seeded", zap.Int("products", n))
}

type shutdownDeps struct {
	restSrv         *http.Server
	grpcServer      *grpc.Server
	sqlDB           *sql.DB
	redisClient     *redis.Client
	producer        sarama.SyncProducer
	consumer        sarama.Consumer
	stopConsumer    context.CancelFunc
	shutdownTracing func()
	timeout         time.Duration
}

// gracefulShutdown handles SIGINT/SIGTERM and shuts down all services gracefully
func gracefulShutdown(deps shutdownDeps, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), deps.timeout)
	defer cancel()

	// Stop REST server
	if err := deps.restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("REST server stopped gracefully")
	}

	// Stop gRPC server
	deps.grpcServer.GracefulStop()
	logger.Info("gRPC server stopped gracefully")

	deps.stopConsumer()
	if deps.consumer != nil {
		if err := deps.consumer.Close(); err != nil {
			logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
	}
	if deps.producer != nil {
		if err := deps.producer.Close(); err != nil {
			logger.Error("Failed to close Kafka producer", zap.Error(err))
		} else {
			logger.Info("Kafka producer closed gracefully")
		}
	}

	// Close database
	if err := deps.sqlDB.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	} else {
		logger.Info("Database connection closed gracefully")
	}

	// Close Redis cache
	if deps.redisClient != nil {
		if err := deps.redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis cache", zap.Error(err))
		} else {
			logger.Info("Redis cache closed gracefully")
		}
	}

	// Shutdown tracing
	deps.shutdownTracing()
	logger.Info("Catalog Service exited gracefully")
}
