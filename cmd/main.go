package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/events"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/handler"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/repository"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/service"
	"github.com/cloud-wave-best-zizon/promotion-service/pkg/config"
	"github.com/cloud-wave-best-zizon/promotion-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	var logger *zap.Logger
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
		logger, _ = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	defaultMode, ok := domain.ParseChannel(cfg.DefaultChannel)
	if !ok {
		logger.Fatal("Invalid default channel", zap.String("default_channel", cfg.DefaultChannel))
	}

	logger.Info("Service configuration",
		zap.String("port", cfg.Port),
		zap.String("event_broker", cfg.EventBroker),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("lock_table", cfg.LockTableName),
		zap.Duration("reconcile_debounce", cfg.ReconcileDebounce),
		zap.Duration("session_idle_timeout", cfg.SessionIdleTimeout),
		zap.String("default_channel", string(defaultMode)))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize components
	dynamoClient, err := repository.NewDynamoDBClient(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create DynamoDB client", zap.Error(err))
	}

	var sources []catalog.Source
	if cfg.CatalogSnapshotPath != "" {
		sources = append(sources, catalog.NewFileSource(cfg.CatalogSnapshotPath))
	}
	sources = append(sources, repository.NewCatalogRepository(dynamoClient, cfg.CouponTableName, cfg.BannerTableName))
	catalogCache := catalog.NewCache(logger, sources...)
	catalogCache.Hydrate(ctx)

	var slot service.LockSlot
	if cfg.LockTableName != "" {
		slot = repository.NewLockRepository(dynamoClient, cfg.LockTableName)
	} else {
		logger.Warn("No lock table configured, locks are kept in memory")
		slot = repository.NewMemoryLockRepository()
	}

	var (
		publisher     service.LockPublisher
		kafkaProducer *events.KafkaLockProducer
	)
	switch cfg.EventBroker {
	case "kafka":
		kafkaProducer = events.NewKafkaLockProducer(cfg.KafkaBrokers, cfg.LockEventsTopic, logger)
		defer kafkaProducer.Close()
		publisher = kafkaProducer
	case "rabbitmq":
		channelPool, err := events.NewChannelPool(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.ChannelPoolSize)
		if err != nil {
			logger.Fatal("Failed to create RabbitMQ channel pool", zap.Error(err))
		}
		defer channelPool.Close()
		publisher = events.NewRabbitLockPublisher(channelPool, logger)
	case "none", "":
		logger.Info("Lock events are not published")
	default:
		logger.Fatal("Unknown event broker", zap.String("event_broker", cfg.EventBroker))
	}

	registry := service.NewRegistry(catalogCache, slot, publisher, cfg.ReconcileDebounce, defaultMode, logger)
	defer registry.Close()

	var wg sync.WaitGroup

	if cfg.EventBroker == "kafka" && cfg.CartEventsTopic != "" {
		consumer := events.NewCartEventConsumer(cfg.KafkaBrokers, cfg.CartEventsTopic, cfg.CartEventsGroup, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			logger.Info("Consuming cart events", zap.String("topic", cfg.CartEventsTopic))
			if err := consumer.Run(ctx, registry.HandleCartEvent); err != nil {
				logger.Error("Cart event consumer stopped", zap.Error(err))
			}
		}()
	}

	// Idle session eviction
	if cfg.SessionIdleTimeout > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.SessionIdleTimeout / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					registry.EvictIdle(cfg.SessionIdleTimeout)
				}
			}
		}()
	}

	cartHandler := handler.NewCartHandler(registry, logger)
	promotionHandler := handler.NewPromotionHandler(registry, cartHandler, logger)

	// Setup Gin Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	// Routes
	v1 := router.Group("/api/v1")
	{
		v1.PUT("/carts/:cartId/lines/:key", cartHandler.PutLine)
		v1.GET("/carts/:cartId", cartHandler.GetCart)
		v1.PUT("/carts/:cartId/channel", cartHandler.SetChannel)
		v1.POST("/carts/:cartId/coupon", promotionHandler.ApplyCoupon)
		v1.DELETE("/carts/:cartId/coupon", promotionHandler.RemoveCoupon)
		v1.GET("/carts/:cartId/promotions", promotionHandler.ListPromotions)
		v1.GET("/health", func(c *gin.Context) {
			status := gin.H{
				"status":          "healthy",
				"service":         "promotion-service",
				"port":            cfg.Port,
				"catalog_coupons": catalogCache.Snapshot().Size(),
				"event_broker":    cfg.EventBroker,
			}
			if kafkaProducer != nil {
				hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				defer cancel()
				if err := kafkaProducer.HealthCheck(hctx); err != nil {
					status["kafka"] = "unhealthy"
					c.JSON(http.StatusServiceUnavailable, status)
					return
				}
				status["kafka"] = "healthy"
			}
			c.JSON(http.StatusOK, status)
		})
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	stop()

	wg.Wait()
	logger.Info("All workers stopped")
}
