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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yishak-cs/menu-recommender/internal/database"
	"github.com/yishak-cs/menu-recommender/internal/handlers"
	"github.com/yishak-cs/menu-recommender/internal/logging"
	"github.com/yishak-cs/menu-recommender/internal/mq"
	"github.com/yishak-cs/menu-recommender/internal/services"
	"github.com/yishak-cs/menu-recommender/pkg/helper"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := helper.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if envErr != nil {
		logging.Warn().Err(envErr).Msg("No .env file loaded")
	}

	ctx := context.Background()

	// Interaction log always lives in Postgres
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres.URL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer pool.Close()

	checks := map[string]handlers.HealthCheck{
		"postgres": pool.Ping,
	}

	var neo4jClient *database.Neo4jClient
	if cfg.App.AggregateBackend == "neo4j" {
		neo4jClient, err = database.NewNeo4jClient(cfg.Neo4jDatabaseConfig())
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect to Neo4j")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := neo4jClient.Close(ctx); err != nil {
				logging.Error().Err(err).Msg("Error closing Neo4j connection")
			}
		}()
		checks["neo4j"] = neo4jClient.Health
	}

	migrator := database.NewMigrator(pool, nil)
	if neo4jClient != nil {
		migrator = database.NewMigrator(pool, neo4jClient)
	}
	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	if err := migrator.Run(migrateCtx); err != nil {
		cancel()
		logging.Fatal().Err(err).Msg("Migrations failed")
	}
	cancel()

	// Aggregate layer, guarded by the circuit breaker
	var aggregates services.AggregateQuerier
	if neo4jClient != nil {
		aggregates = database.NewNeo4jAggregates(neo4jClient)
	} else {
		aggregates = database.NewPostgresAggregates(pool)
	}
	aggregates = database.NewBreakerAggregates(aggregates, cfg.BreakerSettings())

	var publisher services.InteractionPublisher
	if cfg.Kafka.Enabled() {
		kafkaPublisher := mq.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.InteractionTopic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing Kafka writer")
			}
		}()
		publisher = kafkaPublisher
		logging.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.InteractionTopic).Msg("Publishing interactions to Kafka")
	}

	// Initialize services
	interactionStore := database.NewPostgresInteractionStore(pool)

	recommendationService := services.NewRecommendationService(
		aggregates,
		services.NewLockedRand(cfg.Recommend.Seed),
		services.RecommendationConfig{
			DefaultCount:     cfg.Recommend.DefaultCount,
			MaxCount:         cfg.Recommend.MaxCount,
			GeneratorTimeout: cfg.Recommend.GeneratorTimeout,
		},
		logging.Logger(),
	)
	tracker := services.NewInteractionTracker(interactionStore, publisher, logging.Logger())
	analyticsService := services.NewAnalyticsService(interactionStore, cfg.Analytics.DefaultWindowDays, logging.Logger())

	// Initialize API handlers
	apiHandler := handlers.NewAPIHandler(recommendationService, tracker, analyticsService, checks)

	// Setup Gin router
	if strings.EqualFold(cfg.Logging.Level, "debug") || strings.EqualFold(cfg.Logging.Level, "trace") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger())

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	apiHandler.SetupRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logging.Info().Int("port", cfg.App.Port).Str("aggregate_backend", cfg.App.AggregateBackend).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("Shutting down server...")

	// Gracefully shutdown with a timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	logging.Info().Msg("Server exited properly")
}
