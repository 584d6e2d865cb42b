package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/api/handlers"
	"github.com/movie-recommender/backend/internal/cache/redis"
	"github.com/movie-recommender/backend/internal/evaluation"
	"github.com/movie-recommender/backend/internal/ingestion"
	"github.com/movie-recommender/backend/internal/lifecycle"
	"github.com/movie-recommender/backend/internal/metrics"
	"github.com/movie-recommender/backend/internal/middleware/ratelimit"
	"github.com/movie-recommender/backend/internal/middleware/security"
	"github.com/movie-recommender/backend/internal/middleware/validation"
	"github.com/movie-recommender/backend/internal/recommend"
	"github.com/movie-recommender/backend/internal/storage/sqlite"
	"github.com/movie-recommender/backend/internal/vectorspace"
	"github.com/movie-recommender/backend/pkg/config"
	appLogger "github.com/movie-recommender/backend/pkg/logger"
	"github.com/movie-recommender/backend/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(appLogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
		Service:    "movie-recommender",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Movie Recommender API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var popularCache handlers.PopularCache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, serving popular movies uncached", zap.Error(err))
		} else {
			defer redisClient.Close()
			popularCache = redisClient
		}
	}

	rc := cfg.Recommender
	manager := lifecycle.NewManager(sqliteClient, lifecycle.Config{
		StaleAfter: rc.StaleAfter,
		Vector: vectorspace.Config{
			NGramMax:    rc.NGramMax,
			MaxFeatures: rc.MaxFeatures,
			StopWords:   rc.StopWords,
		},
		Workers: rc.Workers,
	})

	invalidatePopular := func(ctx context.Context) {
		if redisClient == nil {
			return
		}
		if err := redisClient.InvalidatePopular(ctx); err != nil {
			appLogger.Warn("Failed to invalidate popular cache", zap.Error(err))
		}
	}

	seeder := ingestion.NewSeeder(sqliteClient, manager, invalidatePopular)
	buildCtx, cancelBuild := context.WithTimeout(context.Background(), 2*time.Minute)
	if seeded, err := seeder.Seed(buildCtx); err != nil {
		appLogger.Error("Failed to seed sample catalog", zap.Error(err))
	} else if !seeded.ModelReady {
		appLogger.Warn("No recommendation model yet; load movies to build one")
	}
	cancelBuild()

	engine, err := recommend.NewEngine(manager, sqliteClient, recommend.Config{
		LikeThreshold:   rc.LikeThreshold,
		PoolExtra:       rc.PoolExtra,
		SeedBatch:       rc.SeedBatch,
		SessionCapacity: rc.SessionCapacity,
		Seed:            rc.Seed,
		Diversify:       rc.Diversify,
		RecencyYears:    rc.RecencyYears,
	})
	if err != nil {
		appLogger.Fatal("Failed to create recommendation engine", zap.Error(err))
	}

	var loader handlers.CatalogLoader
	omdbClient, err := ingestion.NewClient(ingestion.ClientConfig{
		APIKey:  cfg.OMDb.APIKey,
		BaseURL: cfg.OMDb.BaseURL,
		Timeout: time.Duration(cfg.OMDb.TimeoutSec) * time.Second,
		Retry: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         appLogger.Named("omdb"),
		},
	})
	if err != nil {
		appLogger.Warn("OMDb loading disabled", zap.Error(err))
	} else {
		loader = ingestion.NewLoader(omdbClient, sqliteClient, manager, ingestion.LoaderConfig{
			Interval: time.Duration(cfg.OMDb.RequestIntervalMs) * time.Millisecond,
			OnChange: invalidatePopular,
		})
	}

	limits := handlers.Limits{Default: rc.DefaultLimit, Max: rc.MaxLimit}
	popular := handlers.NewPopular(sqliteClient, popularCache, time.Duration(cfg.Redis.PopularTTLSec)*time.Second)

	recommendationHandler := handlers.NewRecommendationHandler(engine, sqliteClient, popular, limits)
	movieHandler := handlers.NewMovieHandler(sqliteClient, popular, loader, seeder, limits)
	ratingHandler := handlers.NewRatingHandler(sqliteClient, sqliteClient)
	evaluator := evaluation.NewEvaluator(manager, sqliteClient, rc.LikeThreshold)
	modelHandler := handlers.NewModelHandler(manager, evaluator)
	wsHandler := handlers.NewWebSocketHandler(engine, limits)

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               appLogger.Named("ratelimit"),
	})
	defer rateLimiter.Stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(handlers.RequestID())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-Request-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{HSTS: cfg.Server.HSTS}))

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws/recommendations", websocket.New(wsHandler.HandleConnection))

	api := app.Group("/api/v1")

	api.Get("/health", modelHandler.Health)
	api.Get("/ready", modelHandler.Ready)

	api.Use(rateLimiter.Middleware())
	api.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	api.Get("/model/status", modelHandler.GetStatus)
	api.Post("/model/rebuild", modelHandler.Rebuild)
	api.Get("/model/evaluation", modelHandler.Evaluate)

	api.Post("/initialize", movieHandler.Initialize)
	api.Get("/genres", movieHandler.GetGenres)
	api.Get("/movies", movieHandler.ListMovies)
	api.Get("/movies/popular", movieHandler.GetPopular)
	api.Post("/movies/load", movieHandler.LoadMovies)
	api.Get("/movies/:movieID", movieHandler.GetMovie)
	api.Get("/movies/:movieID/similar", recommendationHandler.GetSimilar)

	api.Get("/users/:userID/recommendations", recommendationHandler.GetForUser)
	api.Post("/users/:userID/recommendations/refresh", recommendationHandler.Refresh)

	api.Get("/users/:userID/ratings", ratingHandler.GetRatings)
	api.Put("/users/:userID/ratings", ratingHandler.PutRating)
	api.Delete("/users/:userID/ratings/:movieID", ratingHandler.DeleteRating)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
