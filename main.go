package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AlpinDale/waifu/src/config"
	"github.com/AlpinDale/waifu/src/database"
	"github.com/AlpinDale/waifu/src/handlers"
	"github.com/AlpinDale/waifu/src/logging"
	"github.com/AlpinDale/waifu/src/middleware"
	"github.com/AlpinDale/waifu/src/repositories"
	"github.com/AlpinDale/waifu/src/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize structured logging
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Msg("starting server")

	if cfg.AdminKey == "" {
		log.Warn().Msg("ADMIN_KEY not set - admin endpoints require a provisioned admin key")
	}

	// Initialize database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	log.Info().Msg("database connected")

	// Initialize repositories
	metadataIndex := repositories.NewPostgresIndex(db.GetPool())
	keyRepo := repositories.NewPostgresKeys(db.GetPool())

	// Initialize services
	limiter := services.NewRateLimiter()
	defer limiter.Stop()

	keyService := services.NewKeyService(keyRepo, limiter, cfg.AdminKey)
	resultCache := services.NewResultCache(cfg.CacheSize, cfg.CacheTTL())
	randomService := services.NewRandomService(metadataIndex, resultCache, services.NewSampler())

	imageService, err := services.NewImageService(metadataIndex, cfg.ImagesPath, cfg.BaseImageURL())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize image storage")
	}

	log.Info().
		Str("images_path", cfg.ImagesPath).
		Int("cache_size", cfg.CacheSize).
		Dur("cache_ttl", cfg.CacheTTL()).
		Msg("services initialized")

	// Create Gin router
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(gin.Recovery())

	// CORS: the API is consumed by arbitrary clients, so allow any origin
	corsConfig := cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Length", "X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Setup routes
	setupRoutes(router, db, keyService, randomService, imageService, cfg)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server shut down successfully")
}

func setupRoutes(router *gin.Engine, db *database.Database, keyService *services.KeyService, randomService *services.RandomService, imageService *services.ImageService, cfg *config.Config) {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	randomHandler := handlers.NewRandomHandler(randomService, imageService)
	imageHandler := handlers.NewImageHandler(imageService, cfg.ImagesPath)
	keyHandler := handlers.NewKeyHandler(keyService, cfg.DefaultRequestsPerSecond, cfg.DefaultMaxBatchSize)

	// Health check endpoint
	router.GET("/health", healthHandler.HandleHealth)

	// Stored files are public; everything else requires an API key
	router.GET("/images/:filename", imageHandler.HandleServeImage)

	auth := router.Group("/", middleware.APIKeyAuth(keyService))
	{
		// Selection endpoints
		auth.GET("/random", randomHandler.HandleRandom)
		auth.POST("/random", randomHandler.HandleBatchRandom)

		// Metadata
		auth.GET("/image/:filename", imageHandler.HandleGetImage)
		auth.GET("/tags", imageHandler.HandleAllTags)

		// Ingestion
		auth.POST("/image", imageHandler.HandleAddImage)
		auth.POST("/images", imageHandler.HandleBatchAdd)
		auth.POST("/upload", imageHandler.HandleUpload)
	}

	// Admin endpoints
	admin := router.Group("/", middleware.APIKeyAuth(keyService), middleware.AdminOnly())
	{
		admin.DELETE("/image/:filename", imageHandler.HandleDeleteImage)
		admin.POST("/image/:filename/tags", imageHandler.HandleAddTags)
		admin.DELETE("/image/:filename/tags", imageHandler.HandleRemoveTags)

		admin.POST("/api-keys", keyHandler.HandleCreate)
		admin.GET("/api-keys", keyHandler.HandleList)
		admin.DELETE("/api-keys", keyHandler.HandleRemove)
		admin.PUT("/api-keys/:username", keyHandler.HandleUpdateRateLimit)
		admin.PATCH("/api-keys/:username/status", keyHandler.HandleUpdateStatus)
	}
}
