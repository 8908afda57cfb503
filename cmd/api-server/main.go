package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nekostream/internal/admin"
	"nekostream/internal/anime"
	"nekostream/internal/auth"
	"nekostream/internal/backup"
	"nekostream/internal/cache"
	"nekostream/internal/catalog"
	"nekostream/internal/comments"
	"nekostream/internal/config"
	"nekostream/internal/episode"
	"nekostream/internal/events"
	"nekostream/internal/library"
	"nekostream/internal/mediator"
	"nekostream/internal/playback"
	"nekostream/internal/storage"
	"nekostream/pkg/database"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") == "1" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config invalid")
	}

	dbCfg := database.DefaultConfig()
	db := database.MustOpen(dbCfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}

	// Response cache backend: in-process by default, redis when several
	// instances should share hot entries.
	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		r := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := r.Ping(pingCtx); err != nil {
			cancel()
			log.Fatal().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis cache unreachable")
		}
		cancel()
		store = r
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("using redis response cache")
	default:
		store = cache.NewMemory(nil)
	}

	// Object storage is optional; without credentials the admin upload
	// endpoint answers 503 and poster URLs are supplied by hand.
	var objects storage.ObjectStore
	if r2, err := storage.NewR2(cfg.Storage); err != nil {
		log.Warn().Err(err).Msg("object storage not configured, poster uploads disabled")
	} else {
		objects = r2
	}

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	hub := events.NewHub()
	router.GET("/ws", events.WSHandler(hub))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": dbCfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": stats.Clients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ready",
			"db":         "ok",
			"ws_clients": stats.Clients,
		})
	})

	tokenSvc := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.TokenTTL,
	}

	animeRepo := anime.NewRepo(db)
	episodeRepo := episode.NewRepo(db)
	authRepo := auth.NewRepo(db)
	libRepo := library.NewRepo(db)
	commentRepo := comments.NewRepo(db)

	medSvc := mediator.NewService(animeRepo, episodeRepo)
	playbackSvc := playback.NewService(episodeRepo, "/api/v1/embed")
	backupSvc := backup.NewService(db)

	// Auth
	authHandler := auth.NewHandler(authRepo, tokenSvc)
	authHandler.RegisterRoutes(router.Group("/api/v1/auth"))

	// Public catalog; optional claims drive the per-user bookmark flag
	// on title detail.
	public := router.Group("/api/v1")
	public.Use(auth.OptionalMiddleware(tokenSvc))

	catalogHandler := catalog.NewHandler(animeRepo, episodeRepo, medSvc,
		libRepo, playbackSvc, store, cfg.Server.RequestTimeout)
	catalogHandler.RegisterRoutes(public)

	playbackHandler := playback.NewHandler(playbackSvc)
	playbackHandler.RegisterRoutes(public)

	commentHandler := comments.NewHandler(commentRepo, hub)
	commentHandler.RegisterPublicRoutes(public)

	// Protected routes share the /api/v1 prefix behind the required
	// token middleware.
	protected := router.Group("/api/v1")
	protected.Use(auth.Middleware(tokenSvc))

	protected.GET("/me", func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"id":       claims.UserID,
			"username": claims.Username,
			"role":     claims.Role,
		})
	})

	libHandler := library.NewHandler(libRepo)
	libHandler.RegisterRoutes(protected)
	commentHandler.RegisterProtectedRoutes(protected)

	// Admin curation surface
	adminGroup := router.Group("/admin")
	adminGroup.Use(auth.Middleware(tokenSvc), auth.AdminMiddleware())

	adminHandler := admin.NewHandler(animeRepo, episodeRepo, authRepo,
		medSvc, backupSvc, objects, hub)
	adminHandler.RegisterRoutes(adminGroup)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", httpSrv.Addr).Msg("HTTP API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}

	wg.Wait()
	log.Info().Msg("server stopped")
}
