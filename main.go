package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/usersearch/go-services/handlers"
	"github.com/usersearch/go-services/internal/cache"
	"github.com/usersearch/go-services/internal/config"
	"github.com/usersearch/go-services/internal/search"
	"github.com/usersearch/go-services/internal/storage"
	"github.com/usersearch/go-services/internal/users"
	"github.com/usersearch/go-services/pkg/logger"
	"github.com/usersearch/go-services/pkg/metrics"
	"github.com/usersearch/go-services/pkg/middleware"
)

const shutdownTimeout = 10 * time.Second

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: backend=%s redis=%v minio=%v", cfg.Search.Backend, cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx := context.Background()

	store, closeStore, err := search.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open search backend: %v", err)
	}
	defer func() { _ = closeStore(context.Background()) }()
	userSvc := users.NewService(store)

	// The index is also ensured lazily on first create/autocomplete, so an
	// unavailable engine at startup is not fatal.
	if err := userSvc.EnsureIndex(ctx); err != nil {
		logger.Warnf("ensure index at startup failed (will retry on demand): %v", err)
	}

	checks := map[string]handlers.Checker{"search": userSvc.Ping}

	var redisClient *redis.Client
	if addr := cfg.RedisAddr(); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
		} else {
			logger.Infof("connected to Redis: %s", addr)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

		if cfg.Redis.CacheTTL > 0 {
			userSvc.SetCache(cache.NewRedisCache(redisClient, "user:", cfg.Redis.CacheTTL))
			logger.Infof("user cache enabled (ttl=%s)", cfg.Redis.CacheTTL)
		}
	}

	var exports *storage.MinIOStorage
	if cfg.MinIO.Endpoint != "" {
		exports, err = storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("MinIO unavailable, export disabled: %v", err)
		} else {
			checks["minio"] = exports.Ping
		}
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Permissive CORS for browser clients; OPTIONS preflights end here.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(middleware.RequestLogger(), gin.Recovery())

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
			logger.Infof("rate limiter: redis (rps=%.2f burst=%d window=%s)", cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
			logger.Infof("rate limiter: in-memory (rps=%.2f burst=%d)", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}

	handlers.RegisterHealth(r, startTime, checks)
	handlers.RegisterSwagger(r)
	handlers.NewUsersHandler(userSvc).Register(r.Group("/"))
	if exports != nil {
		handlers.NewExportHandler(userSvc, exports).Register(r.Group("/"))
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("starting user search service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Infof("received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
