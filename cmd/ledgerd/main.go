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

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/giftcard-ledger/internal/giftcards"
	"github.com/richxcame/giftcard-ledger/internal/oracle"
	"github.com/richxcame/giftcard-ledger/internal/pricing"
	"github.com/richxcame/giftcard-ledger/pkg/common"
	"github.com/richxcame/giftcard-ledger/pkg/config"
	"github.com/richxcame/giftcard-ledger/pkg/database"
	"github.com/richxcame/giftcard-ledger/pkg/eventbus"
	"github.com/richxcame/giftcard-ledger/pkg/health"
	"github.com/richxcame/giftcard-ledger/pkg/logger"
	"github.com/richxcame/giftcard-ledger/pkg/middleware"
	"github.com/richxcame/giftcard-ledger/pkg/ratelimit"
	"github.com/richxcame/giftcard-ledger/pkg/redis"
	"github.com/richxcame/giftcard-ledger/pkg/resilience"
	"github.com/richxcame/giftcard-ledger/pkg/tracing"
	"go.uber.org/zap"
)

const (
	serviceName = "giftcard-ledger"
	version     = "1.0.0"
	maxBodySize = 1 << 20
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Server.Environment,
			Release:     serviceName + "@" + version,
		}); err != nil {
			logger.Warn("Failed to initialize Sentry, continuing without it", zap.Error(err))
			cfg.Sentry.Enabled = false
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: serviceName,
		Version:     version,
		Environment: cfg.Server.Environment,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing, continuing without it", zap.Error(err))
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("Failed to flush traces", zap.Error(err))
			}
		}()
	}

	checks := map[string]func(ctx context.Context) error{}
	var opts []giftcards.Option

	// Event journal
	if cfg.Database.Enabled && cfg.Ledger.JournalEnabled {
		if err := database.RunMigrations(&cfg.Database); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer database.Close(pool)

		opts = append(opts, giftcards.WithJournal(giftcards.NewRepository(pool)))
		checks["database"] = health.PostgresChecker(pool)
	} else {
		logger.Warn("Ledger journal disabled, state will not survive a restart")
	}

	// Oracle chain: source, then breaker inside the feed, then the Redis cache
	var priceOracle oracle.PriceOracle
	switch cfg.Oracle.Mode {
	case "feed":
		priceOracle = oracle.NewFeedOracle(oracle.FeedConfig{
			URL:      cfg.Oracle.FeedURL,
			AssetID:  cfg.Oracle.FeedAssetID,
			Decimals: cfg.Oracle.Decimals,
			Timeout:  cfg.Oracle.FeedTimeout,
			Breaker: resilience.BuildSettings("oracle-feed",
				cfg.Oracle.BreakerInterval,
				cfg.Oracle.BreakerTimeout,
				cfg.Oracle.BreakerFailures,
				cfg.Oracle.BreakerSuccesses,
				oracle.ErrInvalidRate,
			),
			Retry: resilience.DefaultRetryConfig(),
		}, nil)
	default:
		priceOracle = oracle.NewStaticOracle(cfg.Oracle.StaticAnswer, cfg.Oracle.Decimals)
	}

	var routeMiddleware []gin.HandlerFunc
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, oracle readings will not be cached", zap.Error(err))
		} else {
			defer redisClient.Close()
			if cfg.Oracle.Mode == "feed" {
				priceOracle = oracle.NewCachedOracle(priceOracle, redisClient, oracle.DefaultCacheKey, cfg.Oracle.CacheTTL)
			}
			checks["redis"] = health.RedisChecker(redisClient)
			if cfg.RateLimit.Enabled {
				limiter := ratelimit.NewLimiter(redisClient, cfg.RateLimit)
				routeMiddleware = append(routeMiddleware, middleware.RateLimit(limiter))
			}
		}
	}

	// Event bus
	if cfg.NATS.Enabled {
		bus, err := eventbus.Connect(eventbus.Config{
			URL:           cfg.NATS.URL,
			Name:          serviceName,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
		if err != nil {
			logger.Warn("NATS unavailable, ledger events will not be published", zap.Error(err))
		} else {
			defer bus.Close()
			opts = append(opts, giftcards.WithPublisher(bus))
			checks["nats"] = health.ConnectionChecker("nats", bus.Healthy)
		}
	}

	opts = append(opts,
		giftcards.WithTokenURI(cfg.Ledger.TokenURI),
		giftcards.WithMaxRateAge(cfg.Oracle.MaxAge),
		giftcards.WithJournalTimeout(cfg.Ledger.JournalTimeout),
	)

	converter := pricing.NewConverter(cfg.Ledger.NativeDecimals)
	service := giftcards.NewService(cfg.Ledger.AdminID, priceOracle, converter, opts...)
	if err := service.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore ledger", zap.Error(err))
	}

	router := newRouter(cfg)
	router.GET("/healthz", common.HealthCheckWithDeps(serviceName, version, checks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	giftcards.NewHandler(service, converter).RegisterRoutes(router, cfg.JWT.Secret, routeMiddleware...)
	giftcards.NewAdminHandler(service, converter).RegisterRoutes(router, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Starting giftcard ledger",
			zap.String("port", cfg.Server.Port),
			zap.String("oracle_mode", cfg.Oracle.Mode),
			zap.String("admin", cfg.Ledger.AdminID.String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newRouter(cfg *config.Config) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Tracing())
	router.Use(middleware.Recovery())
	if cfg.Sentry.Enabled {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(middleware.RequestLogger("/healthz", "/metrics"))
	router.Use(middleware.Metrics(serviceName))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.MaxBodySize(maxBodySize))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.CorrelationIDHeader}
	router.Use(cors.New(corsConfig))

	router.Use(timeout.New(
		timeout.WithTimeout(time.Duration(cfg.Server.RequestTimeout)*time.Second),
		timeout.WithResponse(func(c *gin.Context) {
			common.ErrorResponse(c, http.StatusGatewayTimeout, "request timed out")
		}),
	))

	return router
}
