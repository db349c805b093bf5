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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leadforge/leadhooks/internal/auth"
	"github.com/leadforge/leadhooks/internal/config"
	"github.com/leadforge/leadhooks/internal/health"
	"github.com/leadforge/leadhooks/internal/metrics"
	"github.com/leadforge/leadhooks/internal/redisstore"
	"github.com/leadforge/leadhooks/internal/server"
	"github.com/leadforge/leadhooks/internal/webhooks"
	"go.uber.org/zap"
)

// sweeper is implemented by stores that expire delivery records and markers.
type sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("leadhooksd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, err := config.Load(os.Getenv("LEADHOOKS_CONFIG_DIR"))
	if err != nil {
		return err
	}

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		subs    webhooks.SubscriptionStore
		records webhooks.DeliveryStore
		markers webhooks.MarkerStore
		sweep   sweeper
	)
	checker := health.New(health.Config{}, logger)
	checker.SetMetricsRecord(metrics.RecordDependency)

	if cfg.Database.URL != "" {
		db, err := pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		checker.Add("postgres", db)
		pg := webhooks.NewPostgresStore(db)
		subs, records, markers, sweep = pg, pg, pg, pg
	} else {
		mem := webhooks.NewMemoryStore()
		subs, records, markers, sweep = mem, mem, mem, mem
		logger.Warn("no database.url configured, using in-memory storage; data is lost on restart")
	}

	if cfg.Redis.URL != "" {
		rs, err := redisstore.New(context.Background(), cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rs.Close() //nolint:errcheck
		markers = rs
		checker.Add("redis", rs)
		logger.Info("dedup markers: redis")
	}

	// ── Wire up layers ────────────────────────────────────────────────────────
	tokens, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	client := webhooks.NewClient(cfg.Webhooks.Timeout, cfg.Webhooks.UserAgent)
	dispatcher := webhooks.NewDispatcher(subs, records, markers, client, webhooks.Config{
		RetryDelays: cfg.Webhooks.RetryDelays,
		Retention:   cfg.Webhooks.Retention,
	}, logger)
	dispatcher.SetMetricsRecorder(metrics.WebhookRecorder{})

	svc := webhooks.NewService(subs, records, dispatcher, logger)
	webhookHandler := webhooks.NewHandler(svc, tokens, logger)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	done := make(chan struct{})
	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		router.Use(server.RateLimiter(rps, rps*2, done))
	}

	router.Use(metrics.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", checker.Handler())
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/api/v1")
	webhookHandler.Register(v1)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// ── Background: dependency readiness probes ───────────────────────────────
	checker.CheckAll(context.Background())
	go checker.Start(done)

	// ── Background: drop expired delivery records and markers ────────────────
	go func() {
		ticker := time.NewTicker(cfg.Webhooks.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				n, err := sweep.DeleteExpired(ctx)
				cancel()
				if err != nil {
					logger.Warn("retention sweep error", zap.Error(err))
					continue
				}
				metrics.RecordSwept(n)
				if n > 0 {
					logger.Info("retention sweep", zap.Int64("removed", n))
				}
			case <-done:
				return
			}
		}
	}()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("leadhooksd HTTP listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down leadhooksd...")
	close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	drained := make(chan struct{})
	go func() {
		webhookHandler.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		logger.Warn("shutdown with webhook deliveries still in flight")
	}

	logger.Info("leadhooksd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
