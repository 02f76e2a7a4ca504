// Package server wires the evaluation pipeline behind the HTTP API.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/mbd888/riskline/internal/actions"
	"github.com/mbd888/riskline/internal/alerts"
	"github.com/mbd888/riskline/internal/auth"
	"github.com/mbd888/riskline/internal/config"
	"github.com/mbd888/riskline/internal/device"
	"github.com/mbd888/riskline/internal/evaluator"
	"github.com/mbd888/riskline/internal/geo"
	"github.com/mbd888/riskline/internal/health"
	"github.com/mbd888/riskline/internal/history"
	"github.com/mbd888/riskline/internal/idgen"
	"github.com/mbd888/riskline/internal/ipintel"
	"github.com/mbd888/riskline/internal/logging"
	"github.com/mbd888/riskline/internal/metrics"
	"github.com/mbd888/riskline/internal/ratelimit"
	"github.com/mbd888/riskline/internal/realtime"
	"github.com/mbd888/riskline/internal/reports"
	"github.com/mbd888/riskline/internal/scorer"
	"github.com/mbd888/riskline/internal/security"
	"github.com/mbd888/riskline/internal/traces"
	"github.com/mbd888/riskline/internal/validation"
	"github.com/mbd888/riskline/internal/velocity"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	store        history.Store
	evalService  *evaluator.Service
	reportsSvc   *reports.Service
	dispatcher   *actions.Dispatcher
	hub          *realtime.Hub
	sweeper      *history.Sweeper
	kafkaEmitter *alerts.KafkaEmitter
	geoCloser    io.Closer // MaxMind reader, nil with the static resolver
	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
	db           *sql.DB       // nil if using in-memory
	redis        *redis.Client // nil if no Redis cache
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc         // cancels background goroutines started in Run
	traceStop    func(context.Context) error // flushes the tracer provider

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		healthReg: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	}

	ctx := context.Background()
	policy := cfg.Policy()

	traceStop, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.traceStop = traceStop

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var actionRecorder actions.Recorder
	var reportStore reports.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		historyStore := history.NewPostgresStore(db)
		if err := historyStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate evaluation store", "error", err)
		}
		s.store = historyStore

		pgReports := reports.NewPostgresStore(db)
		if err := pgReports.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate report store", "error", err)
		}
		reportStore = pgReports

		pgAudit := actions.NewPostgresRecorder(db)
		if err := pgAudit.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate action audit store", "error", err)
		}
		actionRecorder = pgAudit

		s.healthReg.Register("postgres", func(ctx context.Context) health.Status {
			st := health.Status{Name: "postgres", Healthy: true}
			if err := db.PingContext(ctx); err != nil {
				st.Healthy = false
				st.Detail = err.Error()
			}
			return st
		})
	} else {
		s.store = history.NewMemoryStore()
		reportStore = reports.NewMemoryStore()
		actionRecorder = actions.NewMemoryRecorder()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Redis cache for the hot velocity windows
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		s.redis = redis.NewClient(redisOpts)
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn("redis unreachable at startup, windows fall back to the primary store", "error", err)
		}
		cached := history.NewRedisStore(s.store, s.redis, policy.Velocity.Lookback, s.logger)
		s.store = cached
		s.logger.Info("redis velocity window cache enabled")

		s.healthReg.Register("redis", func(ctx context.Context) health.Status {
			st := health.Status{Name: "redis", Healthy: true}
			if err := cached.Ping(ctx); err != nil {
				st.Healthy = false
				st.Detail = err.Error()
			}
			return st
		})
	}

	// IP intelligence
	var resolver ipintel.Resolver
	if cfg.GeoIPDBPath != "" {
		mm, err := ipintel.NewMaxMindResolver(cfg.GeoIPDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
		}
		resolver = mm
		s.geoCloser = mm
		s.logger.Info("GeoIP resolver enabled", "path", cfg.GeoIPDBPath)
	} else {
		resolver = ipintel.NewStaticResolver()
		s.logger.Info("using static IP intelligence tables")
	}

	// External scorer, or the built-in rule scorer when no endpoint is set
	var sc scorer.Scorer
	var feedback scorer.FeedbackSender
	if cfg.ScorerURL != "" {
		httpScorer := scorer.NewHTTPScorer(cfg.ScorerURL, cfg.ScorerAPIKey, cfg.ScorerTimeout, s.logger)
		sc = httpScorer
		feedback = httpScorer
		s.logger.Info("external model scorer enabled", "url", cfg.ScorerURL)
	} else {
		sc = scorer.NewLocalScorer()
		s.logger.Info("using built-in rule scorer")
	}

	// Realtime hub for the alert stream
	s.hub = realtime.NewHub(s.logger)

	// Alert fan-out
	emitters := []alerts.Emitter{
		alerts.NewLogEmitter(s.logger),
		alerts.NewHubEmitter(s.hub),
	}
	if cfg.AlertWebhookURL != "" {
		wh, err := alerts.NewWebhookEmitter(cfg.AlertWebhookURL, cfg.AlertWebhookSecret, s.logger)
		if err != nil {
			s.logger.Warn("invalid alert webhook URL, webhook delivery disabled", "error", err)
		} else {
			emitters = append(emitters, wh)
			s.logger.Info("alert webhook enabled")
		}
	}
	if cfg.KafkaBrokers != "" {
		ke, err := alerts.NewKafkaEmitter(cfg.KafkaBrokers, cfg.KafkaAlertTopic, s.logger)
		if err != nil {
			s.logger.Warn("kafka producer init failed, kafka delivery disabled", "error", err)
		} else {
			s.kafkaEmitter = ke
			emitters = append(emitters, ke)
			s.logger.Info("kafka alert delivery enabled", "topic", cfg.KafkaAlertTopic)
		}
	}
	emitter := alerts.NewMultiEmitter(emitters...)

	// Action dispatcher with audit trail
	s.dispatcher = actions.NewDispatcher(actionRecorder, func() string {
		return idgen.WithPrefix("aud_")
	}, s.logger)

	// Reports feed chargeback counts and model feedback labels
	s.reportsSvc = reports.NewService(reportStore, feedback, func() string {
		return idgen.WithPrefix("rpt_")
	}, s.logger)

	// Pipeline
	s.evalService = evaluator.NewService(
		policy,
		velocity.NewAnalyzer(s.store, policy.Velocity, s.logger),
		device.NewAnalyzer(s.store, resolver, policy.Device, s.logger),
		geo.NewAnalyzer(resolver, s.store, policy.Geo, s.logger),
		sc,
		s.store,
		s.dispatcher,
		emitter,
		evaluator.WithChargebackCounter(s.reportsSvc),
		evaluator.WithRetention(cfg.Retention()),
	)

	// Retention sweeper
	s.sweeper = history.NewSweeper(s.store, time.Hour, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (risk evaluation is a backend API; browsers only reach the stream)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints (never behind auth)
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/healthz/live", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.infoHandler)

	// V1 API group, key-protected when a key is configured. Development
	// without API_KEY runs open; production refuses to start without one.
	v1 := s.router.Group("/v1")
	if s.cfg.APIKey != "" {
		v1.Use(auth.RequireKey(auth.NewKeyring(strings.Split(s.cfg.APIKey, ","))))
	} else {
		s.logger.Warn("API_KEY not set, /v1 endpoints are unauthenticated")
	}

	evaluator.NewHandler(s.evalService, s.cfg.MaxBatchSize, s.cfg.BatchConcurrency).RegisterRoutes(v1)
	history.NewHandler(s.store).RegisterRoutes(v1)
	reports.NewHandler(s.reportsSvc).RegisterRoutes(v1)

	// WebSocket alert stream
	v1.GET("/stream", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
	v1.GET("/stream/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Riskline",
		"description": "Real-time transaction fraud risk scoring",
		"version":     "0.1.0",
		"endpoints": gin.H{
			"evaluate": "POST /v1/evaluations",
			"batch":    "POST /v1/evaluations/batch",
			"reports":  "POST /v1/reports",
			"stream":   "GET /v1/stream (websocket)",
			"health":   "GET /healthz",
			"metrics":  "GET /metrics",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start retention sweeper
	go s.sweeper.Start(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.sweeper != nil {
		s.sweeper.Stop()
		s.logger.Info("retention sweeper stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending Kafka deliveries
	if s.kafkaEmitter != nil {
		s.kafkaEmitter.Close()
		s.logger.Info("kafka producer closed")
	}

	if s.geoCloser != nil {
		if err := s.geoCloser.Close(); err != nil {
			s.logger.Error("GeoIP close error", "error", err)
		}
	}

	if s.traceStop != nil {
		if err := s.traceStop(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
