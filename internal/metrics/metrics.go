// Package metrics provides Prometheus instrumentation for the Riskline engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskline",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskline",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EvaluationsTotal counts completed evaluations by risk level and recommendation.
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskline",
			Name:      "evaluations_total",
			Help:      "Total fraud evaluations by risk level and recommendation.",
		},
		[]string{"risk_level", "recommendation"},
	)

	// EvaluationScore observes the composite score distribution.
	EvaluationScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "riskline",
			Name:      "evaluation_score",
			Help:      "Composite fraud score per evaluation (0-1000).",
			Buckets:   []float64{50, 100, 200, 300, 400, 500, 600, 700, 800, 900, 950, 1000},
		},
	)

	// EvaluationDuration observes end-to-end evaluation latency.
	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "riskline",
			Name:      "evaluation_duration_seconds",
			Help:      "End-to-end fraud evaluation duration in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// EvaluationConfidence observes the classification confidence distribution.
	EvaluationConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "riskline",
			Name:      "evaluation_confidence",
			Help:      "Classification confidence per evaluation (0-100).",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// EvaluationFailuresTotal counts pipeline failures by stage. A nonzero
	// rate here means evaluations are resolving through the fail-open path.
	EvaluationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskline",
			Name:      "evaluation_failures_total",
			Help:      "Evaluation pipeline failures by stage.",
		},
		[]string{"stage"},
	)

	// ActionsTotal counts dispatched automated actions by name and result.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskline",
			Name:      "actions_total",
			Help:      "Automated actions dispatched, by action name and result.",
		},
		[]string{"action", "result"},
	)

	// AlertsTotal counts emitted alerts by severity and channel.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskline",
			Name:      "alerts_total",
			Help:      "Alerts emitted by severity and delivery channel.",
		},
		[]string{"severity", "channel"},
	)

	// ScorerBreakerOpen is 1 while the external scorer circuit is open.
	ScorerBreakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskline",
		Name:      "scorer_breaker_open",
		Help:      "1 while the external model scorer circuit breaker is open.",
	})

	// RecordsSweptTotal counts expired evaluation records removed by the sweeper.
	RecordsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskline",
		Name:      "records_swept_total",
		Help:      "Total expired evaluation records removed by the retention sweeper.",
	})

	// ActiveWebSocketClients tracks connected alert-stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskline",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected alert stream clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskline", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskline", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskline", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskline", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EvaluationsTotal,
		EvaluationScore,
		EvaluationDuration,
		EvaluationConfidence,
		EvaluationFailuresTotal,
		ActionsTotal,
		AlertsTotal,
		ScorerBreakerOpen,
		RecordsSweptTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// ObserveEvaluation records the per-evaluation metrics in one call.
func ObserveEvaluation(level, recommendation string, score, confidence int, duration time.Duration) {
	EvaluationsTotal.WithLabelValues(level, recommendation).Inc()
	EvaluationScore.Observe(float64(score))
	EvaluationConfidence.Observe(float64(confidence))
	EvaluationDuration.Observe(duration.Seconds())
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
