// Package metrics exposes Prometheus metrics and the /healthz endpoint for
// the tracker.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	KlinesTotal    *prometheus.CounterVec // labels: tf
	UpsertsTotal   *prometheus.CounterVec // labels: tf
	DroppedEvents  prometheus.Counter
	WSReconnects   prometheus.Counter
	PassDuration   *prometheus.HistogramVec // labels: pass
	AlertsCreated  prometheus.Counter
	AlertsClosed   prometheus.Counter
	VolumeSpikes   prometheus.Counter
	NotifyFailures prometheus.Counter
	TrackedSymbols prometheus.Gauge
	CandlesPruned  *prometheus.CounterVec // labels: tf
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		KlinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_klines_total",
			Help: "Kline events received from the feed (by timeframe)",
		}, []string{"tf"}),
		UpsertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_candle_upserts_total",
			Help: "Candles written to the store (by timeframe)",
		}, []string{"tf"}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_dropped_events_total",
			Help: "Kline events dropped (worker queue full)",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_ws_reconnects_total",
			Help: "WebSocket reconnection attempts",
		}),
		PassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_pass_duration_seconds",
			Help:    "Periodic pass latency (by pass name)",
			Buckets: prometheus.DefBuckets,
		}, []string{"pass"}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_alerts_created_total",
			Help: "Trend alerts created",
		}),
		AlertsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_alerts_closed_total",
			Help: "Alerts that reached a terminal result",
		}),
		VolumeSpikes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_volume_spikes_total",
			Help: "Volume spike notifications sent",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_notify_failures_total",
			Help: "Notification deliveries that failed",
		}),
		TrackedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_symbols",
			Help: "Symbols currently tracked",
		}),
		CandlesPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_candles_pruned_total",
			Help: "Candles removed by the retention sweep (by timeframe)",
		}, []string{"tf"}),
	}

	prometheus.MustRegister(
		m.KlinesTotal,
		m.UpsertsTotal,
		m.DroppedEvents,
		m.WSReconnects,
		m.PassDuration,
		m.AlertsCreated,
		m.AlertsClosed,
		m.VolumeSpikes,
		m.NotifyFailures,
		m.TrackedSymbols,
		m.CandlesPruned,
	)

	return m
}

// TimePass records one pass run into the duration histogram.
func (m *Metrics) TimePass(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.PassDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool
	LastEventTime  time.Time
	RedisConnected bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.WSConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		WSConnected     bool    `json:"ws_connected"`
		LastEventTime   string  `json:"last_event_time"`
		EventAge        string  `json:"event_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastEventTime:   h.LastEventTime.Format(time.RFC3339),
		EventAge:        eventAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
