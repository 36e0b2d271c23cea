package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"pulse/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-client labels to prevent DoS)
var (
	// Scheduler phase metrics
	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_update_phase_seconds",
		Help:    "Time spent in one update phase",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulse_render_phase_seconds",
		Help:    "Time spent in one render phase",
		Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1},
	})

	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ticks_total",
		Help: "Update phases attempted",
	})

	framesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_frames_total",
		Help: "Render phases attempted",
	})

	faultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_faults_total",
		Help: "Contained faults by phase",
	}, []string{"phase"}) // Bounded: "init", "update", "render"

	targetRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_target_tps",
		Help: "Configured update rate",
	})

	// Presentation metrics
	framesDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_frames_dropped",
		Help: "Frames dropped by the presentation ring since start",
	})

	ringOccupancy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_ring_occupancy",
		Help: "Frames currently buffered in the presentation ring",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// ObservePhase records one phase execution. It matches the scheduler's
// observation hook so the engine package never imports this one.
func ObservePhase(phase engine.Phase, d time.Duration) {
	switch phase {
	case engine.PhaseUpdate:
		updateDuration.Observe(d.Seconds())
		ticksTotal.Inc()
	case engine.PhaseRender:
		renderDuration.Observe(d.Seconds())
		framesTotal.Inc()
	}
}

// RecordFault increments the fault counter for one contained fault.
func RecordFault(phase engine.Phase) {
	faultsTotal.WithLabelValues(phase.String()).Inc()
}

// UpdateTargetRate updates the configured rate gauge.
func UpdateTargetRate(tps int) {
	targetRate.Set(float64(tps))
}

// UpdateRingStats updates the presentation ring gauges.
func UpdateRingStats(dropped uint64, occupancy int) {
	framesDropped.Set(float64(dropped))
	ringOccupancy.Set(float64(occupancy))
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections updates WebSocket connection count.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter.
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be "127.0.0.1:6060" in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// StartDebugServer starts the internal observability server.
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	// SECURITY: Validate address is localhost
	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		// Only allow external binding if explicitly enabled via env
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("⚠️ Debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Optional basic auth wrapper
	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
