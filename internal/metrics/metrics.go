package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "utrack_sessions_total",
			Help: "Total sessions finished, by how they ended",
		},
		[]string{"reason"},
	)

	UsageSecondsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utrack_usage_seconds_total",
			Help: "Total seconds of tracked usage recorded to the log",
		},
	)

	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "utrack_session_active",
			Help: "1 while the watched process is running",
		},
	)

	// Process watcher metrics
	ProcessScanErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utrack_process_scan_errors_total",
			Help: "Process table enumeration or liveness check failures",
		},
	)

	// Usage log metrics
	LogAppendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utrack_log_append_errors_total",
			Help: "Failed appends to the usage log",
		},
	)

	LogRecordsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "utrack_log_records_skipped_total",
			Help: "Malformed usage log records skipped during aggregation",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsTotal,
		UsageSecondsTotal,
		SessionActive,
		ProcessScanErrors,
		LogAppendErrors,
		LogRecordsSkipped,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Handler returns the HTTP handler serving /metrics and /health.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server in the background
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
