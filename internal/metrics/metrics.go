// Package metrics exposes Prometheus metrics so long benchmark runs can be
// observed while in flight.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the benchmark.
// It implements bench.Observer.
type Metrics struct {
	TxSentTotal       *prometheus.CounterVec
	ReceiptsCollected *prometheus.CounterVec
	PendingTxs        prometheus.Gauge
	GasUsed           *prometheus.HistogramVec
}

// New creates and registers all benchmark metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		TxSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasbench_txs_sent_total",
				Help: "Transactions submitted, by contract",
			},
			[]string{"contract"},
		),
		ReceiptsCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasbench_receipts_collected_total",
				Help: "Receipts collected, by contract",
			},
			[]string{"contract"},
		),
		PendingTxs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasbench_pending_txs",
				Help: "Transactions submitted but not yet confirmed",
			},
		),
		GasUsed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gasbench_gas_used",
				Help:    "Gas used per benchmark transaction",
				Buckets: prometheus.ExponentialBuckets(21000, 2, 10),
			},
			[]string{"contract"},
		),
	}
}

// TxSent records a submitted transaction.
func (m *Metrics) TxSent(contract string) {
	m.TxSentTotal.WithLabelValues(contract).Inc()
	m.PendingTxs.Inc()
}

// ReceiptCollected records a confirmed transaction and its gas cost.
func (m *Metrics) ReceiptCollected(contract string, gasUsed uint64) {
	m.ReceiptsCollected.WithLabelValues(contract).Inc()
	m.PendingTxs.Dec()
	m.GasUsed.WithLabelValues(contract).Observe(float64(gasUsed))
}

// Server serves /metrics for a registry.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// StartServer begins serving /metrics on addr in the background.
func StartServer(addr string, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", slog.String("error", err.Error()))
		}
	}()

	return &Server{srv: srv, logger: logger}
}

// Stop shuts the metrics server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
	}
}
