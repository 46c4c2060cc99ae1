package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the counters and gauges for a running relay instance,
// registered against a private registry rather than the global default so
// multiple Server instances in the same process (as in tests) never
// collide.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedSessions   prometheus.Gauge
	MessagesRelayed     prometheus.Counter
	BytesRelayed        prometheus.Counter
	RateLimitRejections prometheus.Counter
}

// NewMetrics builds and registers a fresh metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ConnectedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cmdrelay",
			Name:      "connected_sessions",
			Help:      "Number of currently connected sessions.",
		}),
		MessagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cmdrelay",
			Name:      "messages_relayed_total",
			Help:      "Total number of envelopes relayed to room members.",
		}),
		BytesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cmdrelay",
			Name:      "bytes_relayed_total",
			Help:      "Total number of chat text and decoded file chunk bytes relayed.",
		}),
		RateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cmdrelay",
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of send attempts rejected by the per-session rate limiter.",
		}),
	}
	reg.MustRegister(m.ConnectedSessions, m.MessagesRelayed, m.BytesRelayed, m.RateLimitRejections)
	return m
}

// Handler returns the HTTP handler that exposes this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP listener exposing this metric set at /metrics and
// blocks until ctx is cancelled or the listener fails. It is started as an
// operator convenience on 127.0.0.1:<port+1> when --metrics-interval is
// non-zero; no protocol operation depends on it.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			errCh <- err
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// LogPeriodically logs the connected-session count every interval, for
// operators without a Prometheus scrape target configured.
func (m *Metrics) LogPeriodically(ctx context.Context, interval time.Duration, connected func() int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("metrics: connected=%d", connected())
		}
	}
}
