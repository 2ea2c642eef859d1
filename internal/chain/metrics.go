package chain

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records RPC call counts and latency per method.
type Metrics struct {
	Calls   *prometheus.CounterVec
	Latency *prometheus.HistogramVec
}

// NewMetrics builds and registers chain RPC metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenclaim_rpc_calls_total",
			Help: "Total number of chain RPC calls by method and result",
		}, []string{"method", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokenclaim_rpc_latency_seconds",
			Help:    "Chain RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.Calls, m.Latency)
	}
	return m
}

func (m *Metrics) observe(method string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ethereum.NotFound):
		result = "not_found"
	default:
		result = "error"
	}
	m.Calls.WithLabelValues(method, result).Inc()
	m.Latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
