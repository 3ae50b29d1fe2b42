package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message directions and rejection reasons used as metric labels.
const (
	DirectionInbound  = "inbound"  // customer to relay
	DirectionOutbound = "outbound" // agent to customer

	ReasonRateLimited = "rate_limited"
	ReasonEmpty       = "empty"
	ReasonMalformed   = "malformed"
	ReasonStore       = "store"
	ReasonSlowClient  = "slow_client"
)

// Metrics are the relay's Prometheus collectors. Each Server owns a
// registry so that several servers can coexist in one process.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	messages    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	purged      prometheus.Counter
}

// NewMetrics creates and registers the relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "helpline",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpline",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Chat messages accepted, by direction.",
		}, []string{"direction"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpline",
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Inbound frames rejected, by reason.",
		}, []string{"reason"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "helpline",
			Subsystem: "relay",
			Name:      "purged_messages_total",
			Help:      "Messages deleted by the retention job.",
		}),
	}
	m.registry.MustRegister(
		m.connections,
		m.messages,
		m.rejected,
		m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) message(direction string) { m.messages.WithLabelValues(direction).Inc() }
func (m *Metrics) reject(reason string)     { m.rejected.WithLabelValues(reason).Inc() }
