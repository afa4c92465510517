package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported on /metrics
type Metrics struct {
	registry        *prometheus.Registry
	MessagesRelayed *prometheus.CounterVec
	Replies         *prometheus.CounterVec
	Provisioning    *prometheus.CounterVec
	BlockChanges    *prometheus.CounterVec
	ActiveRelays    prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MessagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "motherbot_messages_relayed_total",
			Help: "Inbound anonymous messages by outcome.",
		}, []string{"result"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "motherbot_replies_total",
			Help: "Owner replies by outcome.",
		}, []string{"result"}),
		Provisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "motherbot_provisioning_total",
			Help: "Provisioning attempts by outcome.",
		}, []string{"outcome"}),
		BlockChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "motherbot_block_changes_total",
			Help: "Block list changes by action.",
		}, []string{"action"}),
		ActiveRelays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motherbot_active_relays",
			Help: "Relay bots with a running update loop.",
		}),
	}

	reg.MustRegister(
		m.MessagesRelayed,
		m.Replies,
		m.Provisioning,
		m.BlockChanges,
		m.ActiveRelays,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
