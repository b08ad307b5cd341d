package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "krake"

// Metrics is a set of collectors of a single agent. Several agents in one
// process need separate registries.
type Metrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	DecodeErrors     prometheus.Counter
	SendErrors       prometheus.Counter
	Probes           *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	Members          *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages sent, by payload type.",
			},
			[]string{"type"},
		),
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Total number of messages received, by payload type.",
			},
			[]string{"type"},
		),
		DecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_errors_total",
				Help:      "Number of malformed datagrams dropped.",
			},
		),
		SendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "send_errors_total",
				Help:      "Number of datagrams that could not be sent.",
			},
		),
		Probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Number of probes sent and answered.",
			},
			[]string{"result"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "member_transitions_total",
				Help:      "Number of member status changes observed locally, by new status.",
			},
			[]string{"status"},
		),
		Members: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "members",
				Help:      "Current number of members in the local table, by status.",
			},
			[]string{"status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.MessagesSent,
			m.MessagesReceived,
			m.DecodeErrors,
			m.SendErrors,
			m.Probes,
			m.Transitions,
			m.Members,
		)
	}

	return m
}

// Handler exposes the metrics gathered by g. Mount it with mux.Handle("/metrics", ...).
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
