package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the orchestrator's Prometheus instrumentation: Publish
// outcomes, Broadcast/delivery counts, and per-machine mailbox depth.
type Metrics struct {
	Published    *prometheus.CounterVec
	Broadcast    prometheus.Counter
	Delivered    prometheus.Counter
	MailboxDepth *prometheus.GaugeVec
}

// NewMetrics registers the orchestrator's metrics against registerer.
// A nil registerer falls back to prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Published: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "statewire_orchestrator_published_total",
				Help: "Total Publish calls by result (ok, unknown_target, mailbox_full).",
			},
			[]string{"result"},
		),
		Broadcast: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "statewire_orchestrator_broadcast_total",
				Help: "Total Broadcast calls.",
			},
		),
		Delivered: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "statewire_orchestrator_delivered_total",
				Help: "Total events successfully enqueued onto a registered machine's mailbox.",
			},
		),
		MailboxDepth: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "statewire_orchestrator_mailbox_depth",
				Help: "Current number of queued events per registered machine.",
			},
			[]string{"machine"},
		),
	}
}
