package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every hub metric and is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// MessagesReceived counts inbound bus messages by topic kind.
	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roidota_messages_received_total",
			Help: "Inbound MQTT messages by topic kind.",
		},
		[]string{"kind"},
	)

	// MessagesDropped counts inbound messages that could not be decoded or validated.
	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roidota_messages_dropped_total",
			Help: "Inbound MQTT messages dropped, by topic kind and reason (decode, invalid, unknown_topic, handler).",
		},
		[]string{"kind", "reason"},
	)

	// OrphanAcks counts acknowledgements that matched no open deployment.
	OrphanAcks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roidota_orphan_acks_total",
			Help: "Deployment acknowledgements received for devices with no open deployment.",
		},
	)

	// DeploymentTransitions counts deployment records entering each state.
	DeploymentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roidota_deployment_transitions_total",
			Help: "Deployment records entering each state.",
		},
		[]string{"status"},
	)

	// PublishTotal counts outbound publishes by channel and result (success/failed).
	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roidota_publish_total",
			Help: "Outbound MQTT publishes by channel and result.",
		},
		[]string{"channel", "result"},
	)

	// PublishLatency observes the time until the broker acknowledged a publish.
	PublishLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roidota_publish_latency_seconds",
			Help:    "Latency of acknowledged outbound MQTT publishes.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// Devices reports the number of tracked devices per liveness state.
	Devices = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roidota_devices",
			Help: "Tracked devices by liveness state.",
		},
		[]string{"state"},
	)

	// BrokerConnected is 1 while the hub is connected to the broker.
	BrokerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roidota_broker_connected",
			Help: "Connectivity to the MQTT broker (1=connected, 0=disconnected).",
		},
	)

	// BrokerErrors counts connection and client errors reported by the bus client.
	BrokerErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roidota_broker_errors_total",
			Help: "MQTT connection and client errors.",
		},
	)

	// ContactUpdatesDropped counts last-contact updates shed because the buffer was full.
	ContactUpdatesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roidota_contact_updates_dropped_total",
			Help: "Device last-contact updates dropped because the write buffer was full.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		MessagesReceived,
		MessagesDropped,
		OrphanAcks,
		DeploymentTransitions,
		PublishTotal,
		PublishLatency,
		Devices,
		BrokerConnected,
		BrokerErrors,
		ContactUpdatesDropped,
	)
}
