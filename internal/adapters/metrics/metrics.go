package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peermesh_connections_open",
			Help: "Number of peers with an open channel",
		},
	)

	PeersKnown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peermesh_peers_known",
			Help: "Number of peers held in the connection registry",
		},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peermesh_messages_total",
			Help: "Total number of mesh protocol messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	GossipDialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peermesh_gossip_dials_total",
			Help: "Total number of dials triggered by new-participant gossip",
		},
	)

	TeardownsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peermesh_teardowns_total",
			Help: "Total number of teardown requests by outcome",
		},
		[]string{"mode"},
	)

	EndpointReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peermesh_endpoint_reconnects_total",
			Help: "Total number of endpoint reconnect attempts",
		},
		[]string{"outcome"},
	)

	NotificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peermesh_notifications_total",
			Help: "Total number of mesh view snapshots published",
		},
	)

	JoinDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peermesh_join_duration_seconds",
			Help:    "Time from join request until the local endpoint is ready",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func RecordMessage(direction, messageType string) {
	MessagesTotal.WithLabelValues(direction, messageType).Inc()
}

func RecordTeardown(mode string) {
	TeardownsTotal.WithLabelValues(mode).Inc()
}

func RecordReconnect(outcome string) {
	EndpointReconnectsTotal.WithLabelValues(outcome).Inc()
}

func SetMeshSize(known, connected int) {
	PeersKnown.Set(float64(known))
	ConnectionsOpen.Set(float64(connected))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
