// Package rmetrics exposes the Prometheus instrumentation for the
// forwarding engine: packets forwarded and dropped, peer churn, and the
// live size of the forwarding table.
package rmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PacketsForwardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tunrouter_packets_forwarded_total",
		Help: "IPv4 datagrams relayed to a resolved destination socket.",
	})

	PacketsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunrouter_packets_dropped_total",
			Help: "IPv4 datagrams dropped, by reason.",
		},
		[]string{"reason"},
	)

	PeersRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tunrouter_peers_registered_total",
		Help: "Peers registered with the router over the process lifetime.",
	})

	PeersUnregisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tunrouter_peers_unregistered_total",
		Help: "Peers unregistered from the router over the process lifetime.",
	})

	ForwardingMapSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tunrouter_forwarding_map_size",
		Help: "Live entries in the forwarding map.",
	})
)

// Drop reasons recorded against PacketsDroppedTotal.
const (
	ReasonNonIPv4      = "non_ipv4"
	ReasonNoRoute      = "no_route"
	ReasonMapContended = "map_contended"
)

// Register adds every metric to the default Prometheus registry. Call
// once at process startup, before internal/httpapi starts serving
// /metrics.
func Register() {
	prometheus.MustRegister(
		PacketsForwardedTotal,
		PacketsDroppedTotal,
		PeersRegisteredTotal,
		PeersUnregisteredTotal,
		ForwardingMapSize,
	)
}
