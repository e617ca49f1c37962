// Package metrics registers the counters and gauges the engine exposes
// for observability, backed directly by prometheus/client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AutoStats mirrors engine.Session.autoStats: monotonically increasing
// counters for the C3 auto-discovery funnel, labeled by cluster and
// owner so a multi-tenant deployment can break down by wallet.
var AutoStats = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "solbot",
	Subsystem: "auto_discovery",
	Name:      "events_total",
	Help:      "Auto-discovery funnel counters (signals, tx_ok, mint_inferred, safety_ok, triggered, reject_<reason>).",
}, []string{"cluster", "owner", "stage"})

// PendingActions tracks the current number of sessions holding a
// non-nil pendingAction, broken down by source.
var PendingActions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "solbot",
	Subsystem: "session",
	Name:      "pending_actions",
	Help:      "Sessions currently holding a pending action, by source.",
}, []string{"cluster", "source"})

// ClusterConnections tracks whether a cluster's WebSocket is currently
// open (0/1), one gauge per cluster.
var ClusterConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "solbot",
	Subsystem: "cluster",
	Name:      "ws_connected",
	Help:      "1 if the cluster's log-stream WebSocket is open, else 0.",
}, []string{"cluster"})

// BundleTransitions counts bundle lifecycle state transitions.
var BundleTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "solbot",
	Subsystem: "bundle",
	Name:      "transitions_total",
	Help:      "Bundle lifecycle transitions, by destination state.",
}, []string{"cluster", "state"})

func init() {
	prometheus.MustRegister(AutoStats, PendingActions, ClusterConnections, BundleTransitions)
}
