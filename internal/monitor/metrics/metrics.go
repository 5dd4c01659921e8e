package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cluster topology
	NodeRole = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pgswitch_node_role",
		Help: "Role of a probed node: 1 master, 0 standby, -1 unknown.",
	}, []string{"node"})

	NodeReachable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pgswitch_node_reachable",
		Help: "Whether the last probe of the node succeeded.",
	}, []string{"node"})

	// Replication lag, partitioned by standby link
	SendLagBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pgswitch_replication_send_lag_bytes",
		Help: "WAL bytes generated on the master not yet sent to the standby.",
	}, []string{"client"})

	FlushLagBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pgswitch_replication_flush_lag_bytes",
		Help: "WAL bytes sent to the standby not yet flushed there.",
	}, []string{"client"})

	ReplayLagBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pgswitch_replication_replay_lag_bytes",
		Help: "WAL bytes flushed on the standby not yet replayed.",
	}, []string{"client"})

	// Probe bookkeeping
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pgswitch_probes_total",
		Help: "Number of probes performed, partitioned by outcome.",
	}, []string{"node", "outcome"})

	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pgswitch_probe_duration_seconds",
		Help:    "Duration of a single node probe.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	// Coordinator
	CoordinatorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pgswitch_coordinator_state",
		Help: "Current coordinator state (one-hot over the state label).",
	}, []string{"state"})

	AlertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pgswitch_alerts_dropped_total",
		Help: "Alerts dropped because the alert queue was full.",
	})
)
