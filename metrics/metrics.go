// Package metrics declares the sidecar's Prometheus collectors, in the
// idiom of a package-level registration block (the pattern the broader
// example pack uses client_golang for: gauges registered once at
// package init, updated from call sites with no error handling since
// client_golang's Set/Inc/Add never fail).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OutboxPendingRecords is the current replay backlog, in records.
	OutboxPendingRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duosidecar_outbox_pending_records",
		Help: "Number of outbox records not yet replayed.",
	})

	// OutboxPendingBytes is the current replay backlog, in bytes.
	OutboxPendingBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duosidecar_outbox_pending_bytes",
		Help: "Bytes of outbox log between the replay cursor and the log end.",
	})

	// FailoverPrimary is 0 when Active is primary, 1 when Passive is primary.
	FailoverPrimary = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duosidecar_failover_primary",
		Help: "Currently designated primary cluster (0=Active, 1=Passive).",
	})

	// ReplayProcessedTotal counts outbox records successfully replayed.
	ReplayProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duosidecar_replay_processed_total",
		Help: "Total outbox records successfully applied by replay.",
	})
)

func init() {
	prometheus.MustRegister(OutboxPendingRecords, OutboxPendingBytes, FailoverPrimary, ReplayProcessedTotal)
}

// ObserveDrift updates the two outbox gauges from a drift reading.
func ObserveDrift(pendingRecords int, pendingBytes int64) {
	OutboxPendingRecords.Set(float64(pendingRecords))
	OutboxPendingBytes.Set(float64(pendingBytes))
}

// ObservePrimary updates the failover gauge; isPassive is true when
// Passive currently holds primary.
func ObservePrimary(isPassive bool) {
	if isPassive {
		FailoverPrimary.Set(1)
	} else {
		FailoverPrimary.Set(0)
	}
}

// ObserveReplayProcessed adds n to the replay counter.
func ObserveReplayProcessed(n int) {
	if n > 0 {
		ReplayProcessedTotal.Add(float64(n))
	}
}
