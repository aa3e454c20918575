// Package worker implements the SyncWorker: the periodic coordinator
// that ticks failover, drains the outbox, updates watermarks, and
// reports drift. Its RunLoop is supervised with golang.org/x/sync/errgroup,
// standing in for the teacher's internal task.Group (consumer/service.go's
// QueueTasks) which isn't part of this retrieved slice.
package worker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/duocluster/sidecar/dbclients"
	"github.com/duocluster/sidecar/failover"
	"github.com/duocluster/sidecar/metrics"
	"github.com/duocluster/sidecar/replication"
)

// Defaults match spec: 1s tick, 128 records per replay, drift
// thresholds of 100 records / 1,000,000 bytes.
const (
	DefaultIntervalMs          = 1000
	DefaultMaxReplayPerTick    = 128
	DefaultDriftRecThreshold   = 100
	DefaultDriftBytesThreshold = 1_000_000
)

// Worker combines a ReplicationManager and a FailoverManager into the
// single periodic tick the rest of the process schedules.
type Worker struct {
	Repl     *replication.Manager
	Failover *failover.Manager

	IntervalMs          uint64
	MaxReplayPerTick    int
	DriftRecThreshold   int
	DriftBytesThreshold int64

	LastDrift replication.DriftStatus
}

// New builds a Worker with the package defaults; override any field on
// the returned value before calling RunOnce/RunLoop.
func New(repl *replication.Manager, fo *failover.Manager) *Worker {
	return &Worker{
		Repl:                repl,
		Failover:            fo,
		IntervalMs:          DefaultIntervalMs,
		MaxReplayPerTick:    DefaultMaxReplayPerTick,
		DriftRecThreshold:   DefaultDriftRecThreshold,
		DriftBytesThreshold: DefaultDriftBytesThreshold,
	}
}

// Result is what one tick produced.
type Result struct {
	Health    failover.HealthStatus
	Processed int
}

// RunOnce executes a single tick: failover, replay, watermark
// heartbeat, drift evaluation.
func (w *Worker) RunOnce(ctx context.Context, clients *dbclients.DbClients) Result {
	var health = w.Failover.Tick(ctx, clients)
	metrics.ObservePrimary(w.Failover.State.Primary == dbclients.ClusterPassive)

	var processed int
	if w.Repl.Outbox != nil && w.MaxReplayPerTick > 0 {
		processed = w.Repl.ReplayAndMark(clients, w.MaxReplayPerTick)
		metrics.ObserveReplayProcessed(processed)
	}

	if w.Repl.Outbox != nil {
		var cursor, err = w.Repl.Outbox.LoadCursor()
		if err == nil {
			clients.UpsertWatermark(dbclients.ClusterPassive, w.Repl.PassiveKeyspace, int64(cursor), time.Now().UnixMilli())
		}
	}

	var drift = w.Repl.DriftStatus(w.DriftRecThreshold, w.DriftBytesThreshold)
	metrics.ObserveDrift(drift.PendingRecords, drift.PendingBytes)
	if !drift.Healthy {
		log.WithFields(log.Fields{
			"pending_records": drift.PendingRecords,
			"pending_bytes":   drift.PendingBytes,
			"cursor":          drift.Cursor,
			"end":             drift.End,
		}).Warn("outbox replication drift exceeds threshold")
	}
	w.LastDrift = drift

	return Result{Health: health, Processed: processed}
}

// RunLoop ticks at IntervalMs until ctx is cancelled.
func (w *Worker) RunLoop(ctx context.Context, clients *dbclients.DbClients) error {
	var interval = time.Duration(w.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = DefaultIntervalMs * time.Millisecond
	}
	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx, clients)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
