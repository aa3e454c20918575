// Package replication implements the dual-write façade: synchronous
// best-effort apply to one or both clusters, falling back to the
// outbox on failure, and cursor-driven replay back onto whichever
// cluster(s) a record targets.
package replication

import (
	"time"

	"github.com/gocql/gocql"

	"github.com/duocluster/sidecar/dbclients"
	"github.com/duocluster/sidecar/outbox"
)

// DriftStatus reports the backlog between the outbox's replay cursor
// and its current end, and whether that backlog is within threshold.
type DriftStatus struct {
	PendingRecords int
	PendingBytes   int64
	Cursor         uint64
	End            int64
	Healthy        bool
}

// Manager is the ReplicationManager: it owns an Outbox (optional -- a
// nil Outbox disables enqueue/replay entirely, degrading to direct
// best-effort writes) and the two keyspace names used for watermark
// upserts.
type Manager struct {
	Outbox          *outbox.Outbox
	ActiveKeyspace  string
	PassiveKeyspace string
}

// New builds a Manager. ob may be nil.
func New(ob *outbox.Outbox, activeKeyspace, passiveKeyspace string) *Manager {
	return &Manager{Outbox: ob, ActiveKeyspace: activeKeyspace, PassiveKeyspace: passiveKeyspace}
}

// nowMs returns the current wall clock in milliseconds.
func nowMs() uint64 { return uint64(time.Now().UnixMilli()) }

// WriteSimple attempts a parameter-free statement against every cluster
// named by target, enqueueing an OutboxRecord for any cluster that
// fails. Returns the disjunction of per-target successes: a fully
// failed dual-write still returns false but has persisted every
// enqueue. An optional consistency override replaces the per-cluster
// default for this call only -- it is never persisted into the outbox
// record; replay always reapplies at the hardcoded per-cluster default.
//
// Neither this call path nor replay binds params: replay re-executes
// the stored CQL text verbatim, so a caller's statement here must
// itself be parameter-free and idempotent for replay to be safe.
func (m *Manager) WriteSimple(clients *dbclients.DbClients, key, cql string, target outbox.Target, consistency ...gocql.Consistency) bool {
	var anyOk bool
	for _, which := range targetsOf(target) {
		if m.applyOnce(clients, which, cql, consistency...) {
			anyOk = true
			continue
		}
		m.enqueue(key, cql, singleTargetFor(which))
	}
	return anyOk
}

func (m *Manager) applyOnce(clients *dbclients.DbClients, which dbclients.Cluster, cql string, override ...gocql.Consistency) bool {
	var q = clients.GetOrPrepare(which, cql)
	if q == nil {
		return false
	}
	var consistency = dbclients.ConsistencyFor(which)
	if len(override) > 0 {
		consistency = override[0]
	}
	return q.Consistency(consistency).Idempotent(true).Exec() == nil
}

func (m *Manager) enqueue(key, cql string, target outbox.Target) {
	if m.Outbox == nil {
		return
	}
	var rec = outbox.NewRecord(key, cql, target)
	rec.CreatedMs = nowMs()
	_, _ = m.Outbox.Append(rec)
}

func targetsOf(target outbox.Target) []dbclients.Cluster {
	switch target {
	case outbox.TargetActive:
		return []dbclients.Cluster{dbclients.ClusterActive}
	case outbox.TargetPassive:
		return []dbclients.Cluster{dbclients.ClusterPassive}
	case outbox.TargetBoth:
		return []dbclients.Cluster{dbclients.ClusterActive, dbclients.ClusterPassive}
	default:
		return nil
	}
}

func singleTargetFor(which dbclients.Cluster) outbox.Target {
	if which == dbclients.ClusterActive {
		return outbox.TargetActive
	}
	return outbox.TargetPassive
}

// mark records a successfully-applied record's end offset for a
// post-batch watermark write.
type mark struct {
	cluster dbclients.Cluster
	end     int64
}

// ReplayAndMark drains up to max records from the cursor, applying each
// in append order. For a Both-target record, both clusters must
// succeed. On the first failure the loop stops without advancing the
// cursor past that record; watermarks are written only after the loop,
// for every cluster touched by a successfully applied record. Returns
// the count of records processed (applied and cursor-advanced).
func (m *Manager) ReplayAndMark(clients *dbclients.DbClients, max int) int {
	if m.Outbox == nil {
		return 0
	}
	var cursor, err = m.Outbox.LoadCursor()
	if err != nil {
		return 0
	}
	var batch, rerr = m.Outbox.ReadFrom(int64(cursor), max)
	if rerr != nil {
		return 0
	}

	var marks []mark
	var processed int
	for _, span := range batch {
		var ok, touched = m.applySpan(clients, span.Record)
		if !ok {
			break
		}
		if serr := m.Outbox.StoreCursor(uint64(span.End)); serr != nil {
			// A store_cursor failure mid-batch is treated as fatal to
			// the batch: stop without further apply.
			break
		}
		for _, cl := range touched {
			marks = append(marks, mark{cluster: cl, end: span.End})
		}
		processed++
	}

	for _, mk := range marks {
		m.writeWatermark(clients, mk.cluster, mk.end)
	}
	return processed
}

// applySpan applies rec according to its Target, returning whether the
// record is considered fully applied and which clusters were touched.
func (m *Manager) applySpan(clients *dbclients.DbClients, rec outbox.Record) (ok bool, touched []dbclients.Cluster) {
	switch rec.Target {
	case outbox.TargetActive:
		if m.applyOnce(clients, dbclients.ClusterActive, rec.Statement) {
			return true, []dbclients.Cluster{dbclients.ClusterActive}
		}
		return false, nil
	case outbox.TargetPassive:
		if m.applyOnce(clients, dbclients.ClusterPassive, rec.Statement) {
			return true, []dbclients.Cluster{dbclients.ClusterPassive}
		}
		return false, nil
	case outbox.TargetBoth:
		var activeOk = m.applyOnce(clients, dbclients.ClusterActive, rec.Statement)
		var passiveOk = m.applyOnce(clients, dbclients.ClusterPassive, rec.Statement)
		if activeOk && passiveOk {
			return true, []dbclients.Cluster{dbclients.ClusterActive, dbclients.ClusterPassive}
		}
		return false, nil
	default:
		return false, nil
	}
}

func (m *Manager) writeWatermark(clients *dbclients.DbClients, which dbclients.Cluster, end int64) {
	var keyspace = m.ActiveKeyspace
	if which == dbclients.ClusterPassive {
		keyspace = m.PassiveKeyspace
	}
	clients.UpsertWatermark(which, keyspace, end, int64(nowMs()))
}

// ReadSimple tries Active then Passive, returning the first cluster
// that has a session along with the Iter for cql on it. Only an absent
// session moves it on to Passive: the query's own errors are not
// checked here and surface from the returned Iter's Close. ok is false
// only when neither session is present.
func (m *Manager) ReadSimple(clients *dbclients.DbClients, cql string, consistency ...gocql.Consistency) (cluster dbclients.Cluster, rows dbclients.Iter, ok bool) {
	for _, which := range []dbclients.Cluster{dbclients.ClusterActive, dbclients.ClusterPassive} {
		var q = clients.GetOrPrepare(which, cql)
		if q == nil {
			continue
		}
		var cons = dbclients.ConsistencyFor(which)
		if len(consistency) > 0 {
			cons = consistency[0]
		}
		var iter = q.Consistency(cons).Idempotent(true).Iter()
		if iter != nil {
			return which, iter, true
		}
	}
	return 0, nil, false
}

// DriftStatus computes the current replay backlog and labels it healthy
// against the given thresholds.
func (m *Manager) DriftStatus(recThreshold int, bytesThreshold int64) DriftStatus {
	if m.Outbox == nil {
		return DriftStatus{Healthy: true}
	}
	var cursor, _ = m.Outbox.LoadCursor()
	var end, _ = m.Outbox.EndOffset()
	var count, bytes, _ = m.Outbox.PendingCount(int64(cursor))

	return DriftStatus{
		PendingRecords: count,
		PendingBytes:   bytes,
		Cursor:         cursor,
		End:            end,
		Healthy:        count <= recThreshold && bytes <= bytesThreshold,
	}
}
