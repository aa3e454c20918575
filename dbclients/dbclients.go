// Package dbclients holds the two cluster sessions and their per-cluster
// prepared-statement caches, and exposes the small set of driver
// operations the rest of the sidecar needs: liveness ping, watermark
// upsert, and lazy statement preparation.
package dbclients

import (
	"strings"
	"sync"

	"github.com/gocql/gocql"
	log "github.com/sirupsen/logrus"

	"github.com/duocluster/sidecar/apperr"
	"github.com/duocluster/sidecar/config"
	"github.com/duocluster/sidecar/dbsession"
)

// Cluster names one of the two managed endpoints.
type Cluster uint8

const (
	ClusterActive Cluster = iota + 1
	ClusterPassive
)

func (c Cluster) String() string {
	switch c {
	case ClusterActive:
		return "active"
	case ClusterPassive:
		return "passive"
	default:
		return "unknown"
	}
}

// Iter is the subset of *gocql.Iter this package depends on.
type Iter interface {
	Scan(dest ...interface{}) bool
	Close() error
}

// Query is a chainable, narrowed view of *gocql.Query, kept as an
// interface (rather than the concrete driver type) so tests can
// substitute a fake without a live cluster.
type Query interface {
	Consistency(c gocql.Consistency) Query
	Idempotent(val bool) Query
	Exec() error
	Iter() Iter
}

// Session is the subset of *gocql.Session this package depends on.
// Production callers construct one via NewGocqlSession, which adapts a
// real *gocql.Session to this interface.
type Session interface {
	Query(stmt string, values ...interface{}) Query
	Close()
}

// DbClients holds up to two live sessions and their independent prepared
// statement caches. Either session may be nil (that endpoint failed to
// connect at startup) but IsEmpty reports whether both are.
type DbClients struct {
	Active, Passive                 Session
	ActiveKeyspace, PassiveKeyspace string

	activeMu, passiveMu sync.Mutex
	activeCache         map[string]Query
	passiveCache        map[string]Query
}

// New wraps already-connected sessions. Either may be nil.
func New(active, passive Session, activeKeyspace, passiveKeyspace string) *DbClients {
	return &DbClients{
		Active:          active,
		Passive:         passive,
		ActiveKeyspace:  activeKeyspace,
		PassiveKeyspace: passiveKeyspace,
		activeCache:     make(map[string]Query),
		passiveCache:    make(map[string]Query),
	}
}

// InitClients connects to both endpoints (best-effort) and returns a
// DbClients with whichever sessions succeeded. Fails with apperr.Db only
// if both connections failed.
func InitClients(cfg config.AppConfig) (*DbClients, error) {
	var active, activeErr = dbsession.Connect(cfg.Active, cfg.Driver)
	if activeErr != nil {
		log.WithError(activeErr).Warn("active cluster connect failed")
	}
	var passive, passiveErr = dbsession.Connect(cfg.Passive, cfg.Driver)
	if passiveErr != nil {
		log.WithError(passiveErr).Warn("passive cluster connect failed")
	}

	if activeErr != nil && passiveErr != nil {
		return nil, apperr.Wrap(apperr.KindDb, passiveErr, "both clusters failed to connect")
	}

	var clients = New(nil, nil, cfg.Active.Keyspace, cfg.Passive.Keyspace)
	if activeErr == nil {
		clients.Active = NewGocqlSession(active)
	}
	if passiveErr == nil {
		clients.Passive = NewGocqlSession(passive)
	}
	return clients, nil
}

// IsEmpty reports whether both sessions are absent.
func (d *DbClients) IsEmpty() bool {
	return d.Active == nil && d.Passive == nil
}

func (d *DbClients) pick(which Cluster) (Session, map[string]Query, *sync.Mutex) {
	switch which {
	case ClusterActive:
		return d.Active, d.activeCache, &d.activeMu
	case ClusterPassive:
		return d.Passive, d.passiveCache, &d.passiveMu
	default:
		return nil, nil, nil
	}
}

// ConsistencyFor returns each cluster's default consistency level:
// LocalQuorum for Active, One for Passive.
func ConsistencyFor(which Cluster) gocql.Consistency {
	if which == ClusterActive {
		return gocql.LocalQuorum
	}
	return gocql.One
}

// GetOrPrepare returns a cached Query template for cql, building and
// caching one if this is the first request for that exact text. Returns
// nil if the chosen session is absent.
//
// gocql has no separate synchronous "prepare" RPC in its public surface:
// statements are prepared transparently on first Exec/Iter and cached
// internally by the driver itself. This cache therefore caches the
// reusable Query template rather than a server-side prepare handle; any
// prepare failure surfaces to the caller on first execution, not here.
func (d *DbClients) GetOrPrepare(which Cluster, cql string) Query {
	var sess, cache, mu = d.pick(which)
	if sess == nil {
		return nil
	}

	mu.Lock()
	if q, ok := cache[cql]; ok {
		mu.Unlock()
		return q
	}
	mu.Unlock()

	var q = sess.Query(cql)

	mu.Lock()
	cache[cql] = q
	mu.Unlock()
	return q
}

// PingReleaseVersion runs SELECT release_version FROM system.local as an
// unprepared, idempotent query at the cluster's default consistency.
// Reports true iff at least one row decoded successfully.
func (d *DbClients) PingReleaseVersion(which Cluster) bool {
	var sess, _, _ = d.pick(which)
	if sess == nil {
		return false
	}

	var iter = sess.Query("SELECT release_version FROM system.local").
		Consistency(ConsistencyFor(which)).
		Idempotent(true).
		Iter()

	var version string
	if !iter.Scan(&version) {
		iter.Close()
		return false
	}
	return iter.Close() == nil
}

// UpsertWatermark writes the single repl_watermark row (id=1) on the
// given cluster, reporting whether the driver accepted the write.
func (d *DbClients) UpsertWatermark(which Cluster, keyspace string, lastID int64, nowMs int64) bool {
	var sess, _, _ = d.pick(which)
	if sess == nil {
		return false
	}

	var stmt = "INSERT INTO " + QuoteIdent(keyspace) + ".repl_watermark (id, last_applied_log_id, heartbeat_ms) VALUES (1, ?, ?)"
	var err = sess.Query(stmt, lastID, nowMs).
		Consistency(ConsistencyFor(which)).
		Idempotent(true).
		Exec()
	return err == nil
}

// QuoteIdent wraps a CQL identifier in double quotes, escaping embedded
// double quotes by doubling them. No other substitution is performed.
func QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
