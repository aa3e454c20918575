package dbclients

import (
	"fmt"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/duocluster/sidecar/config"
)

// EnsureKeyspaces checks for, and creates if absent, the Active and
// Passive keyspaces named in cfg. Called fatally at startup; the
// periodic re-ensure caller is expected to log-and-continue on error
// instead of propagating it.
func EnsureKeyspaces(cfg config.AppConfig, clients *DbClients) error {
	if err := ensureOne(ClusterActive, cfg.Active, clients); err != nil {
		return errors.WithMessage(err, "ensure active keyspace")
	}
	if err := ensureOne(ClusterPassive, cfg.Passive, clients); err != nil {
		return errors.WithMessage(err, "ensure passive keyspace")
	}
	return nil
}

// EnsureKeyspacesPeriodic re-runs EnsureKeyspaces but only logs failures,
// matching the startup-fatal/periodic-warning split in the propagation
// policy.
func EnsureKeyspacesPeriodic(cfg config.AppConfig, clients *DbClients) {
	if err := EnsureKeyspaces(cfg, clients); err != nil {
		log.WithError(err).Warn("periodic keyspace re-ensure failed")
	}
}

func ensureOne(which Cluster, ep config.DbEndpoint, clients *DbClients) error {
	var sess, _, _ = clients.pick(which)
	if sess == nil {
		return nil
	}

	if exists, err := keyspaceExists(sess, ep.Keyspace); err != nil {
		return errors.WithMessage(err, "check keyspace existence")
	} else if exists {
		return nil
	}

	var stmt = fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class':'NetworkTopologyStrategy','%s':%d} AND durable_writes = %t`,
		QuoteIdent(ep.Keyspace), ep.Datacenter, ep.ReplicationFactor, ep.DurableWrites,
	)
	var err = sess.Query(stmt).Consistency(gocql.Quorum).Idempotent(true).Exec()
	if err != nil {
		return errors.Wrap(err, "create keyspace")
	}
	return nil
}

func keyspaceExists(sess Session, keyspace string) (bool, error) {
	var iter = sess.Query("SELECT keyspace_name FROM system_schema.keyspaces WHERE keyspace_name = ?", keyspace).
		Consistency(gocql.Quorum).
		Idempotent(true).
		Iter()

	var name string
	var found = iter.Scan(&name)
	if err := iter.Close(); err != nil {
		return false, err
	}
	return found, nil
}
