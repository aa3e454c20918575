package worker

import (
	"context"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duocluster/sidecar/dbclients"
	"github.com/duocluster/sidecar/failover"
	"github.com/duocluster/sidecar/outbox"
	"github.com/duocluster/sidecar/replication"
)

type fakeIter struct{ ok bool }

func (f *fakeIter) Scan(dest ...interface{}) bool { return f.ok }
func (f *fakeIter) Close() error                  { return nil }

type fakeQuery struct{ ok bool }

func (q *fakeQuery) Consistency(gocql.Consistency) dbclients.Query { return q }
func (q *fakeQuery) Idempotent(bool) dbclients.Query               { return q }
func (q *fakeQuery) Exec() error {
	if q.ok {
		return nil
	}
	return errBoom
}
func (q *fakeQuery) Iter() dbclients.Iter { return &fakeIter{ok: q.ok} }

var errBoom = assertErr{}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

type fakeSession struct{ ok bool }

func (s *fakeSession) Query(stmt string, values ...interface{}) dbclients.Query {
	return &fakeQuery{ok: s.ok}
}
func (s *fakeSession) Close() {}

func TestRunOnceProcessesReplayAndDrift(t *testing.T) {
	var dir = t.TempDir()
	var ob, err = outbox.Open(dir, outbox.Options{})
	require.NoError(t, err)
	defer ob.Close()

	var repl = replication.New(ob, "active_ks", "passive_ks")
	var clients = dbclients.New(&fakeSession{ok: true}, &fakeSession{ok: true}, "active_ks", "passive_ks")

	require.False(t, repl.WriteSimple(dbclients.New(&fakeSession{ok: false}, &fakeSession{ok: false}, "active_ks", "passive_ks"), "k1", "INSERT INTO t ...", outbox.TargetActive))

	var fo = failover.NewManager(nil)
	var w = New(repl, fo)
	w.DriftRecThreshold = 0

	var result = w.RunOnce(context.Background(), clients)
	assert.Equal(t, 1, result.Processed)
	assert.True(t, result.Health.ActiveOk)
	assert.True(t, w.LastDrift.Healthy)
}

func TestRunOnceSkipsReplayWhenMaxIsZero(t *testing.T) {
	var dir = t.TempDir()
	var ob, err = outbox.Open(dir, outbox.Options{})
	require.NoError(t, err)
	defer ob.Close()

	var repl = replication.New(ob, "active_ks", "passive_ks")
	var clients = dbclients.New(&fakeSession{ok: true}, &fakeSession{ok: true}, "active_ks", "passive_ks")
	_, aerr := ob.Append(outbox.NewRecord("k", "INSERT INTO t ...", outbox.TargetActive))
	require.NoError(t, aerr)

	var w = New(repl, failover.NewManager(nil))
	w.MaxReplayPerTick = 0

	var result = w.RunOnce(context.Background(), clients)
	assert.Zero(t, result.Processed)
}
