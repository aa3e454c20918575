package dbclients

import (
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duocluster/sidecar/config"
)

// fakeSession/fakeQuery/fakeIter let us exercise DbClients without a
// live cluster.

type fakeIter struct {
	rows    [][]interface{}
	pos     int
	closeErr error
}

func (f *fakeIter) Scan(dest ...interface{}) bool {
	if f.pos >= len(f.rows) {
		return false
	}
	var row = f.rows[f.pos]
	f.pos++
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p, _ = row[i].(string)
		}
	}
	return true
}

func (f *fakeIter) Close() error { return f.closeErr }

type fakeQuery struct {
	stmt     string
	execErr  error
	iter     *fakeIter
	lastCons gocql.Consistency
	idempot  bool
}

func (q *fakeQuery) Consistency(c gocql.Consistency) Query { q.lastCons = c; return q }
func (q *fakeQuery) Idempotent(v bool) Query               { q.idempot = v; return q }
func (q *fakeQuery) Exec() error                            { return q.execErr }
func (q *fakeQuery) Iter() Iter                              { return q.iter }

type fakeSession struct {
	queries  map[string]*fakeQuery
	fallback *fakeQuery
	calls    []string
}

func (s *fakeSession) Query(stmt string, values ...interface{}) Query {
	s.calls = append(s.calls, stmt)
	if q, ok := s.queries[stmt]; ok {
		return q
	}
	if s.fallback != nil {
		return s.fallback
	}
	return &fakeQuery{stmt: stmt, iter: &fakeIter{}}
}

func (s *fakeSession) Close() {}

func TestIsEmpty(t *testing.T) {
	var empty = New(nil, nil, "a", "p")
	assert.True(t, empty.IsEmpty())

	var one = New(&fakeSession{}, nil, "a", "p")
	assert.False(t, one.IsEmpty())
}

func TestGetOrPrepareCachesByText(t *testing.T) {
	var sess = &fakeSession{queries: map[string]*fakeQuery{}}
	var clients = New(sess, nil, "a", "p")

	var q1 = clients.GetOrPrepare(ClusterActive, "SELECT 1")
	var q2 = clients.GetOrPrepare(ClusterActive, "SELECT 1")
	assert.Same(t, q1, q2)
	assert.Len(t, sess.calls, 1)

	require.Nil(t, clients.GetOrPrepare(ClusterPassive, "SELECT 1"))
}

func TestPingReleaseVersion(t *testing.T) {
	var okSess = &fakeSession{fallback: &fakeQuery{iter: &fakeIter{rows: [][]interface{}{{"4.0.0"}}}}}
	var clients = New(okSess, nil, "a", "p")
	assert.True(t, clients.PingReleaseVersion(ClusterActive))
	assert.False(t, clients.PingReleaseVersion(ClusterPassive))

	var emptySess = &fakeSession{fallback: &fakeQuery{iter: &fakeIter{}}}
	var clients2 = New(emptySess, nil, "a", "p")
	assert.False(t, clients2.PingReleaseVersion(ClusterActive))
}

func TestUpsertWatermark(t *testing.T) {
	var sess = &fakeSession{fallback: &fakeQuery{}}
	var clients = New(sess, nil, "a", "p")
	assert.True(t, clients.UpsertWatermark(ClusterActive, "ks", 42, 1000))
	assert.Contains(t, sess.calls[0], `"ks".repl_watermark`)

	var failing = &fakeSession{fallback: &fakeQuery{execErr: assertErr{}}}
	var clients2 = New(failing, nil, "a", "p")
	assert.False(t, clients2.UpsertWatermark(ClusterActive, "ks", 42, 1000))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"duosidecar"`, QuoteIdent("duosidecar"))
	assert.Equal(t, `"weird""name"`, QuoteIdent(`weird"name`))
}

func TestClusterString(t *testing.T) {
	assert.Equal(t, "active", ClusterActive.String())
	assert.Equal(t, "passive", ClusterPassive.String())
}

func TestEnsureKeyspacesCreatesWhenAbsent(t *testing.T) {
	var createCalled = false
	var sess = &fakeSession{queries: map[string]*fakeQuery{
		"SELECT keyspace_name FROM system_schema.keyspaces WHERE keyspace_name = ?": {iter: &fakeIter{}},
	}}
	sess.fallback = &fakeQuery{execErr: nil}
	var clients = New(sess, nil, "duosidecar", "duosidecar")

	var cfg = config.Default()
	var err = EnsureKeyspaces(cfg, clients)
	require.NoError(t, err)

	for _, c := range sess.calls {
		if len(c) > 13 && c[:13] == "CREATE KEYSPA" {
			createCalled = true
		}
	}
	assert.True(t, createCalled)
}

func TestEnsureKeyspacesSkipsWhenPresent(t *testing.T) {
	var sess = &fakeSession{queries: map[string]*fakeQuery{
		"SELECT keyspace_name FROM system_schema.keyspaces WHERE keyspace_name = ?": {iter: &fakeIter{rows: [][]interface{}{{"duosidecar"}}}},
	}}
	var clients = New(sess, nil, "duosidecar", "duosidecar")

	var cfg = config.Default()
	require.NoError(t, EnsureKeyspaces(cfg, clients))

	for _, c := range sess.calls {
		assert.NotContains(t, c, "CREATE KEYSPACE")
	}
}
