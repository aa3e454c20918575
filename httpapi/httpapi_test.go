package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	return assertErr{}
}
func (q *fakeQuery) Iter() dbclients.Iter { return &fakeIter{ok: q.ok} }

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

type fakeSession struct{ ok bool }

func (s *fakeSession) Query(stmt string, values ...interface{}) dbclients.Query {
	return &fakeQuery{ok: s.ok}
}
func (s *fakeSession) Close() {}

func TestHandleServiceHealth(t *testing.T) {
	var clients = dbclients.New(&fakeSession{ok: true}, &fakeSession{ok: true}, "a", "p")
	var mux = NewMux(clients, failover.NewManager(nil), replication.New(nil, "a", "p"), 100, 1_000_000)

	var rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(CorrelationIDHeader))

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, CodeSuccess, resp.Code)
}

func TestHandleDbHealthBothOk(t *testing.T) {
	var clients = dbclients.New(&fakeSession{ok: true}, &fakeSession{ok: true}, "a", "p")
	var mux = NewMux(clients, failover.NewManager(nil), replication.New(nil, "a", "p"), 100, 1_000_000)

	var rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/db", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, CodeSuccess, resp.Code)
}

func TestHandleDbHealthActiveDown(t *testing.T) {
	var clients = dbclients.New(&fakeSession{ok: false}, &fakeSession{ok: true}, "a", "p")
	var mux = NewMux(clients, failover.NewManager(nil), replication.New(nil, "a", "p"), 100, 1_000_000)

	var rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/db", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, CodeFailure, resp.Code)
}

func TestHandleDriftHealthy(t *testing.T) {
	var dir = t.TempDir()
	var ob, err = outbox.Open(dir, outbox.Options{})
	require.NoError(t, err)
	defer ob.Close()

	var clients = dbclients.New(&fakeSession{ok: true}, &fakeSession{ok: true}, "a", "p")
	var repl = replication.New(ob, "a", "p")
	var mux = NewMux(clients, failover.NewManager(nil), repl, 100, 1_000_000)

	var rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/drift", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, CodeSuccess, resp.Code)
}

func TestCorrelationIDPropagatesExisting(t *testing.T) {
	var called = false
	var h = CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "abc-123", CorrelationIDFromContext(r.Context()))
	}))

	var req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	var rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, "abc-123", rr.Header().Get(CorrelationIDHeader))
}
