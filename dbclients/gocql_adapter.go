package dbclients

import "github.com/gocql/gocql"

// gocqlSession adapts a real *gocql.Session to the Session interface.
type gocqlSession struct {
	inner *gocql.Session
}

// NewGocqlSession wraps sess for use as a DbClients Session.
func NewGocqlSession(sess *gocql.Session) Session {
	return &gocqlSession{inner: sess}
}

func (s *gocqlSession) Query(stmt string, values ...interface{}) Query {
	return &gocqlQuery{inner: s.inner.Query(stmt, values...)}
}

func (s *gocqlSession) Close() { s.inner.Close() }

type gocqlQuery struct {
	inner *gocql.Query
}

func (q *gocqlQuery) Consistency(c gocql.Consistency) Query {
	q.inner = q.inner.Consistency(c)
	return q
}

func (q *gocqlQuery) Idempotent(val bool) Query {
	q.inner = q.inner.Idempotent(val)
	return q
}

func (q *gocqlQuery) Exec() error { return q.inner.Exec() }

func (q *gocqlQuery) Iter() Iter { return q.inner.Iter() }
