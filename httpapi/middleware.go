package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type correlationIDKey struct{}

// CorrelationIDHeader is the header carrying the request's correlation
// ID, propagated if the client already set one.
const CorrelationIDHeader = "X-Correlation-Id"

// CorrelationID assigns a correlation ID to every request -- reusing
// one found on the incoming request, or minting a fresh UUID -- and
// both echoes it on the response and stashes it on the request context.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id = r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationIDHeader, id)
		var ctx = context.WithValue(r.Context(), correlationIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFromContext returns the request's correlation ID, or ""
// if none was assigned (e.g. called outside the middleware's chain).
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
