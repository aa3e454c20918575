package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/duocluster/sidecar/dbclients"
	"github.com/duocluster/sidecar/failover"
	"github.com/duocluster/sidecar/replication"
)

// DbHealth is the three-way result rendered by GET /health/db.
type DbHealth struct {
	ActiveOk  bool   `json:"active_ok"`
	PassiveOk bool   `json:"passive_ok"`
	Primary   string `json:"primary"`
}

// NewMux wires the health surface: a static service_health at /health, a
// live db_health at /health/db, and drift reporting at /health/drift.
// Every handler is wrapped in CorrelationID. recThreshold/bytesThreshold
// parametrize the drift healthy/unhealthy cutoff, normally the worker's
// configured thresholds.
func NewMux(clients *dbclients.DbClients, fo *failover.Manager, repl *replication.Manager, recThreshold int, bytesThreshold int64) *http.ServeMux {
	var mux = http.NewServeMux()
	mux.Handle("/health", CorrelationID(http.HandlerFunc(handleServiceHealth)))
	mux.Handle("/health/db", CorrelationID(handleDbHealth(clients, fo)))
	mux.Handle("/health/drift", CorrelationID(handleDrift(repl, recThreshold, bytesThreshold)))
	return mux
}

func handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Success("service is healthy"))
}

func handleDbHealth(clients *dbclients.DbClients, fo *failover.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var activeOk, passiveOk = pingBoth(r.Context(), clients)
		var health = DbHealth{ActiveOk: activeOk, PassiveOk: passiveOk, Primary: fo.State.Primary.String()}

		if activeOk && passiveOk {
			writeJSON(w, http.StatusOK, Ok("both clusters healthy", health))
			return
		}

		var what, why string
		switch {
		case !activeOk && !passiveOk:
			what, why = "Both clusters are unreachable.", "Neither the Active nor the Passive cluster responded to a liveness check."
		case !activeOk:
			what, why = "The Active cluster is unreachable.", "Active failed its liveness check; Passive is healthy."
		default:
			what, why = "The Passive cluster is unreachable.", "Passive failed its liveness check; Active is healthy."
		}
		var resp = FailureDetail(what, why, "Check cluster connectivity and credentials, then retry.")
		resp.Data = health
		writeJSON(w, http.StatusOK, resp)
	})
}

func pingBoth(ctx context.Context, clients *dbclients.DbClients) (activeOk, passiveOk bool) {
	return clients.PingReleaseVersion(dbclients.ClusterActive), clients.PingReleaseVersion(dbclients.ClusterPassive)
}

func handleDrift(repl *replication.Manager, recThreshold int, bytesThreshold int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var status = repl.DriftStatus(recThreshold, bytesThreshold)
		if status.Healthy {
			writeJSON(w, http.StatusOK, Ok("replication drift within threshold", status))
			return
		}
		var resp = FailureDetail(
			"Replication backlog exceeds the configured threshold.",
			"The outbox has more pending records or bytes than the drift threshold allows.",
			"Check Sync Worker throughput and cluster health; drift will clear as replay catches up.",
		)
		resp.Data = status
		writeJSON(w, http.StatusOK, resp)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
