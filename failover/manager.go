package failover

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/duocluster/sidecar/dbclients"
)

// ReadinessProbe decides whether a proposed switch from one cluster to
// another may be committed. Same-cluster transitions are always ready;
// cross-cluster transitions consult the destination's liveness by
// default. Implementations may extend this with convergence checks
// (e.g. watermark comparison).
type ReadinessProbe interface {
	ReadyToSwitch(ctx context.Context, clients *dbclients.DbClients, from, to dbclients.Cluster) bool
}

// livenessProbe is the default ReadinessProbe: liveness-only.
type livenessProbe struct{}

func (livenessProbe) ReadyToSwitch(_ context.Context, clients *dbclients.DbClients, from, to dbclients.Cluster) bool {
	if from == to {
		return true
	}
	return clients.PingReleaseVersion(to)
}

// DefaultProbe is the liveness-only ReadinessProbe used unless the
// caller supplies their own.
var DefaultProbe ReadinessProbe = livenessProbe{}

// HealthStatus is the three-way liveness result surfaced to callers,
// including the HTTP health handlers.
type HealthStatus struct {
	ActiveOk  bool
	PassiveOk bool
}

// Manager owns a State and ticks it forward, consulting a
// ReadinessProbe before committing any proposed switch.
type Manager struct {
	State State
	Probe ReadinessProbe

	// ForceReady bypasses the readiness probe entirely. Intended for
	// tests; see spec scenario S3-S5.
	ForceReady bool
}

// NewManager returns a Manager in its initial state, using probe (or
// DefaultProbe if nil).
func NewManager(probe ReadinessProbe) *Manager {
	if probe == nil {
		probe = DefaultProbe
	}
	return &Manager{State: NewState(), Probe: probe}
}

// Tick pings both clusters concurrently, folds the result into State,
// and commits any switch whose readiness check (or ForceReady) passes.
func (m *Manager) Tick(ctx context.Context, clients *dbclients.DbClients) HealthStatus {
	var activeOk, passiveOk = dbHealth(ctx, clients)
	return m.TickWithStatus(ctx, clients, activeOk, passiveOk)
}

// TickWithStatus is the test-only variant that skips the ping and feeds
// synthetic liveness directly.
func (m *Manager) TickWithStatus(ctx context.Context, clients *dbclients.DbClients, activeOk, passiveOk bool) HealthStatus {
	m.State.UpdateWith(activeOk, passiveOk)

	if m.State.Pending != nil {
		var to = *m.State.Pending
		if m.ForceReady || m.Probe.ReadyToSwitch(ctx, clients, m.State.Primary, to) {
			m.State.CommitSwitch(to)
		}
	}
	return HealthStatus{ActiveOk: activeOk, PassiveOk: passiveOk}
}

// dbHealth runs both liveness pings concurrently via errgroup, the
// idiomatic Go fan-out primitive for a pair of independent blocking
// calls joined before returning.
func dbHealth(ctx context.Context, clients *dbclients.DbClients) (activeOk, passiveOk bool) {
	var g, _ = errgroup.WithContext(ctx)
	g.Go(func() error {
		activeOk = clients.PingReleaseVersion(dbclients.ClusterActive)
		return nil
	})
	g.Go(func() error {
		passiveOk = clients.PingReleaseVersion(dbclients.ClusterPassive)
		return nil
	})
	_ = g.Wait()
	return activeOk, passiveOk
}
