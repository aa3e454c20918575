// Package failover implements the pure liveness state machine and its
// manager, in the idiom of the teacher's appendFSM
// (broker/append_fsm.go): a small struct of counters advanced by one
// method, with a mustState-style panic reserved for programmer errors
// rather than data the network can influence.
package failover

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/duocluster/sidecar/dbclients"
)

const (
	// FailThreshold is the number of consecutive Active failures, with
	// Passive healthy, required before a switch to Passive is proposed.
	FailThreshold = 3
	// RecoverThreshold is the number of consecutive Active successes
	// required, while running on Passive, before a switch back is proposed.
	RecoverThreshold = 5
)

// State is the pure liveness state machine. Its zero value is not
// ready for use; construct with NewState.
type State struct {
	Primary dbclients.Cluster

	LastActiveOk, LastPassiveOk bool

	ConsecutiveActiveFail     uint32
	ConsecutiveActiveSuccess  uint32
	ConsecutivePassiveSuccess uint32

	// Pending names the cluster a switch is proposed to, or nil if no
	// switch is currently proposed.
	Pending *dbclients.Cluster

	// LastSwitch is set by CommitSwitch; nil until the first switch.
	LastSwitch *time.Time
}

// NewState returns the initial state: primary Active, all counters
// zero, no pending switch.
func NewState() State {
	return State{Primary: dbclients.ClusterActive}
}

func satInc(v uint32) uint32 {
	if v == math.MaxUint32 {
		return v
	}
	return v + 1
}

// UpdateWith folds one tick's liveness observation into the state and
// recomputes Pending from scratch -- it is never accumulated across
// ticks, so a single healthy sample clears a prior failing streak's
// intent to switch before readiness is even consulted.
func (s *State) UpdateWith(activeOk, passiveOk bool) {
	s.LastActiveOk = activeOk
	s.LastPassiveOk = passiveOk

	if activeOk {
		s.ConsecutiveActiveSuccess = satInc(s.ConsecutiveActiveSuccess)
		s.ConsecutiveActiveFail = 0
	} else {
		s.ConsecutiveActiveFail = satInc(s.ConsecutiveActiveFail)
		s.ConsecutiveActiveSuccess = 0
	}

	if passiveOk {
		s.ConsecutivePassiveSuccess = satInc(s.ConsecutivePassiveSuccess)
	} else {
		s.ConsecutivePassiveSuccess = 0
	}

	switch s.Primary {
	case dbclients.ClusterActive:
		if !activeOk && s.ConsecutiveActiveFail >= FailThreshold && passiveOk {
			var to = dbclients.ClusterPassive
			s.Pending = &to
		} else {
			s.Pending = nil
		}
	case dbclients.ClusterPassive:
		if activeOk && s.ConsecutiveActiveSuccess >= RecoverThreshold {
			var to = dbclients.ClusterActive
			s.Pending = &to
		} else {
			s.Pending = nil
		}
	}
}

// CommitSwitch moves Primary to to, resets all counters, and stamps
// LastSwitch. Calling it when Pending doesn't already name to is a
// programmer error: the manager is expected to have checked readiness
// first.
func (s *State) CommitSwitch(to dbclients.Cluster) {
	s.mustPending(to)

	s.Primary = to
	var now = time.Now()
	s.LastSwitch = &now
	s.ConsecutiveActiveFail = 0
	s.ConsecutiveActiveSuccess = 0
	s.ConsecutivePassiveSuccess = 0
	s.Pending = nil
}

func (s *State) mustPending(to dbclients.Cluster) {
	if s.Pending == nil || *s.Pending != to {
		log.WithFields(log.Fields{
			"expect":  to,
			"pending": s.Pending,
		}).Panic("commitSwitch called without a matching pending switch")
	}
}
