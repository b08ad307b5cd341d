package membership

import (
	"time"

	"golang.org/x/exp/maps"
)

type Status uint8

const (
	// StatusAlive is the status of a member that answers probes.
	StatusAlive Status = iota + 1

	// StatusSuspect is the status of a member that missed a probe. It is
	// declared dead unless it proves otherwise within the suspicion window.
	StatusSuspect

	// StatusDead is the status of a member that has been declared failed.
	// The record is kept as a tombstone for a while, then evicted.
	StatusDead
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusAlive:
		return "alive"
	case StatusSuspect:
		return "suspect"
	case StatusDead:
		return "dead"
	default:
		return ""
	}
}

// WorseThan returns true if the status is worse than the other status.
func (s Status) WorseThan(other Status) bool {
	return s > other
}

// Member represents a single cluster member as seen by the local agent.
type Member struct {
	Addr        string
	Status      Status
	Incarnation uint64
	Labels      map[string]string

	// Since is the local time the current status was entered. It is never
	// sent over the wire.
	Since time.Time
}

// IsAlive returns true if the member is considered alive.
func (m *Member) IsAlive() bool {
	return m.Status == StatusAlive
}

// Clone returns a copy of the member that does not share the labels map.
func (m Member) Clone() Member {
	if m.Labels != nil {
		m.Labels = maps.Clone(m.Labels)
	}

	return m
}

// Rand is the source of randomness used for probe target selection.
// *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}
