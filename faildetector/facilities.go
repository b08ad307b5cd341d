package faildetector

import (
	"time"

	"github.com/maxpoletaev/krake/membership"
)

// Table is the part of the membership table the detector operates on.
type Table interface {
	RandomProbeTarget() (string, bool)
	Get(addr string) (membership.Member, bool)
	Snapshot() []membership.Member
	Refresh(addr string, incarnation uint64, now time.Time) bool
	MarkSuspect(addr string, now time.Time) bool
	MarkDead(addr string, now time.Time) bool
	Evict(addr string) bool
}

var _ Table = (*membership.Table)(nil)
