package membership

import (
	"encoding/binary"
	"time"

	"github.com/twmb/murmur3"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Table is the local view of the cluster. It is not safe for concurrent use:
// the owner serializes all access to it.
type Table struct {
	self    string
	members map[string]*Member
	rnd     Rand
}

// NewTable creates a table that contains only the local member, which is
// always alive and starts with incarnation 1 unless a higher one is given.
func NewTable(self Member, rnd Rand) *Table {
	self = self.Clone()
	self.Status = StatusAlive

	if self.Incarnation == 0 {
		self.Incarnation = 1
	}

	return &Table{
		self:    self.Addr,
		members: map[string]*Member{self.Addr: &self},
		rnd:     rnd,
	}
}

// Upsert merges a second-hand claim about a member into the table. A strictly
// greater incarnation always wins. At equal incarnations the worse status
// wins, so the status may only move forward from alive to suspect to dead.
// Claims about the local member are never applied, but may trigger a
// refutation. Returns true if the table has changed.
func (t *Table) Upsert(m Member, now time.Time) bool {
	if m.Addr == t.self {
		return t.refute(&m)
	}

	curr, ok := t.members[m.Addr]
	if !ok {
		// Dead members we have never heard of are most likely already evicted
		// tombstones. Re-inserting them would keep them circulating forever.
		if m.Status == StatusDead {
			return false
		}

		m = m.Clone()
		m.Since = now
		t.members[m.Addr] = &m

		return true
	}

	switch {
	case m.Incarnation > curr.Incarnation:
	case m.Incarnation == curr.Incarnation && m.Status.WorseThan(curr.Status):
	default:
		return false
	}

	t.replace(curr, &m, now)

	return true
}

// Refresh applies first-hand evidence that the member is alive, such as its
// own ack or join announcement. An equal or greater incarnation clears the
// suspect status, while a dead member only comes back with a strictly greater
// incarnation. Unknown members are added as alive.
func (t *Table) Refresh(addr string, incarnation uint64, now time.Time) bool {
	if addr == t.self {
		return false
	}

	curr, ok := t.members[addr]
	if !ok {
		t.members[addr] = &Member{
			Addr:        addr,
			Status:      StatusAlive,
			Incarnation: incarnation,
			Since:       now,
		}

		return true
	}

	switch {
	case incarnation > curr.Incarnation:
	case incarnation == curr.Incarnation && curr.Status == StatusSuspect:
	default:
		return false
	}

	t.replace(curr, &Member{Addr: addr, Status: StatusAlive, Incarnation: incarnation}, now)

	return true
}

func (t *Table) replace(curr, next *Member, now time.Time) {
	if next.Status != curr.Status || next.Incarnation != curr.Incarnation {
		curr.Since = now
	}

	// Labels are set once at join time, updates without labels keep them.
	if next.Labels != nil {
		curr.Labels = maps.Clone(next.Labels)
	}

	curr.Status = next.Status
	curr.Incarnation = next.Incarnation
}

// refute handles a claim about the local member. If someone believes we are
// suspect or dead, or has seen a newer incarnation of us, the local
// incarnation is bumped past the claim so that the next alive announcement
// overrides it.
func (t *Table) refute(claim *Member) bool {
	self := t.members[t.self]

	if claim.Incarnation < self.Incarnation {
		return false
	}

	if claim.Incarnation == self.Incarnation && claim.Status == StatusAlive {
		return false
	}

	self.Incarnation = claim.Incarnation + 1

	return true
}

// MarkSuspect moves an alive member to the suspect state.
func (t *Table) MarkSuspect(addr string, now time.Time) bool {
	m, ok := t.members[addr]
	if !ok || addr == t.self || m.Status != StatusAlive {
		return false
	}

	m.Status = StatusSuspect
	m.Since = now

	return true
}

// MarkDead declares the member failed. The record stays in the table as a
// tombstone until evicted.
func (t *Table) MarkDead(addr string, now time.Time) bool {
	m, ok := t.members[addr]
	if !ok || addr == t.self || m.Status == StatusDead {
		return false
	}

	m.Status = StatusDead
	m.Since = now

	return true
}

// Evict removes the member from the table. The local member cannot be evicted.
func (t *Table) Evict(addr string) bool {
	if _, ok := t.members[addr]; !ok || addr == t.self {
		return false
	}

	delete(t.members, addr)

	return true
}

// RandomProbeTarget returns the address of a random alive member other than
// the local one. Returns false if there is none.
func (t *Table) RandomProbeTarget() (string, bool) {
	candidates := make([]string, 0, len(t.members))

	for addr, m := range t.members {
		if addr != t.self && m.IsAlive() {
			candidates = append(candidates, addr)
		}
	}

	if len(candidates) == 0 {
		return "", false
	}

	// Map iteration order is random, sort to make the choice depend only on rnd.
	slices.Sort(candidates)

	return candidates[t.rnd.Intn(len(candidates))], true
}

// Get returns a copy of the member with the given address.
func (t *Table) Get(addr string) (Member, bool) {
	m, ok := t.members[addr]
	if !ok {
		return Member{}, false
	}

	return m.Clone(), true
}

// Self returns a copy of the local member.
func (t *Table) Self() Member {
	return t.members[t.self].Clone()
}

// Len returns the number of members including the local one and tombstones.
func (t *Table) Len() int {
	return len(t.members)
}

// Snapshot returns copies of all members sorted by address.
func (t *Table) Snapshot() []Member {
	members := make([]Member, 0, len(t.members))
	for _, m := range t.members {
		members = append(members, m.Clone())
	}

	slices.SortFunc(members, func(a, b Member) bool {
		return a.Addr < b.Addr
	})

	return members
}

// Checksum returns a digest of the addresses, statuses and incarnations of all
// members. Two tables with the same view have the same checksum.
func (t *Table) Checksum() uint64 {
	h := murmur3.New64()
	buf := make([]byte, 8)

	for _, m := range t.Snapshot() {
		h.Write([]byte(m.Addr))
		h.Write([]byte{0, byte(m.Status)})
		binary.BigEndian.PutUint64(buf, m.Incarnation)
		h.Write(buf)
	}

	return h.Sum64()
}
