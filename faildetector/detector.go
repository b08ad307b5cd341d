package faildetector

import (
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/maxpoletaev/krake/membership"
)

const (
	DefaultProbeInterval    = 500 * time.Millisecond
	DefaultProbeTimeout     = DefaultProbeInterval / 2
	DefaultSuspicionTimeout = 4 * DefaultProbeInterval
	DefaultDeadRetention    = 30 * time.Second
)

// PendingProbe is a ping that has been sent and is waiting for an ack.
type PendingProbe struct {
	Target    string
	SeqNumber uint64
	Deadline  time.Time
}

// Detector implements the SWIM probe cycle on top of the membership table.
// It does no I/O: the caller sends pings and feeds acks back along with the
// current time. Not safe for concurrent use.
type Detector struct {
	table            Table
	logger           log.Logger
	probeTimeout     time.Duration
	suspicionTimeout time.Duration
	deadRetention    time.Duration
	pending          map[uint64]PendingProbe
}

func New(table Table, opts ...Option) *Detector {
	d := &Detector{
		table:            table,
		logger:           log.NewNopLogger(),
		probeTimeout:     DefaultProbeTimeout,
		suspicionTimeout: DefaultSuspicionTimeout,
		deadRetention:    DefaultDeadRetention,
		pending:          make(map[uint64]PendingProbe),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// NextProbe picks a random alive member and records a pending probe for it
// under the given sequence number. Returns false if there is nobody to probe.
func (d *Detector) NextProbe(seq uint64, now time.Time) (PendingProbe, bool) {
	target, ok := d.table.RandomProbeTarget()
	if !ok {
		return PendingProbe{}, false
	}

	probe := PendingProbe{
		Target:    target,
		SeqNumber: seq,
		Deadline:  now.Add(d.probeTimeout),
	}

	d.pending[seq] = probe

	return probe, true
}

// HandleAck clears the pending probe with the given sequence number if the ack
// comes from its target, and refreshes the responder. An ack from any other
// member leaves the probe pending. Acks that arrive after the probe deadline
// still count as evidence that the member is alive. Returns whether a pending
// probe was matched and whether the table has changed.
func (d *Detector) HandleAck(seq uint64, responder string, incarnation uint64, now time.Time) (matched, changed bool) {
	if probe, ok := d.pending[seq]; ok {
		if probe.Target == responder {
			delete(d.pending, seq)
			matched = true
		} else {
			level.Warn(d.logger).Log(
				"msg", "ack from unexpected responder",
				"target", probe.Target,
				"responder", responder,
			)
		}
	}

	changed = d.table.Refresh(responder, incarnation, now)

	return matched, changed
}

// Expire advances the member state machine: members that did not answer
// within the probe timeout become suspect, suspects that were not refuted
// within the suspicion timeout become dead, and dead members are evicted
// after the retention period. Returns the members whose status has changed.
func (d *Detector) Expire(now time.Time) []membership.Member {
	var changed []membership.Member

	seqs := maps.Keys(d.pending)
	slices.Sort(seqs)

	for _, seq := range seqs {
		probe := d.pending[seq]
		if now.Before(probe.Deadline) {
			continue
		}

		delete(d.pending, seq)

		if d.table.MarkSuspect(probe.Target, now) {
			level.Info(d.logger).Log("msg", "member is suspected", "member", probe.Target)
			changed = d.appendMember(changed, probe.Target)
		}
	}

	for _, m := range d.table.Snapshot() {
		switch m.Status {
		case membership.StatusSuspect:
			if now.Sub(m.Since) >= d.suspicionTimeout && d.table.MarkDead(m.Addr, now) {
				level.Warn(d.logger).Log("msg", "member is declared dead", "member", m.Addr)
				changed = d.appendMember(changed, m.Addr)
			}
		case membership.StatusDead:
			if now.Sub(m.Since) >= d.deadRetention && d.table.Evict(m.Addr) {
				level.Debug(d.logger).Log("msg", "dead member evicted", "member", m.Addr)
			}
		}
	}

	return changed
}

func (d *Detector) appendMember(members []membership.Member, addr string) []membership.Member {
	if m, ok := d.table.Get(addr); ok {
		members = append(members, m)
	}

	return members
}

// NextDeadline returns the earliest deadline among pending probes.
func (d *Detector) NextDeadline() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)

	for _, probe := range d.pending {
		if !found || probe.Deadline.Before(earliest) {
			earliest = probe.Deadline
			found = true
		}
	}

	return earliest, found
}

// Pending returns the number of probes waiting for an ack.
func (d *Detector) Pending() int {
	return len(d.pending)
}
