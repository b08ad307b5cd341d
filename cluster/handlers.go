package cluster

import (
	"time"

	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/krake/membership"
	"github.com/maxpoletaev/krake/message"
	"github.com/maxpoletaev/krake/transport"
)

// handleMessage applies the piggybacked updates first, then dispatches the
// message by payload type.
func (a *Agent) handleMessage(msg *message.Message, from string, now time.Time) {
	a.metrics.MessagesReceived.WithLabelValues(msg.Payload.Kind()).Inc()

	for i := range msg.Updates {
		m := membership.FromWireMember(&msg.Updates[i])
		prev, known := a.table.Get(m.Addr)

		if a.table.Upsert(m, now) {
			a.memberChanged(m.Addr, prev, known)
		}
	}

	switch p := msg.Payload.(type) {
	case *message.Ping:
		a.handlePing(msg.SeqNumber, from)
	case *message.Ack:
		a.handleAck(msg.SeqNumber, p, now)
	case *message.Join:
		a.handleJoin(msg.SeqNumber, p, from, now)
	}

	a.publish()
}

// handlePing replies to the sender with the current incarnation of the local
// member. The ping itself carries no incarnation, so the sender is not added
// to the table.
func (a *Agent) handlePing(seq uint64, from string) {
	self := a.table.Self()

	a.send(from, &message.Message{
		SeqNumber: seq,
		Payload: &message.Ack{
			Responder:   a.addr,
			Incarnation: self.Incarnation,
		},
	})
}

func (a *Agent) handleAck(seq uint64, ack *message.Ack, now time.Time) {
	prev, known := a.table.Get(ack.Responder)

	matched, changed := a.detector.HandleAck(seq, ack.Responder, ack.Incarnation, now)
	if matched {
		a.metrics.Probes.WithLabelValues("ack").Inc()
	}

	if changed {
		a.memberChanged(ack.Responder, prev, known)
	}
}

// handleJoin records the announced member. Unless the join is a reply to our
// own join request, it is answered with a join carrying the local member and
// a part of the table.
func (a *Agent) handleJoin(seq uint64, join *message.Join, from string, now time.Time) {
	m := membership.FromWireMember(&join.Member)
	prev, known := a.table.Get(m.Addr)

	changed := a.table.Upsert(m, now)
	if m.Status == membership.StatusAlive {
		changed = a.table.Refresh(m.Addr, m.Incarnation, now) || changed
	}

	if changed {
		a.memberChanged(m.Addr, prev, known)
	}

	if seed, ok := a.joins[seq]; ok && seed == from {
		if !a.joined {
			level.Info(a.logger).Log("msg", "joined cluster", "seed", from, "members", a.table.Len())
		}

		a.joined = true

		return
	}

	self := a.table.Self()
	snapshot := a.sampleMembers(a.conf.MaxJoinSnapshot)

	a.send(from, &message.Message{
		SeqNumber: seq,
		Payload:   &message.Join{Member: membership.ToWireMember(&self)},
		Updates:   membership.ToWireMembers(snapshot),
	})
}

// memberChanged queues the current record of the member for dissemination.
func (a *Agent) memberChanged(addr string, prev membership.Member, known bool) {
	curr, ok := a.table.Get(addr)
	if !ok {
		return
	}

	a.queue.Enqueue(curr)

	if addr == a.addr {
		level.Info(a.logger).Log("msg", "refuting claim about self", "incarnation", curr.Incarnation)
		return
	}

	if !known || prev.Status != curr.Status {
		a.metrics.Transitions.WithLabelValues(curr.Status.String()).Inc()

		level.Info(a.logger).Log(
			"msg", "member status changed",
			"member", addr,
			"status", curr.Status.String(),
			"incarnation", curr.Incarnation,
		)
	}
}

// sampleMembers returns up to n random members other than the local one.
func (a *Agent) sampleMembers(n int) []membership.Member {
	snapshot := a.table.Snapshot()
	members := snapshot[:0]

	for _, m := range snapshot {
		if m.Addr != a.addr {
			members = append(members, m)
		}
	}

	if len(members) <= n {
		return members
	}

	for i := 0; i < n; i++ {
		j := i + a.rnd.Intn(len(members)-i)
		members[i], members[j] = members[j], members[i]
	}

	return members[:n]
}

func (a *Agent) tick(now time.Time) {
	a.expire(now)
	a.retryJoin(now)

	seq := a.nextSeqNum()

	if probe, ok := a.detector.NextProbe(seq, now); ok {
		a.metrics.Probes.WithLabelValues("sent").Inc()

		a.send(probe.Target, &message.Message{
			SeqNumber: seq,
			Payload:   &message.Ping{Origin: a.addr},
		})
	}

	a.publish()
}

func (a *Agent) expire(now time.Time) {
	for _, m := range a.detector.Expire(now) {
		a.queue.Enqueue(m)
		a.metrics.Transitions.WithLabelValues(m.Status.String()).Inc()
	}
}

// retryJoin sends join requests to all seeds until one of them answers. The
// interval between attempts doubles up to JoinRetryMax.
func (a *Agent) retryJoin(now time.Time) {
	if a.joined || len(a.seeds) == 0 || now.Before(a.nextJoin) {
		return
	}

	self := a.table.Self()

	for _, seed := range a.seeds {
		seq := a.nextSeqNum()
		a.trackJoin(seq, seed)

		level.Debug(a.logger).Log("msg", "sending join request", "seed", seed)

		a.send(seed, &message.Message{
			SeqNumber: seq,
			Payload:   &message.Join{Member: membership.ToWireMember(&self)},
		})
	}

	if a.joinBackoff == 0 {
		a.joinBackoff = a.conf.JoinRetryInterval
	} else {
		a.joinBackoff *= 2
		if a.joinBackoff > a.conf.JoinRetryMax {
			a.joinBackoff = a.conf.JoinRetryMax
		}
	}

	a.nextJoin = now.Add(a.joinBackoff)
}

// trackJoin remembers the sequence number of a join request, so that the reply
// is not answered again. Replies may arrive after the agent has joined, so the
// most recent requests are kept regardless.
func (a *Agent) trackJoin(seq uint64, seed string) {
	a.joins[seq] = seed
	a.joinOrder = append(a.joinOrder, seq)

	if len(a.joinOrder) > maxTrackedJoins {
		delete(a.joins, a.joinOrder[0])
		a.joinOrder = a.joinOrder[1:]
	}
}

// send encodes and sends the message. Unless the message already carries
// updates, the queued ones are piggybacked. Updates are dropped if the message
// would not fit into a single datagram. Send errors are logged and ignored.
func (a *Agent) send(to string, msg *message.Message) {
	if msg.Updates == nil {
		msg.Updates = membership.ToWireMembers(a.queue.Select(a.conf.MaxPiggyback))
	}

	data := message.Encode(msg)

	for len(data) > transport.MaxPacketSize && len(msg.Updates) > 0 {
		msg.Updates = msg.Updates[:len(msg.Updates)/2]
		data = message.Encode(msg)
	}

	kind := msg.Payload.Kind()

	if err := a.transport.WriteTo(data, to); err != nil {
		a.metrics.SendErrors.Inc()
		level.Warn(a.logger).Log("msg", "failed to send message", "to", to, "type", kind, "err", err)

		return
	}

	a.metrics.MessagesSent.WithLabelValues(kind).Inc()
}
