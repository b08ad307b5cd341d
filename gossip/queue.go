package gossip

import (
	"github.com/maxpoletaev/krake/internal/heap"
	"github.com/maxpoletaev/krake/membership"
)

const (
	DefaultMaxPiggyback    = 6
	DefaultRetransmitLimit = 6
)

type update struct {
	member    membership.Member
	transmits int
	seq       uint64
}

// Queue holds membership updates waiting to be piggybacked on outgoing
// messages. Updates that were sent the fewest times go first, the most
// recent ones first among equals. Each update is sent at most retransmitLimit
// times. Not safe to use concurrently.
type Queue struct {
	limit   int
	pq      *heap.Heap[*update]
	queued  map[string]*update
	lastSeq uint64
}

func NewQueue(retransmitLimit int) *Queue {
	if retransmitLimit <= 0 {
		retransmitLimit = DefaultRetransmitLimit
	}

	return &Queue{
		limit:  retransmitLimit,
		queued: make(map[string]*update),
		pq: heap.New(func(a, b *update) bool {
			if a.transmits != b.transmits {
				return a.transmits < b.transmits
			}
			return a.seq > b.seq
		}),
	}
}

// Len returns the number of updates waiting to be sent.
func (q *Queue) Len() int {
	return len(q.queued)
}

// Enqueue schedules the member update for dissemination. A queued update about
// the same member is replaced and its transmit count starts over.
func (q *Queue) Enqueue(m membership.Member) {
	q.lastSeq++

	u := &update{
		member: m.Clone(),
		seq:    q.lastSeq,
	}

	// The replaced entry stays in the heap and is skipped once popped.
	q.queued[m.Addr] = u

	q.pq.Push(u)
}

// Select returns up to k updates to attach to an outgoing message.
func (q *Queue) Select(k int) []membership.Member {
	if k <= 0 {
		return nil
	}

	picked := make([]*update, 0, k)

	for len(picked) < k && q.pq.Len() > 0 {
		u := q.pq.Pop()

		if q.queued[u.member.Addr] != u {
			continue // stale
		}

		picked = append(picked, u)
	}

	if len(picked) == 0 {
		return nil
	}

	members := make([]membership.Member, 0, len(picked))

	for _, u := range picked {
		members = append(members, u.member.Clone())
		u.transmits++

		if u.transmits >= q.limit {
			delete(q.queued, u.member.Addr)
			continue
		}

		q.pq.Push(u)
	}

	return members
}
