package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/krake/membership"
)

func member(addr string, status membership.Status, inc uint64) membership.Member {
	return membership.Member{Addr: addr, Status: status, Incarnation: inc}
}

func addrs(members []membership.Member) []string {
	result := make([]string, len(members))
	for i, m := range members {
		result[i] = m.Addr
	}

	return result
}

func TestQueue(t *testing.T) {
	type test struct {
		prepareFunc func(q *Queue)
		assertFunc  func(t *testing.T, q *Queue)
	}

	tests := map[string]test{
		"SelectFromEmptyQueue": {
			prepareFunc: func(q *Queue) {},
			assertFunc: func(t *testing.T, q *Queue) {
				assert.Nil(t, q.Select(3))
				assert.Equal(t, 0, q.Len())
			},
		},
		"SelectZero": {
			prepareFunc: func(q *Queue) {
				q.Enqueue(member("a:1", membership.StatusAlive, 1))
			},
			assertFunc: func(t *testing.T, q *Queue) {
				assert.Nil(t, q.Select(0))
				assert.Equal(t, 1, q.Len())
			},
		},
		"MostRecentFirst": {
			prepareFunc: func(q *Queue) {
				q.Enqueue(member("a:1", membership.StatusAlive, 1))
				q.Enqueue(member("b:1", membership.StatusAlive, 1))
				q.Enqueue(member("c:1", membership.StatusAlive, 1))
			},
			assertFunc: func(t *testing.T, q *Queue) {
				assert.Equal(t, []string{"c:1", "b:1"}, addrs(q.Select(2)))
			},
		},
		"FewestTransmitsFirst": {
			prepareFunc: func(q *Queue) {
				q.Enqueue(member("a:1", membership.StatusAlive, 1))
				q.Enqueue(member("b:1", membership.StatusAlive, 1))
				q.Select(2)
				q.Enqueue(member("c:1", membership.StatusAlive, 1))
			},
			assertFunc: func(t *testing.T, q *Queue) {
				assert.Equal(t, []string{"c:1", "b:1", "a:1"}, addrs(q.Select(3)))
				assert.Equal(t, []string{"c:1", "b:1", "a:1"}, addrs(q.Select(3)))
			},
		},
		"NewerUpdateReplacesQueued": {
			prepareFunc: func(q *Queue) {
				q.Enqueue(member("a:1", membership.StatusAlive, 1))
				q.Select(1)
				q.Enqueue(member("a:1", membership.StatusSuspect, 1))
			},
			assertFunc: func(t *testing.T, q *Queue) {
				require.Equal(t, 1, q.Len())

				selected := q.Select(5)
				require.Len(t, selected, 1)
				assert.Equal(t, membership.StatusSuspect, selected[0].Status)
			},
		},
		"DroppedAfterRetransmitLimit": {
			prepareFunc: func(q *Queue) {
				q.Enqueue(member("a:1", membership.StatusAlive, 1))
			},
			assertFunc: func(t *testing.T, q *Queue) {
				sent := 0
				for i := 0; i < 10; i++ {
					sent += len(q.Select(4))
				}

				assert.Equal(t, 3, sent)
				assert.Equal(t, 0, q.Len())
			},
		},
		"ReplacementResetsTransmitCount": {
			prepareFunc: func(q *Queue) {
				q.Enqueue(member("a:1", membership.StatusAlive, 1))
				q.Select(1)
				q.Select(1)
				q.Enqueue(member("a:1", membership.StatusAlive, 2))
			},
			assertFunc: func(t *testing.T, q *Queue) {
				sent := 0
				for i := 0; i < 10; i++ {
					sent += len(q.Select(1))
				}

				assert.Equal(t, 3, sent)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			q := NewQueue(3)
			tt.prepareFunc(q)
			tt.assertFunc(t, q)
		})
	}
}

func TestQueue_SelectReturnsCopies(t *testing.T) {
	q := NewQueue(DefaultRetransmitLimit)
	q.Enqueue(membership.Member{Addr: "a:1", Status: membership.StatusAlive, Labels: map[string]string{"k": "v"}})

	first := q.Select(1)
	first[0].Labels["k"] = "changed"

	second := q.Select(1)
	assert.Equal(t, "v", second[0].Labels["k"])
}

func TestNewQueue_DefaultLimit(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(member("a:1", membership.StatusAlive, 1))

	sent := 0
	for i := 0; i < 20; i++ {
		sent += len(q.Select(1))
	}

	assert.Equal(t, DefaultRetransmitLimit, sent)
}
