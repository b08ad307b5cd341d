package heap

// Heap is a generic binary heap ordered by the less function. The element for
// which less reports true against all others is on top. Not safe to use
// concurrently.
type Heap[T any] struct {
	less  func(a, b T) bool
	items []T
}

// New creates an empty heap with the given ordering.
func New[T any](less func(a, b T) bool) *Heap[T] {
	return &Heap[T]{less: less}
}

// Len returns current number of elements in the heap.
func (h *Heap[T]) Len() int {
	return len(h.items)
}

// Push adds new element to the heap in O(log n) time.
func (h *Heap[T]) Push(val T) {
	h.items = append(h.items, val)
	h.siftUp(len(h.items) - 1)
}

// Pop removes and returns the top element. Panics if the heap is empty.
func (h *Heap[T]) Pop() T {
	last := len(h.items) - 1
	if last < 0 {
		panic("no elements in the heap")
	}

	top := h.items[0]
	h.items[0] = h.items[last]

	var zero T
	h.items[last] = zero // let GC collect the popped element
	h.items = h.items[:last]

	if last > 0 {
		h.siftDown(0)
	}

	return top
}

func (h *Heap[T]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.items[i], h.items[parent]) {
			return
		}

		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *Heap[T]) siftDown(i int) {
	n := len(h.items)

	for {
		smallest := i

		if l := 2*i + 1; l < n && h.less(h.items[l], h.items[smallest]) {
			smallest = l
		}

		if r := 2*i + 2; r < n && h.less(h.items[r], h.items[smallest]) {
			smallest = r
		}

		if smallest == i {
			return
		}

		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
