package generic

import "sync/atomic"

// Atomic is the same as atomic.Value with additional type safety. Load
// returns the zero value until the first Store.
type Atomic[T any] struct {
	value atomic.Value
}

func (v *Atomic[T]) Load() T {
	if val, ok := v.value.Load().(box[T]); ok {
		return val.v
	}

	var zero T

	return zero
}

func (v *Atomic[T]) Store(value T) {
	// Boxing allows storing nil interfaces and values of varying concrete types.
	v.value.Store(box[T]{v: value})
}

type box[T any] struct {
	v T
}
