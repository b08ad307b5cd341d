package generic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomic(t *testing.T) {
	var v Atomic[[]string]
	assert.Nil(t, v.Load())

	v.Store([]string{"a"})
	assert.Equal(t, []string{"a"}, v.Load())

	v.Store(nil)
	assert.Nil(t, v.Load())
}

func TestAtomic_Concurrent(t *testing.T) {
	var (
		v  Atomic[int]
		wg sync.WaitGroup
	)

	for i := 1; i <= 10; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			v.Store(i)
			_ = v.Load()
		}(i)
	}

	wg.Wait()

	assert.NotZero(t, v.Load())
}

func TestSyncMap(t *testing.T) {
	var m SyncMap[string, int]

	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)

	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Store("a", 2)

	v, ok = m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
