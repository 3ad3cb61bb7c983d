package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := New[int]()

	assert.True(t, r.Add("a", 1))
	assert.False(t, r.Add("a", 2), "a taken name is not replaced")

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, r.Add("b", 3))

	assert.Equal(t, 2, r.Len())

	seen := map[string]int{}
	r.ForEach(func(name string, value int) bool {
		seen[name] = value
		return true
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 3}, seen)

	r.Del("a")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentAddHasOneWinner(t *testing.T) {
	for round := 0; round < 500; round++ {
		r := New[int]()

		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			start   = make(chan struct{})
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if r.Add("same", i) {
					winners.Add(1)
				}
				r.Add(fmt.Sprintf("k%d", i), i)
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), winners.Load(), "round %d", round)
		require.Equal(t, 17, r.Len(), "round %d", round)
	}
}
