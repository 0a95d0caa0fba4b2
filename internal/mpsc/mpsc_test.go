package mpsc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	q := New[int]()
	_, ok := q.Pop()
	assert.False(t, ok)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	assert.Equal(t, 5, q.Len())
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestDrainLimit(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	var got []int
	assert.Equal(t, 4, q.Drain(4, func(v int) { got = append(got, v) }))
	assert.Equal(t, []int{0, 1, 2, 3}, got)
	assert.Equal(t, 6, q.Drain(0, func(int) {}))
}

func TestConcurrentProducers(t *testing.T) {
	q := New[int]()
	const producers, per = 8, 1000
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				q.Push(p*per + i)
			}
		}(p)
	}
	wg.Wait()
	seen := make(map[int]bool, producers*per)
	q.Drain(0, func(v int) { seen[v] = true })
	assert.Len(t, seen, producers*per)
}
