package intern

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateInterns(t *testing.T) {
	var m Map[int]
	calls := 0
	create := func() (int, error) {
		calls++
		return 7, nil
	}
	v, created, err := m.GetOrCreate("a", create)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 7, v)

	v, created, err = m.GetOrCreate("a", create)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, m.Len())
}

func TestGetOrCreateError(t *testing.T) {
	var m Map[int]
	_, _, err := m.GetOrCreate("a", func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestGetOrCreateConcurrent(t *testing.T) {
	var m Map[*int]
	var calls atomic.Int32
	var wg sync.WaitGroup
	results := make([]*int, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := m.GetOrCreate("k", func() (*int, error) {
				calls.Add(1)
				x := 1
				return &x, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestDeleteFunc(t *testing.T) {
	var m Map[int]
	for i, k := range []string{"a", "b", "c", "d"} {
		v := i
		_, _, err := m.GetOrCreate(k, func() (int, error) { return v, nil })
		require.NoError(t, err)
	}
	removed := m.DeleteFunc(func(v int) bool { return v%2 == 0 })
	assert.ElementsMatch(t, []int{0, 2}, removed)
	assert.Equal(t, 2, m.Len())

	v, ok := m.Delete("b")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = m.Get("b")
	assert.False(t, ok)
}
