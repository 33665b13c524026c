package concurrent

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapBasics(t *testing.T) {
	m := NewMap[int]()
	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, m.Len())

	old, ok := m.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, 1, old)
	_, ok = m.Get("a")
	assert.False(t, ok)

	seen := 0
	m.Range(func(string, int) bool { seen++; return true })
	assert.Equal(t, 1, seen)
}

func TestGetOrCreateBuildsOnce(t *testing.T) {
	m := NewMap[string]()
	var calls atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			v, err := m.GetOrCreate("ELASTIC", func() (string, error) {
				calls.Add(1)
				return "client", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "client", v)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrCreateDoesNotStoreFailures(t *testing.T) {
	m := NewMap[string]()
	_, err := m.GetOrCreate("PVE", func() (string, error) { return "", errors.New("dial") })
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())

	v, err := m.GetOrCreate("PVE", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRangeStops(t *testing.T) {
	m := NewMap[int]()
	for i := range 100 {
		m.Set(fmt.Sprint(i), i)
	}
	seen := 0
	m.Range(func(string, int) bool { seen++; return seen < 3 })
	assert.Equal(t, 3, seen)
}
