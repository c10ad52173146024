package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := New[int]()

	_, ok := r.Get("a")
	assert.False(t, ok)

	r.Add("b", 2)
	r.Add("a", 1)
	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, r.Names())

	r.Del("a")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, r.Names())
}

func TestRegistryGetOrAdd(t *testing.T) {
	r := New[string]()
	var computed atomic.Int32

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _ := r.GetOrAdd("model", func() string {
				computed.Add(1)
				return "value"
			})
			assert.Equal(t, "value", v)
		}()
	}
	wg.Wait()

	v, loaded := r.GetOrAdd("model", func() string { return "other" })
	assert.True(t, loaded)
	assert.Equal(t, "value", v)
	assert.GreaterOrEqual(t, computed.Load(), int32(1))
}
