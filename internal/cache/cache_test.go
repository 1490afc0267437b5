package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache_SetGetDelete(t *testing.T) {
	c := NewTTLCache[int64, string](2, time.Minute)

	c.Set(1, "a")
	c.Set(2, "b")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	// 2 is least recently used and gets evicted
	c.Set(3, "c")
	_, ok = c.Get(2)
	assert.False(t, ok)

	c.Delete(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_Expires(t *testing.T) {
	c := NewTTLCache[string, int](4, 20*time.Millisecond)
	c.Set("k", 1)
	assert.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}
