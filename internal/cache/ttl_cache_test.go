package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }

	c.Set("tariff|voyage", 1500, time.Minute)
	c.Set("vat|kdv20", 20, 0)

	v, ok := c.Get("tariff|voyage")
	assert.True(t, ok)
	assert.Equal(t, 1500, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("tariff|voyage")
	assert.False(t, ok)

	v, ok = c.Get("vat|kdv20")
	assert.True(t, ok)
	assert.Equal(t, 20, v)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNoopCache(t *testing.T) {
	var c Cache[string, int] = NoopCache[string, int]{}
	c.Set("k", 1, time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
}
