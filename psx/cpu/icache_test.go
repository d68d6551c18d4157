package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheStoreFetch(t *testing.T) {
	var c instructionCache
	c.Store(0x00010000, 0x3C080000)

	v, hit := c.Fetch(0x00010000)
	assert.True(t, hit)
	assert.Equal(t, uint32(0x3C080000), v)
}

func TestCacheMiss(t *testing.T) {
	var c instructionCache
	_, hit := c.Fetch(0x00010000)
	assert.False(t, hit)
}

func TestCacheInvalidate(t *testing.T) {
	var c instructionCache
	c.Store(0x00010000, 0x12345678)
	c.Invalidate(0x00010000)
	_, hit := c.Fetch(0x00010000)
	assert.False(t, hit)
}

func TestCacheInvalidateWrongTagKeepsLine(t *testing.T) {
	var c instructionCache
	c.Store(0x00010000, 0x12345678)
	// Same line index, different tag: must not evict.
	c.Invalidate(0x00011000)
	_, hit := c.Fetch(0x00010000)
	assert.True(t, hit)
}

func TestCacheDirectMappedEviction(t *testing.T) {
	var c instructionCache
	c.Store(0x00010000, 0xAAAAAAAA)
	c.Store(0x00011000, 0xBBBBBBBB) // same line, different tag

	_, hit := c.Fetch(0x00010000)
	assert.False(t, hit, "evicted by the conflicting store")
	v, hit := c.Fetch(0x00011000)
	assert.True(t, hit)
	assert.Equal(t, uint32(0xBBBBBBBB), v)
}

func TestCacheInvalidateRange(t *testing.T) {
	var c instructionCache
	c.Store(0x1000, 0x1)
	c.Store(0x1004, 0x2)
	c.Store(0x1008, 0x3)

	c.InvalidateRange(0x1000, 0x1008)

	_, hit := c.Fetch(0x1000)
	assert.False(t, hit)
	_, hit = c.Fetch(0x1004)
	assert.False(t, hit)
	_, hit = c.Fetch(0x1008)
	assert.True(t, hit, "end of range is exclusive")
}

func TestCacheWideRangeClearsAll(t *testing.T) {
	var c instructionCache
	c.Store(0x1000, 0x1)
	c.InvalidateRange(0, cacheLines*8)
	_, hit := c.Fetch(0x1000)
	assert.False(t, hit)
}

func TestCachePrefill(t *testing.T) {
	var c instructionCache
	c.Prefill(0x500, 0x3C080000)
	v, hit := c.Fetch(0x500)
	assert.True(t, hit)
	assert.Equal(t, uint32(0x3C080000), v)
}
