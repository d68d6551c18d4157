package cpu

// cacheLine is one entry of the direct-mapped instruction cache.
type cacheLine struct {
	tag   uint32 // bits [31:12] of the physical word address
	data  uint32
	valid bool
}

const cacheLines = 1024

// instructionCache models the R3000A's 4 KB direct-mapped I-cache, one
// instruction per line. Line index = bits [11:2] of the address.
type instructionCache struct {
	lines [cacheLines]cacheLine
}

func cacheIndex(paddr uint32) uint32 {
	return (paddr >> 2) & (cacheLines - 1)
}

func cacheTag(paddr uint32) uint32 {
	return paddr >> 12
}

// Fetch returns the cached instruction word at paddr, or a miss.
func (c *instructionCache) Fetch(paddr uint32) (uint32, bool) {
	line := &c.lines[cacheIndex(paddr)]
	if line.valid && line.tag == cacheTag(paddr) {
		return line.data, true
	}
	return 0, false
}

// Store installs an instruction word, evicting whatever shared its line.
func (c *instructionCache) Store(paddr, word uint32) {
	line := &c.lines[cacheIndex(paddr)]
	line.tag = cacheTag(paddr)
	line.data = word
	line.valid = true
}

// Invalidate drops the line holding paddr, if it is the one cached.
func (c *instructionCache) Invalidate(paddr uint32) {
	line := &c.lines[cacheIndex(paddr)]
	if line.valid && line.tag == cacheTag(paddr) {
		line.valid = false
	}
}

// InvalidateRange drops every cached word in [start, end).
func (c *instructionCache) InvalidateRange(start, end uint32) {
	start &^= 3
	if end-start >= cacheLines*4 {
		// The range covers every line at least once.
		c.Clear()
		return
	}
	for a := start; a < end; a += 4 {
		c.Invalidate(a)
	}
}

// Prefill installs a word the same way Store does; it exists as a
// separate name because callers use it for write-time opportunistic
// caching rather than fetch misses.
func (c *instructionCache) Prefill(paddr, word uint32) {
	c.Store(paddr, word)
}

// Clear invalidates every line.
func (c *instructionCache) Clear() {
	for i := range c.lines {
		c.lines[i].valid = false
	}
}
