package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/go-psyx/psx/addr"
)

func TestWriteZeroToClear(t *testing.T) {
	c := New()
	c.Request(addr.IntVBlank)
	c.Request(addr.IntTimer0)
	assert.Equal(t, uint16(0x0011), c.Status())

	// Bits 0 and 4 written as zero clear; the set ones elsewhere are no-ops.
	c.WriteStatus(0xFFEE)
	assert.Equal(t, uint16(0x0000), c.Status())
}

func TestWriteOneLeavesBitUntouched(t *testing.T) {
	c := New()
	c.Request(addr.IntCDROM)
	c.WriteStatus(0xFFFF)
	assert.Equal(t, uint16(1<<addr.IntCDROM), c.Status())
}

func TestPendingRequiresMask(t *testing.T) {
	c := New()
	c.Request(addr.IntDMA)
	assert.False(t, c.Pending())

	c.WriteMask(1 << addr.IntDMA)
	assert.True(t, c.Pending())

	c.WriteStatus(^uint16(1 << addr.IntDMA))
	assert.False(t, c.Pending())
}

func TestStatusClearAgainstInitial(t *testing.T) {
	c := New()
	for _, line := range []addr.Interrupt{addr.IntGPU, addr.IntSPU, addr.IntSIO} {
		c.Request(line)
	}
	initial := c.Status()
	value := uint16(0x0208)
	c.WriteStatus(value)
	assert.Equal(t, initial&value, c.Status())
}
