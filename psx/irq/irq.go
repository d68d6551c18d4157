// Package irq implements the programmable interrupt controller: an 11-line
// status register set by peripherals and cleared by the CPU, gated by a
// plain read/write mask.
package irq

import (
	"log/slog"

	"github.com/valerio/go-psyx/psx/addr"
)

// Controller holds the I_STAT and I_MASK registers. Peripherals raise
// lines through Request; the CPU acknowledges by writing zeros to I_STAT.
type Controller struct {
	status uint16
	mask   uint16
}

func New() *Controller {
	return &Controller{}
}

// Request raises an interrupt line. Idempotent until acknowledged.
func (c *Controller) Request(line addr.Interrupt) {
	c.status |= 1 << line
}

// Status returns the I_STAT register.
func (c *Controller) Status() uint16 {
	return c.status
}

// WriteStatus acknowledges interrupts. A zero bit in value clears the
// corresponding status bit; a one bit leaves it untouched.
func (c *Controller) WriteStatus(value uint16) {
	c.status &= value
}

// Mask returns the I_MASK register.
func (c *Controller) Mask() uint16 {
	return c.mask
}

// WriteMask sets the I_MASK register.
func (c *Controller) WriteMask(value uint16) {
	if value&^0x07FF != 0 {
		slog.Debug("IRQ mask write with undefined bits", "value", value)
	}
	c.mask = value
}

// Pending reports whether any unmasked interrupt line is raised; this is
// the signal the CPU samples at instruction boundaries.
func (c *Controller) Pending() bool {
	return c.status&c.mask != 0
}

// Reset clears both registers.
func (c *Controller) Reset() {
	c.status = 0
	c.mask = 0
}
