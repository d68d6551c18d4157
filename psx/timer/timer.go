// Package timer implements the three hardware counter channels with
// selectable clock sources, sync modes, and target/overflow interrupt
// generation.
package timer

import (
	"log/slog"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/irq"
	"github.com/valerio/go-psyx/psx/sched"
)

// Mode register bits.
const (
	modeSyncEnable    = 1 << 0
	modeResetOnTarget = 1 << 3
	modeIRQOnTarget   = 1 << 4
	modeIRQOnMax      = 1 << 5
	modeIRQRepeat     = 1 << 6
	modeIRQToggle     = 1 << 7
)

// Channel is one 16-bit counter.
type Channel struct {
	id      int
	counter uint16
	target  uint16

	syncEnable    bool
	syncMode      uint8
	resetOnTarget bool
	irqOnTarget   bool
	irqOnMax      bool
	irqRepeat     bool
	irqToggle     bool
	clockSource   uint8

	reachedTarget bool
	reachedMax    bool
	irqActive     bool
	irqFired      bool

	lastSync    bool
	syncLatched bool

	divAccum int64 // sub-divider remainder for the /8 clock sources
}

// Counter returns the current counter value.
func (c *Channel) Counter() uint16 {
	return c.counter
}

// syncRisingEdge applies the per-mode reset/latch behavior.
func (c *Channel) syncRisingEdge() {
	if !c.syncEnable {
		return
	}
	switch c.syncMode {
	case 1, 2:
		c.counter = 0
	case 3:
		c.syncLatched = true
	}
}

// shouldCount evaluates the sync gate.
func (c *Channel) shouldCount(sync bool) bool {
	if !c.syncEnable {
		return true
	}
	if c.id == 2 {
		// Timer 2: modes 0 and 3 halt entirely, 1 and 2 free-run.
		return c.syncMode == 1 || c.syncMode == 2
	}
	switch c.syncMode {
	case 0:
		return !sync
	case 1:
		return true
	case 2:
		return sync
	default:
		return c.syncLatched
	}
}

// advance counts the given ticks, returning true when an IRQ should be
// raised.
func (c *Channel) advance(ticks int64, sync bool) bool {
	raised := false
	for ; ticks > 0; ticks-- {
		if !c.shouldCount(sync) {
			continue
		}
		c.counter++
		if c.counter == c.target {
			c.reachedTarget = true
			if c.irqOnTarget && c.fireIRQ() {
				raised = true
			}
			if c.resetOnTarget {
				c.counter = 0
			}
		}
		if c.counter == 0xFFFF {
			c.reachedMax = true
			if c.irqOnMax && c.fireIRQ() {
				raised = true
			}
		}
	}
	return raised
}

// fireIRQ applies the one-shot/repeat and pulse/toggle policies.
func (c *Channel) fireIRQ() bool {
	if c.irqFired && !c.irqRepeat {
		return false
	}
	c.irqFired = true
	if c.irqToggle {
		c.irqActive = !c.irqActive
		return !c.irqActive
	}
	c.irqActive = true
	return true
}

// readMode packs the mode register and clears the sticky flags as a
// side effect.
func (c *Channel) readMode() uint16 {
	var v uint16
	if c.syncEnable {
		v |= modeSyncEnable
	}
	v |= uint16(c.syncMode) << 1
	if c.resetOnTarget {
		v |= modeResetOnTarget
	}
	if c.irqOnTarget {
		v |= modeIRQOnTarget
	}
	if c.irqOnMax {
		v |= modeIRQOnMax
	}
	if c.irqRepeat {
		v |= modeIRQRepeat
	}
	if c.irqToggle {
		v |= modeIRQToggle
	}
	v |= uint16(c.clockSource) << 8
	if !c.irqActive {
		v |= 1 << 10
	}
	if c.reachedTarget {
		v |= 1 << 11
	}
	if c.reachedMax {
		v |= 1 << 12
	}

	c.reachedTarget = false
	c.reachedMax = false
	c.irqActive = false
	return v
}

// writeMode sets the mode fields and resets the counter.
func (c *Channel) writeMode(v uint16) {
	c.syncEnable = v&modeSyncEnable != 0
	c.syncMode = uint8((v >> 1) & 3)
	c.resetOnTarget = v&modeResetOnTarget != 0
	c.irqOnTarget = v&modeIRQOnTarget != 0
	c.irqOnMax = v&modeIRQOnMax != 0
	c.irqRepeat = v&modeIRQRepeat != 0
	c.irqToggle = v&modeIRQToggle != 0
	c.clockSource = uint8((v >> 8) & 3)

	c.counter = 0
	c.irqActive = false
	c.irqFired = false
	c.lastSync = false
	c.syncLatched = false
	c.divAccum = 0
}

// Timers aggregates the three channels and their clock routing.
type Timers struct {
	channels [3]Channel

	vblank bool

	s    *sched.Scheduler
	irqc *irq.Controller

	events [3]sched.Handle
}

func New(s *sched.Scheduler, irqc *irq.Controller) *Timers {
	t := &Timers{s: s, irqc: irqc}
	for i := range t.channels {
		t.channels[i].id = i
	}
	return t
}

// RegisterEvents installs per-channel overflow events used to stop the
// CPU at interrupt boundaries.
func (t *Timers) RegisterEvents(s *sched.Scheduler) {
	names := [3]string{"timer0.overflow", "timer1.overflow", "timer2.overflow"}
	for i, name := range names {
		t.events[i] = s.RegisterEvent(name)
	}
}

// HandleEvent re-arms the channel's overflow event; the counting itself
// happens in Tick, the event only bounds the CPU execution budget.
func (t *Timers) HandleEvent(h sched.Handle) {
	for i := range t.events {
		if t.events[i] == h {
			t.scheduleNext(i)
			return
		}
	}
}

// Channel exposes a channel for tests.
func (t *Timers) Channel(i int) *Channel {
	return &t.channels[i]
}

// Tick advances the system-clocked (and divided) channels by elapsed
// CPU cycles.
func (t *Timers) Tick(cycles int64) {
	// Timer 0: system clock, or the pixel clock approximated as
	// system/8.
	ch := &t.channels[0]
	ticks := cycles
	if ch.clockSource&1 != 0 {
		ch.divAccum += cycles
		ticks = ch.divAccum / 8
		ch.divAccum %= 8
	}
	t.raise(0, ch.advance(ticks, false))

	// Timer 1 counts HBlank pulses when bit 8 selects them; those
	// arrive through HBlankPulse. The sync signal is VBlank either way.
	ch = &t.channels[1]
	if ch.clockSource&1 == 0 {
		t.raise(1, ch.advance(cycles, t.vblank))
	}

	// Timer 2: system clock or system/8 with an 8-cycle accumulator.
	ch = &t.channels[2]
	ticks = cycles
	if ch.clockSource&2 != 0 {
		ch.divAccum += cycles
		ticks = ch.divAccum / 8
		ch.divAccum %= 8
	}
	t.raise(2, ch.advance(ticks, false))
}

// HBlankPulse feeds timer 1's external clock, one tick per scanline.
func (t *Timers) HBlankPulse() {
	ch := &t.channels[1]
	if ch.clockSource&1 != 0 {
		t.raise(1, ch.advance(1, t.vblank))
	}
}

// SetVBlank drives timer 0/1 sync edges from the video blanking state.
func (t *Timers) SetVBlank(active bool) {
	if active && !t.vblank {
		for i := 0; i < 2; i++ {
			ch := &t.channels[i]
			if !ch.lastSync {
				ch.syncRisingEdge()
				ch.lastSync = true
			}
		}
	}
	if !active {
		t.channels[0].lastSync = false
		t.channels[1].lastSync = false
	}
	t.vblank = active
}

func (t *Timers) raise(ch int, fired bool) {
	if fired {
		t.irqc.Request(addr.IntTimer0 + addr.Interrupt(ch))
	}
}

// scheduleNext arms the channel's event at the next IRQ-relevant count
// so the scheduler caps CPU bursts there.
func (t *Timers) scheduleNext(i int) {
	ch := &t.channels[i]
	if !ch.irqOnTarget && !ch.irqOnMax {
		t.s.Deactivate(t.events[i])
		return
	}

	until := int64(0xFFFF - ch.counter + 1)
	if ch.irqOnTarget {
		delta := int64(ch.target) - int64(ch.counter)
		if delta <= 0 {
			delta += 0x10000
		}
		if delta < until {
			until = delta
		}
	}

	divider := int64(1)
	switch {
	case i == 0 && ch.clockSource&1 != 0:
		divider = 8
	case i == 1 && ch.clockSource&1 != 0:
		divider = 2146 // cycles per scanline, HBlank-clocked
	case i == 2 && ch.clockSource&2 != 0:
		divider = 8
	}
	t.s.Schedule(t.events[i], until*divider)
}

// ReadRegister reads a timer register by physical address.
func (t *Timers) ReadRegister(address uint32) uint32 {
	ch, reg := t.decode(address)
	if ch == nil {
		return 0
	}
	switch reg {
	case 0x0:
		return uint32(ch.counter)
	case 0x4:
		return uint32(ch.readMode())
	case 0x8:
		return uint32(ch.target)
	}
	return 0
}

// WriteRegister writes a timer register by physical address.
func (t *Timers) WriteRegister(address uint32, value uint32) {
	ch, reg := t.decode(address)
	if ch == nil {
		return
	}
	switch reg {
	case 0x0:
		ch.counter = uint16(value)
	case 0x4:
		ch.writeMode(uint16(value))
	case 0x8:
		ch.target = uint16(value)
	}
	t.scheduleNext(ch.id)
}

func (t *Timers) decode(address uint32) (*Channel, uint32) {
	offset := address - addr.TimerBase
	idx := offset >> 4
	if idx > 2 {
		slog.Debug("unhandled timer register", "address", address)
		return nil, 0
	}
	return &t.channels[idx], offset & 0xF
}
