package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/irq"
	"github.com/valerio/go-psyx/psx/sched"
)

const (
	timer0Counter = 0x1F801100
	timer0Mode    = 0x1F801104
	timer0Target  = 0x1F801108
	timer1Mode    = 0x1F801114
	timer2Counter = 0x1F801120
	timer2Mode    = 0x1F801124
	timer2Target  = 0x1F801128
)

func newTestTimers() (*Timers, *irq.Controller) {
	s := sched.New()
	ic := irq.New()
	t := New(s, ic)
	t.RegisterEvents(s)
	return t, ic
}

func TestCounterCountsSystemClock(t *testing.T) {
	tm, _ := newTestTimers()
	tm.Tick(100)
	assert.Equal(t, uint16(100), tm.Channel(0).Counter())
}

func TestTargetIRQAndReset(t *testing.T) {
	tm, ic := newTestTimers()
	tm.WriteRegister(timer0Target, 10)
	// IRQ on target, reset on target, repeat.
	tm.WriteRegister(timer0Mode, modeIRQOnTarget|modeResetOnTarget|modeIRQRepeat)

	tm.Tick(10)
	assert.Equal(t, uint16(0), tm.Channel(0).Counter(), "reset on target")
	assert.NotZero(t, ic.Status()&(1<<addr.IntTimer0))

	// Repeat mode fires again.
	ic.WriteStatus(0)
	tm.Tick(10)
	assert.NotZero(t, ic.Status()&(1<<addr.IntTimer0))
}

func TestOneShotIRQDoesNotRepeat(t *testing.T) {
	tm, ic := newTestTimers()
	tm.WriteRegister(timer0Target, 5)
	tm.WriteRegister(timer0Mode, modeIRQOnTarget|modeResetOnTarget)

	tm.Tick(5)
	assert.NotZero(t, ic.Status()&(1<<addr.IntTimer0))

	ic.WriteStatus(0)
	tm.Tick(5)
	assert.Zero(t, ic.Status()&(1<<addr.IntTimer0), "one-shot must not re-fire")
}

func TestTargetZeroDoesNotFireOnFirstTick(t *testing.T) {
	tm, ic := newTestTimers()
	tm.WriteRegister(timer0Target, 0)
	tm.WriteRegister(timer0Mode, modeIRQOnTarget)

	tm.Tick(1)
	assert.Zero(t, ic.Status()&(1<<addr.IntTimer0), "counter must wrap before matching target 0")
}

func TestOverflowFlagAndIRQ(t *testing.T) {
	tm, ic := newTestTimers()
	tm.WriteRegister(timer2Mode, modeIRQOnMax)
	tm.WriteRegister(timer2Counter, 0xFFF0)

	tm.Tick(0x0F)
	assert.NotZero(t, ic.Status()&(1<<addr.IntTimer2))

	mode := tm.ReadRegister(timer2Mode)
	assert.NotZero(t, mode&(1<<12), "overflow-reached flag")
}

func TestModeReadClearsFlags(t *testing.T) {
	tm, _ := newTestTimers()
	tm.WriteRegister(timer0Target, 4)
	tm.WriteRegister(timer0Mode, modeIRQOnTarget)
	tm.Tick(4)

	mode := tm.ReadRegister(timer0Mode)
	assert.NotZero(t, mode&(1<<11), "target-reached set on first read")
	mode = tm.ReadRegister(timer0Mode)
	assert.Zero(t, mode&(1<<11), "flag cleared by the read")
}

func TestTimer2SystemDiv8Accumulator(t *testing.T) {
	tm, _ := newTestTimers()
	tm.WriteRegister(timer2Mode, 2<<8) // clock source: system/8

	// 7 cycles: no whole tick yet; the remainder must not be lost.
	tm.Tick(7)
	assert.Equal(t, uint16(0), tm.Channel(2).Counter())
	tm.Tick(1)
	assert.Equal(t, uint16(1), tm.Channel(2).Counter())
	tm.Tick(16)
	assert.Equal(t, uint16(3), tm.Channel(2).Counter())
}

func TestTimer0PixelClockApproximation(t *testing.T) {
	tm, _ := newTestTimers()
	tm.WriteRegister(timer0Mode, 1<<8)
	tm.Tick(80)
	assert.Equal(t, uint16(10), tm.Channel(0).Counter())
}

func TestTimer1HBlankClock(t *testing.T) {
	tm, _ := newTestTimers()
	tm.WriteRegister(timer1Mode, 1<<8) // HBlank pulses

	tm.Tick(10_000)
	assert.Equal(t, uint16(0), tm.Channel(1).Counter(), "system cycles must not count")

	for i := 0; i < 5; i++ {
		tm.HBlankPulse()
	}
	assert.Equal(t, uint16(5), tm.Channel(1).Counter())
}

func TestSyncModePause(t *testing.T) {
	tm, _ := newTestTimers()
	// Timer 1, sync enable, mode 0: pause while sync (VBlank) high.
	tm.WriteRegister(timer1Mode, modeSyncEnable)

	tm.SetVBlank(true)
	tm.Tick(50)
	assert.Equal(t, uint16(0), tm.Channel(1).Counter())

	tm.SetVBlank(false)
	tm.Tick(50)
	assert.Equal(t, uint16(50), tm.Channel(1).Counter())
}

func TestSyncModeResetOnEdge(t *testing.T) {
	tm, _ := newTestTimers()
	// Mode 1: free-run, reset counter on each rising edge.
	tm.WriteRegister(timer1Mode, modeSyncEnable|1<<1)

	tm.Tick(30)
	assert.Equal(t, uint16(30), tm.Channel(1).Counter())

	tm.SetVBlank(true)
	assert.Equal(t, uint16(0), tm.Channel(1).Counter())
}

func TestSyncModePauseUntilFirstEdge(t *testing.T) {
	tm, _ := newTestTimers()
	// Mode 3: paused until the first rising edge, then free-run.
	tm.WriteRegister(timer1Mode, modeSyncEnable|3<<1)

	tm.Tick(40)
	assert.Equal(t, uint16(0), tm.Channel(1).Counter())

	tm.SetVBlank(true)
	tm.Tick(40)
	assert.Equal(t, uint16(40), tm.Channel(1).Counter())
}

func TestTimer2SyncModesHalt(t *testing.T) {
	tm, _ := newTestTimers()
	// Timer 2 sync mode 0 halts counting entirely.
	tm.WriteRegister(timer2Mode, modeSyncEnable)
	tm.Tick(100)
	assert.Equal(t, uint16(0), tm.Channel(2).Counter())

	// Mode 1 free-runs.
	tm.WriteRegister(timer2Mode, modeSyncEnable|1<<1)
	tm.Tick(100)
	assert.Equal(t, uint16(100), tm.Channel(2).Counter())
}
