package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/gte"
	"github.com/valerio/go-psyx/psx/irq"
	"github.com/valerio/go-psyx/psx/memory"
)

func newTestCPU() (*CPU, *memory.Bus, *irq.Controller) {
	bus := memory.New()
	ic := irq.New()
	bus.IRQ = ic
	c := New(bus, ic, gte.New())
	return c, bus, ic
}

// loadProgram writes instruction words at vaddr and points the CPU there.
func loadProgram(t *testing.T, c *CPU, bus *memory.Bus, vaddr uint32, words []uint32) {
	t.Helper()
	for i, w := range words {
		require.NoError(t, bus.Write32(vaddr+uint32(i)*4, w))
	}
	c.SetPC(vaddr)
}

func step(t *testing.T, c *CPU, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := c.Step()
		require.NoError(t, err)
	}
}

func TestResetState(t *testing.T) {
	c, _, _ := newTestCPU()
	assert.Equal(t, uint32(0xBFC00000), c.PC())
	for i := 0; i < 32; i++ {
		assert.Zero(t, c.Reg(i))
	}
}

func TestZeroRegisterAbsorbsWrites(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x3400FFFF, // ORI r0, r0, 0xFFFF
		0x24000005, // ADDIU r0, r0, 5
	})
	step(t, c, 2)
	assert.Zero(t, c.Reg(0))
}

func TestLoadDelaySlotScenario(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x3C081234, // LUI r8, 0x1234
		0x35085678, // ORI r8, r8, 0x5678
		0xAD280000, // SW r8, 0(r9)
		0x8D2A0000, // LW r10, 0(r9)
		0x014A5826, // XOR r11, r10, r10  (delay slot: sees pre-load r10)
		0x01406020, // ADD r12, r10, r0
	})
	c.SetReg(9, 0x80001000)

	step(t, c, 6)

	assert.Equal(t, uint32(0x12345678), c.Reg(8))
	v, err := bus.Read32(0x80001000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)
	assert.Equal(t, uint32(0x12345678), c.Reg(10))
	assert.Zero(t, c.Reg(11), "XOR in the load delay slot sees the pre-load value")
	assert.Equal(t, uint32(0x12345678), c.Reg(12))
}

func TestBranchDelaySlotExecutesOnce(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x24010001, // ADDIU r1, r0, 1
		0x10000002, // BEQ r0, r0, +2 (to 0x10)
		0x24020005, // ADDIU r2, r0, 5  (delay slot)
		0x24030007, // ADDIU r3, r0, 7  (skipped)
		0x24040009, // ADDIU r4, r0, 9  (branch target)
	})

	step(t, c, 4)

	assert.Equal(t, uint32(1), c.Reg(1))
	assert.Equal(t, uint32(5), c.Reg(2), "delay slot executed")
	assert.Zero(t, c.Reg(3), "branch skipped the following instruction")
	assert.Equal(t, uint32(9), c.Reg(4))
}

func TestJALStoresReturnAddress(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x0C000004, // JAL 0x80000010
		0x00000000, // NOP (delay slot)
		0x00000000,
		0x00000000,
		0x24010001, // ADDIU r1, r0, 1 (jump target)
	})
	step(t, c, 3)
	assert.Equal(t, uint32(0x80000008), c.Reg(31))
	assert.Equal(t, uint32(1), c.Reg(1))
}

func TestSyscallException(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x0000000C, // SYSCALL
	})
	step(t, c, 1)

	assert.Equal(t, uint32(0xBFC00180), c.PC(), "BEV vector after reset")
	assert.Equal(t, uint32(0x80000000), c.epc)
	assert.Equal(t, uint32(excSyscall), (c.cause>>2)&0x1F)
}

func TestOverflowException(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x3C017FFF, // LUI r1, 0x7FFF
		0x3421FFFF, // ORI r1, r1, 0xFFFF
		0x20220001, // ADDI r2, r1, 1 -> overflow
	})
	step(t, c, 3)

	assert.Equal(t, uint32(excOverflow), (c.cause>>2)&0x1F)
	assert.Zero(t, c.Reg(2), "destination unchanged on overflow")
}

func TestExceptionInDelaySlotSetsBD(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x10000002, // BEQ r0, r0, +2
		0x0000000C, // SYSCALL in delay slot
	})
	step(t, c, 2)

	assert.NotZero(t, c.cause&(1<<31), "branch-delay bit")
	assert.Equal(t, uint32(0x80000000), c.epc, "EPC points at the branch")
}

func TestRFERestoresMode(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x0000000C, // SYSCALL
	})
	c.sr |= srIEc
	step(t, c, 1)
	assert.Zero(t, c.sr&srIEc, "interrupts disabled in handler")

	loadProgram(t, c, bus, 0x80000100, []uint32{
		0x42000010, // RFE
	})
	step(t, c, 1)
	assert.NotZero(t, c.sr&srIEc, "mode stack popped")
}

func TestExternalInterrupt(t *testing.T) {
	c, bus, ic := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x24010001, // ADDIU r1, r0, 1
	})
	c.sr |= srIEc | 1<<10 // enable hardware interrupt line

	ic.WriteMask(1 << addr.IntVBlank)
	ic.Request(addr.IntVBlank)

	step(t, c, 1)
	assert.Equal(t, uint32(0xBFC00180), c.PC())
	assert.Equal(t, uint32(excInterrupt), (c.cause>>2)&0x1F)
	assert.Zero(t, c.Reg(1), "interrupt taken before the instruction")
}

func TestInterruptMaskedBySR(t *testing.T) {
	c, bus, ic := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x24010001, // ADDIU r1, r0, 1
	})
	ic.WriteMask(1 << addr.IntVBlank)
	ic.Request(addr.IntVBlank)

	step(t, c, 1)
	assert.Equal(t, uint32(1), c.Reg(1), "SR.IEc clear suppresses the interrupt")
}

func TestDivByZeroGarbageValues(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x24010007, // ADDIU r1, r0, 7
		0x0020001A, // DIV r1, r0
		0x00001812, // MFLO r3
		0x00002010, // MFHI r4
	})
	step(t, c, 4)
	assert.Equal(t, uint32(0xFFFFFFFF), c.Reg(3))
	assert.Equal(t, uint32(7), c.Reg(4))
}

func TestLWRLWLPairAssemblesUnalignedWord(t *testing.T) {
	c, bus, _ := newTestCPU()
	require.NoError(t, bus.Write32(0x80001000, 0x44332211))
	require.NoError(t, bus.Write32(0x80001004, 0x88776655))

	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x89A10005, // LWL r1, 5(r13)
		0x99A10002, // LWR r1, 2(r13)
		0x00000000, // NOP (commit)
	})
	c.SetReg(13, 0x80001000)
	step(t, c, 3)

	assert.Equal(t, uint32(0x66554433), c.Reg(1))
}

func TestSWLSWRPairStoresUnalignedWord(t *testing.T) {
	c, bus, _ := newTestCPU()
	require.NoError(t, bus.Write32(0x80001000, 0xAAAAAAAA))
	require.NoError(t, bus.Write32(0x80001004, 0xBBBBBBBB))

	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x3C011234, // LUI r1, 0x1234
		0x34215678, // ORI r1, r1, 0x5678
		0xA9A10005, // SWL r1, 5(r13)
		0xB9A10002, // SWR r1, 2(r13)
	})
	c.SetReg(13, 0x80001000)
	step(t, c, 4)

	lo, _ := bus.Read32(0x80001000)
	hi, _ := bus.Read32(0x80001004)
	assert.Equal(t, uint32(0x5678AAAA), lo)
	assert.Equal(t, uint32(0xBBBB1234), hi)
}

func TestUnalignedLoadPropagatesBusError(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x8DAA0001, // LW r10, 1(r13)
	})
	c.SetReg(13, 0x80001000)

	_, err := c.Step()
	assert.ErrorIs(t, err, memory.ErrUnalignedAccess)
}

func TestSelfModifyingCodeInvalidatesCache(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80002000, []uint32{
		0x24010001, // ADDIU r1, r0, 1
	})
	step(t, c, 1)

	// Rewrite the same word; the bus queues an invalidation the CPU
	// drains before the next fetch.
	require.NoError(t, bus.Write32(0x80002000, 0x24010009))
	c.SetPC(0x80002000)
	step(t, c, 1)
	assert.Equal(t, uint32(9), c.Reg(1))
}

func TestIsolatedCacheStoresSkipMemory(t *testing.T) {
	c, bus, _ := newTestCPU()
	require.NoError(t, bus.Write32(0x80003000, 0x11111111))

	loadProgram(t, c, bus, 0x80000000, []uint32{
		0xADA00000, // SW r0, 0(r13)
	})
	c.SetReg(13, 0x80003000)
	c.sr |= srIsC
	step(t, c, 1)

	v, _ := bus.Read32(0x80003000)
	assert.Equal(t, uint32(0x11111111), v, "isolated store left memory intact")
}

func TestBcondVariants(t *testing.T) {
	c, bus, _ := newTestCPU()
	loadProgram(t, c, bus, 0x80000000, []uint32{
		0x04D10002, // BGEZAL r6, +2 (r6 = 0: taken, links)
		0x00000000, // NOP
		0x24010001, // ADDIU r1, r0, 1 (skipped)
		0x24020002, // ADDIU r2, r0, 2 (target)
	})
	step(t, c, 3)
	assert.Zero(t, c.Reg(1))
	assert.Equal(t, uint32(2), c.Reg(2))
	assert.Equal(t, uint32(0x80000008), c.Reg(31))
}
