package psx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-psyx/psx/addr"
)

// testBIOS returns a 512 KB image whose reset vector spins in place.
func testBIOS() []byte {
	img := make([]byte, addr.BIOSSize)
	// j 0xBFC00000; nop
	putWord(img, 0, 0x0BF00000)
	putWord(img, 4, 0x00000000)
	return img
}

func putWord(b []byte, offset int, v uint32) {
	b[offset] = byte(v)
	b[offset+1] = byte(v >> 8)
	b[offset+2] = byte(v >> 16)
	b[offset+3] = byte(v >> 24)
}

func TestRunUntilFrameFiresVBlank(t *testing.T) {
	e := New()
	require.NoError(t, e.bus.LoadBIOSData(testBIOS()))

	require.NoError(t, e.RunUntilFrame())

	assert.Equal(t, uint64(1), e.FrameCount())
	assert.NotZero(t, e.irqc.Status()&(1<<addr.IntVBlank), "VBlank raised during the frame")
}

func TestFramebufferDimensions(t *testing.T) {
	e := New()
	w, h := e.DisplaySize()
	assert.Equal(t, 256, w)
	assert.Equal(t, 240, h)
	assert.Len(t, e.Framebuffer(), w*h*3)
}

func TestHBlankPulsesReachTimer1(t *testing.T) {
	e := New()
	require.NoError(t, e.bus.LoadBIOSData(testBIOS()))

	// Timer 1 clocked by HBlank.
	e.timers.WriteRegister(0x1F801114, 1<<8)
	require.NoError(t, e.RunUntilFrame())

	got := e.timers.Channel(1).Counter()
	assert.Greater(t, got, uint16(200), "one pulse per scanline over a frame")
}

func TestResetPreservesBIOS(t *testing.T) {
	e := New()
	require.NoError(t, e.bus.LoadBIOSData(testBIOS()))
	require.NoError(t, e.bus.Write32(0x80000100, 0x12345678))

	e.Reset()

	v, err := e.bus.Read32(0x80000100)
	require.NoError(t, err)
	assert.Zero(t, v, "RAM cleared")

	w, err := e.bus.Read32(0xBFC00000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0BF00000), w, "BIOS preserved")
	assert.Equal(t, uint32(0xBFC00000), e.cpu.PC())
}

func TestLoadEXEPlacesImageAndRegisters(t *testing.T) {
	e := New()

	raw := make([]byte, 2048*2)
	copy(raw, "PS-X EXE")
	putWord(raw, 0x10, 0x80010000) // PC
	putWord(raw, 0x14, 0x80000400) // GP
	putWord(raw, 0x18, 0x80010000) // load address
	putWord(raw, 0x1C, 2048)       // size
	putWord(raw, 0x30, 0x801FFF00) // stack base
	putWord(raw, 2048, 0xDEADBEEF)

	path := t.TempDir() + "/test.exe"
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	require.NoError(t, e.LoadEXE(path))

	assert.Equal(t, uint32(0x80010000), e.cpu.PC())
	assert.Equal(t, uint32(0x80000400), e.cpu.Reg(28))
	assert.Equal(t, uint32(0x801FFF00), e.cpu.Reg(29))
	assert.Equal(t, e.cpu.Reg(29), e.cpu.Reg(30))

	v, err := e.bus.Read32(0x80010000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}
