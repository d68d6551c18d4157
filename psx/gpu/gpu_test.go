package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/go-psyx/psx/irq"
)

func newTestGPU() *GPU {
	return New(irq.New())
}

// setFullDrawArea opens the drawing area to all of VRAM with no offset.
func setFullDrawArea(g *GPU) {
	g.WriteGP0(0xE3000000)                       // top-left (0,0)
	g.WriteGP0(0xE4000000 | (511 << 10) | 1023)  // bottom-right (1023,511)
	g.WriteGP0(0xE5000000)                       // offset (0,0)
}

func TestMonochromeRectangle(t *testing.T) {
	g := newTestGPU()
	setFullDrawArea(g)

	g.WriteGP0(0x60FFFFFF)          // white variable-size rectangle
	g.WriteGP0(50 | 50<<16)         // vertex (50,50)
	g.WriteGP0(4 | 3<<16)           // size 4x3

	for y := uint16(50); y <= 52; y++ {
		for x := uint16(50); x <= 53; x++ {
			assert.Equal(t, uint16(0x7FFF), g.ReadVRAM(x, y), "pixel (%d,%d)", x, y)
		}
	}
	assert.Equal(t, uint16(0), g.ReadVRAM(49, 50))
	assert.Equal(t, uint16(0), g.ReadVRAM(54, 50))
	assert.Equal(t, uint16(0), g.ReadVRAM(50, 53))
}

func TestFIFODrainsAfterDeclaredWordCount(t *testing.T) {
	g := newTestGPU()
	setFullDrawArea(g)

	// Monochrome triangle: 4 words.
	g.WriteGP0(0x20FF0000)
	assert.Len(t, g.fifo, 1)
	g.WriteGP0(0)
	g.WriteGP0(10)
	assert.Len(t, g.fifo, 3)
	g.WriteGP0(10 << 16)
	assert.Empty(t, g.fifo)
}

func TestSemiTransparencyAverage(t *testing.T) {
	g := newTestGPU()
	setFullDrawArea(g)

	g.WriteVRAM(10, 10, 0x7FFF)

	// Black semi-transparent triangle over the white pixel; default
	// blend mode is Average.
	g.WriteGP0(0x22000000)
	g.WriteGP0(5 | 5<<16)
	g.WriteGP0(15 | 5<<16)
	g.WriteGP0(10 | 15<<16)

	assert.Equal(t, uint16(0x3DEF), g.ReadVRAM(10, 10))
}

func TestBlendAverageIdentity(t *testing.T) {
	for _, v := range []uint16{0, 0x7FFF, 0x3DEF, 0x1234} {
		assert.Equal(t, v&0x7FFF, BlendAverage.Blend(v&0x7FFF, v&0x7FFF))
	}
}

func TestBlendModes(t *testing.T) {
	white := uint16(0x7FFF)
	assert.Equal(t, white, BlendAdd.Blend(white, white), "additive clamps at white")
	assert.Equal(t, uint16(0), BlendSubtract.Blend(white, white))
	// B + F/4 with F=white adds 7 to each channel.
	got := BlendAddQuarter.Blend(0, white)
	assert.Equal(t, pack15(7, 7, 7), got)
}

func TestZeroHeightTriangleDrawsNothing(t *testing.T) {
	g := newTestGPU()
	setFullDrawArea(g)

	g.WriteGP0(0x20FFFFFF)
	g.WriteGP0(10 | 20<<16)
	g.WriteGP0(30 | 20<<16)
	g.WriteGP0(50 | 20<<16)

	for x := uint16(0); x < 64; x++ {
		assert.Equal(t, uint16(0), g.ReadVRAM(x, 20))
	}
}

func TestCollinearTriangleDrawsNothing(t *testing.T) {
	g := newTestGPU()
	setFullDrawArea(g)

	// All three vertices on the same diagonal line.
	g.WriteGP0(0x20FFFFFF)
	g.WriteGP0(0)
	g.WriteGP0(5 | 5<<16)
	g.WriteGP0(10 | 10<<16)

	for i := uint16(0); i <= 10; i++ {
		assert.Equal(t, uint16(0), g.ReadVRAM(i, i), "pixel (%d,%d)", i, i)
	}
}

func TestDrawingAreaClipping(t *testing.T) {
	g := newTestGPU()
	g.WriteGP0(0xE3000000 | (10 << 10) | 10) // area (10,10)
	g.WriteGP0(0xE4000000 | (20 << 10) | 20) // to (20,20)
	g.WriteGP0(0xE5000000)

	g.WriteGP0(0x60FFFFFF)
	g.WriteGP0(0)          // vertex (0,0)
	g.WriteGP0(64 | 64<<16) // size 64x64

	assert.Equal(t, uint16(0), g.ReadVRAM(9, 9))
	assert.Equal(t, uint16(0x7FFF), g.ReadVRAM(10, 10))
	assert.Equal(t, uint16(0x7FFF), g.ReadVRAM(20, 20))
	assert.Equal(t, uint16(0), g.ReadVRAM(21, 21))
}

func TestVRAMCoordinateWrap(t *testing.T) {
	g := newTestGPU()
	g.WriteVRAM(5, 7, 0x1234)
	assert.Equal(t, uint16(0x1234), g.ReadVRAM(5+1024, 7+512))
}

func TestCPUToVRAMTransfer(t *testing.T) {
	g := newTestGPU()

	// 2x2 rectangle at (100, 200).
	g.WriteGP0(0xA0000000)
	g.WriteGP0(100 | 200<<16)
	g.WriteGP0(2 | 2<<16)

	// Pixel data words are not interpreted as commands.
	g.WriteGP0(0x22221111)
	g.WriteGP0(0x44443333)

	assert.Equal(t, uint16(0x1111), g.ReadVRAM(100, 200))
	assert.Equal(t, uint16(0x2222), g.ReadVRAM(101, 200))
	assert.Equal(t, uint16(0x3333), g.ReadVRAM(100, 201))
	assert.Equal(t, uint16(0x4444), g.ReadVRAM(101, 201))

	// Transfer complete: GP0 interprets commands again.
	g.WriteGP0(0xE5000000)
	assert.Empty(t, g.fifo)
}

func TestVRAMToCPUTransfer(t *testing.T) {
	g := newTestGPU()
	g.WriteVRAM(10, 20, 0xAAAA)
	g.WriteVRAM(11, 20, 0xBBBB)

	g.WriteGP0(0xC0000000)
	g.WriteGP0(10 | 20<<16)
	g.WriteGP0(2 | 1<<16)

	assert.Equal(t, uint32(0xBBBBAAAA), g.ReadData())
}

func TestVRAMToVRAMCopy(t *testing.T) {
	g := newTestGPU()
	g.WriteVRAM(0, 0, 0x0F0F)
	g.WriteVRAM(1, 0, 0xF0F0)

	g.WriteGP0(0x80000000)
	g.WriteGP0(0)            // src (0,0)
	g.WriteGP0(300 | 100<<16) // dst (300,100)
	g.WriteGP0(2 | 1<<16)

	assert.Equal(t, uint16(0x0F0F), g.ReadVRAM(300, 100))
	assert.Equal(t, uint16(0xF0F0), g.ReadVRAM(301, 100))
}

func TestGP1ResetPreservesVRAM(t *testing.T) {
	g := newTestGPU()
	g.WriteVRAM(42, 42, 0x5555)
	g.WriteGP1(0x00000000)
	assert.Equal(t, uint16(0x5555), g.ReadVRAM(42, 42))
}

func TestColorRoundTripLosesLow3Bits(t *testing.T) {
	c := Color{R: 0xFF, G: 0x81, B: 0x07}
	r, gg, b := rgb15To24(c.ToRGB15())
	assert.Equal(t, uint8(0xF8), r)
	assert.Equal(t, uint8(0x80), gg)
	assert.Equal(t, uint8(0x00), b)
}

func TestStatusReadyBits(t *testing.T) {
	g := newTestGPU()
	s := g.Status()
	assert.NotZero(t, s&(1<<26))
	assert.NotZero(t, s&(1<<27))
	assert.NotZero(t, s&(1<<28))
}

func TestTexturedRectangleWithCLUT(t *testing.T) {
	g := newTestGPU()
	setFullDrawArea(g)

	// Texture page at (0, 0), 4bpp; draw mode command.
	g.WriteGP0(0xE1000000)

	// CLUT at x=64 (unit 4), y=400: entry 1 = solid red.
	g.WriteVRAM(64+1, 400, 0x001F)
	// One texel word: indices 1,0,0,0 at page origin row 64.
	g.WriteVRAM(0, 64, 0x0001)

	// Textured 1x1 rectangle at (500,300), texcoord (0,64), raw texture.
	g.WriteGP0(0x6D000000)
	g.WriteGP0(500 | 300<<16)
	clutAttr := uint32(4|400<<6) << 16
	g.WriteGP0(clutAttr | 64<<8 | 0)

	assert.Equal(t, uint16(0x001F), g.ReadVRAM(500, 300))
}
