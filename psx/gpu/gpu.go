// Package gpu implements the GP0/GP1 command pipeline, the 1024x512
// 16bpp VRAM with its software rasterizer, and the VRAM transfer
// protocol.
package gpu

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/irq"
	"github.com/valerio/go-psyx/psx/sched"
)

const (
	// VRAMWidth and VRAMHeight are the framebuffer dimensions in pixels.
	VRAMWidth  = 1024
	VRAMHeight = 512

	// CyclesPerFrame is the NTSC frame period in CPU cycles.
	CyclesPerFrame = 564_480
	// CyclesPerScanline is the NTSC scanline period in CPU cycles.
	CyclesPerScanline = 2_146
	// ScanlinesPerFrame for NTSC video.
	ScanlinesPerFrame = 263
	// vblankStartLine is the scanline where vertical blanking begins.
	vblankStartLine = 243
)

type transferDirection uint8

const (
	transferNone transferDirection = iota
	transferCPUToVRAM
	transferVRAMToCPU
)

// vramTransfer tracks the single in-progress VRAM transfer rectangle.
type vramTransfer struct {
	direction transferDirection
	x, y      uint16
	width     uint16
	height    uint16
	currentX  uint16
	currentY  uint16
}

// drawState is the GP0 rendering state (GPUSTAT plus the E1-E6 latches).
type drawState struct {
	texturePageX     uint16 // in 64-halfword units
	texturePageY     uint16 // 0 or 256
	semiTransparency uint8  // blend mode 0-3
	textureDepth     uint8  // 0=4bpp 1=8bpp 2=15bpp
	dithering        bool
	drawToDisplay    bool
	textureDisable   bool
	forceMaskBit     bool
	preserveMasked   bool

	texWindowMaskX   uint8
	texWindowMaskY   uint8
	texWindowOffsetX uint8
	texWindowOffsetY uint8

	areaLeft   int16
	areaTop    int16
	areaRight  int16
	areaBottom int16

	offsetX int16
	offsetY int16
}

// displayState is the GP1 scanout configuration.
type displayState struct {
	disabled     bool
	dmaDirection uint8
	vramStartX   uint16
	vramStartY   uint16
	horizStart   uint16
	horizEnd     uint16
	lineStart    uint16
	lineEnd      uint16
	hres1        uint8
	hres2        uint8
	vres         uint8
	vmode        uint8 // 0 NTSC, 1 PAL
	depth24      bool
	interlaced   bool
}

// GPU owns VRAM and consumes GP0/GP1 command streams.
type GPU struct {
	vram []uint16

	draw    drawState
	display displayState

	fifo          []uint32
	transfer      vramTransfer
	readLatch     uint32
	irqRequested  bool
	interlaceOdd  bool

	scanline int
	inVBlank bool

	irqc *irq.Controller

	// OnHBlank is pulsed once per scanline for the timer external clock.
	OnHBlank func()
	// OnVBlankEdge reports vertical blanking transitions to timer sync.
	OnVBlankEdge func(active bool)

	vblankEvent sched.Handle
	hblankEvent sched.Handle
}

func New(irqc *irq.Controller) *GPU {
	g := &GPU{
		vram: make([]uint16, VRAMWidth*VRAMHeight),
		irqc: irqc,
	}
	g.resetState()
	return g
}

// resetState reinitializes command state without touching VRAM.
func (g *GPU) resetState() {
	g.draw = drawState{
		areaRight:  VRAMWidth - 1,
		areaBottom: VRAMHeight - 1,
	}
	g.display = displayState{
		disabled:   true,
		horizStart: 0x200,
		horizEnd:   0xC00,
		lineStart:  0x10,
		lineEnd:    0x100,
	}
	g.fifo = g.fifo[:0]
	g.transfer = vramTransfer{}
	g.readLatch = 0
	g.irqRequested = false
}

// Reset fully reinitializes the GPU, clearing VRAM.
func (g *GPU) Reset() {
	g.resetState()
	clear(g.vram)
	g.scanline = 0
	g.inVBlank = false
	g.interlaceOdd = false
}

// RegisterEvents installs the VBlank and HBlank periodic events.
func (g *GPU) RegisterEvents(s *sched.Scheduler) {
	g.vblankEvent = s.RegisterPeriodicEvent("gpu.vblank", CyclesPerFrame)
	s.Schedule(g.vblankEvent, CyclesPerFrame)
	g.hblankEvent = s.RegisterPeriodicEvent("gpu.hblank", CyclesPerScanline)
	s.Schedule(g.hblankEvent, CyclesPerScanline)
}

// HandleEvent reacts to a fired scheduler event owned by the GPU.
func (g *GPU) HandleEvent(h sched.Handle) {
	switch h {
	case g.vblankEvent:
		g.vblank()
	case g.hblankEvent:
		g.hblank()
	}
}

func (g *GPU) vblank() {
	g.scanline = vblankStartLine
	g.inVBlank = true
	g.interlaceOdd = !g.interlaceOdd
	g.irqc.Request(addr.IntVBlank)
	if g.OnVBlankEdge != nil {
		g.OnVBlankEdge(true)
	}
}

func (g *GPU) hblank() {
	g.scanline++
	if g.scanline >= ScanlinesPerFrame {
		g.scanline = 0
	}
	wasVBlank := g.inVBlank
	g.inVBlank = g.scanline >= vblankStartLine
	if wasVBlank && !g.inVBlank && g.OnVBlankEdge != nil {
		g.OnVBlankEdge(false)
	}
	if g.OnHBlank != nil {
		g.OnHBlank()
	}
}

// InVBlank reports whether scanout is inside vertical blanking.
func (g *GPU) InVBlank() bool {
	return g.inVBlank
}

// Scanline returns the current scanline counter.
func (g *GPU) Scanline() int {
	return g.scanline
}

// ReadVRAM returns the pixel at (x, y); coordinates wrap at the VRAM
// dimensions.
func (g *GPU) ReadVRAM(x, y uint16) uint16 {
	return g.vram[vramIndex(x, y)]
}

// WriteVRAM stores a raw pixel, bypassing mask logic (transfers).
func (g *GPU) WriteVRAM(x, y uint16, value uint16) {
	g.vram[vramIndex(x, y)] = value
}

func vramIndex(x, y uint16) int {
	return int(y&(VRAMHeight-1))*VRAMWidth + int(x&(VRAMWidth-1))
}

// Status packs GPUSTAT.
func (g *GPU) Status() uint32 {
	var s uint32
	s |= uint32(g.draw.texturePageX) & 0xF
	s |= (uint32(g.draw.texturePageY) / 256 & 1) << 4
	s |= uint32(g.draw.semiTransparency&3) << 5
	s |= uint32(g.draw.textureDepth&3) << 7
	if g.draw.dithering {
		s |= 1 << 9
	}
	if g.draw.drawToDisplay {
		s |= 1 << 10
	}
	if g.draw.forceMaskBit {
		s |= 1 << 11
	}
	if g.draw.preserveMasked {
		s |= 1 << 12
	}
	if !g.interlaceOdd {
		s |= 1 << 13
	}
	if g.draw.textureDisable {
		s |= 1 << 15
	}
	s |= uint32(g.display.hres2&1) << 16
	s |= uint32(g.display.hres1&3) << 17
	s |= uint32(g.display.vres&1) << 19
	s |= uint32(g.display.vmode&1) << 20
	if g.display.depth24 {
		s |= 1 << 21
	}
	if g.display.interlaced {
		s |= 1 << 22
	}
	if g.display.disabled {
		s |= 1 << 23
	}
	if g.irqRequested {
		s |= 1 << 24
	}
	// Ready flags: receive command, send VRAM, receive DMA block.
	s |= 1<<26 | 1<<27 | 1<<28
	s |= uint32(g.display.dmaDirection&3) << 29
	if g.interlaceOdd && !g.inVBlank {
		s |= 1 << 31
	}
	return s
}

// WriteGP0 accepts one word of the rendering/data stream.
func (g *GPU) WriteGP0(value uint32) {
	// During a CPU→VRAM transfer GP0 words are pixel data, not commands.
	if g.transfer.direction == transferCPUToVRAM {
		g.transferWrite(value)
		return
	}

	g.fifo = append(g.fifo, value)
	g.tryDispatch()
}

// tryDispatch consumes the FIFO once the opcode's declared word count
// has arrived.
func (g *GPU) tryDispatch() {
	op := uint8(g.fifo[0] >> 24)

	need, variable := gp0WordCount(op)
	if variable {
		// Polylines terminate on the 0x5555_5555 marker word.
		last := g.fifo[len(g.fifo)-1]
		if len(g.fifo) < need || last&0xF000F000 != 0x50005000 {
			return
		}
	} else if len(g.fifo) < need {
		return
	}

	words := g.fifo
	g.fifo = g.fifo[:0]
	g.dispatchGP0(op, words)
}

// gp0WordCount returns the total number of words opcode op consumes;
// variable is set for terminator-delimited polylines.
func gp0WordCount(op uint8) (count int, variable bool) {
	switch {
	case op == 0x02:
		return 3, false
	case op >= 0x20 && op < 0x40:
		quad := op&0x08 != 0
		shaded := op&0x10 != 0
		textured := op&0x04 != 0
		verts := 3
		if quad {
			verts = 4
		}
		perVert := 1
		if textured {
			perVert++
		}
		if shaded {
			perVert++
		}
		n := verts * perVert
		if !shaded {
			n++ // leading color word
		}
		return n, false
	case op >= 0x40 && op < 0x60:
		shaded := op&0x10 != 0
		poly := op&0x08 != 0
		if poly {
			minWords := 4
			if shaded {
				minWords = 5
			}
			return minWords, true
		}
		if shaded {
			return 4, false
		}
		return 3, false
	case op >= 0x60 && op < 0x80:
		textured := op&0x04 != 0
		variableSize := op&0x18 == 0
		n := 2
		if textured {
			n++
		}
		if variableSize {
			n++
		}
		return n, false
	case op == 0x80:
		return 4, false
	case op == 0xA0 || op == 0xC0:
		return 3, false
	default:
		return 1, false
	}
}

func (g *GPU) dispatchGP0(op uint8, words []uint32) {
	switch {
	case op == 0x00: // NOP
	case op == 0x01: // clear texture cache; no texture cache modeled
	case op == 0x02:
		g.fillRectangle(words)
	case op == 0x1F:
		g.irqRequested = true
		g.irqc.Request(addr.IntGPU)
	case op >= 0x20 && op < 0x40:
		g.drawPolygon(op, words)
	case op >= 0x40 && op < 0x60:
		g.drawLines(op, words)
	case op >= 0x60 && op < 0x80:
		g.drawRectangle(op, words)
	case op == 0x80:
		g.vramToVRAMCopy(words)
	case op == 0xA0:
		g.beginTransfer(transferCPUToVRAM, words)
	case op == 0xC0:
		g.beginTransfer(transferVRAMToCPU, words)
	case op == 0xE1:
		g.setDrawMode(words[0])
	case op == 0xE2:
		g.draw.texWindowMaskX = uint8(words[0] & 0x1F)
		g.draw.texWindowMaskY = uint8((words[0] >> 5) & 0x1F)
		g.draw.texWindowOffsetX = uint8((words[0] >> 10) & 0x1F)
		g.draw.texWindowOffsetY = uint8((words[0] >> 15) & 0x1F)
	case op == 0xE3:
		g.draw.areaLeft = int16(words[0] & 0x3FF)
		g.draw.areaTop = int16((words[0] >> 10) & 0x1FF)
	case op == 0xE4:
		g.draw.areaRight = int16(words[0] & 0x3FF)
		g.draw.areaBottom = int16((words[0] >> 10) & 0x1FF)
	case op == 0xE5:
		g.draw.offsetX = signExtend11(words[0] & 0x7FF)
		g.draw.offsetY = signExtend11((words[0] >> 11) & 0x7FF)
	case op == 0xE6:
		g.draw.forceMaskBit = words[0]&1 != 0
		g.draw.preserveMasked = words[0]&2 != 0
	default:
		slog.Warn("unimplemented GP0 command", "opcode", fmt.Sprintf("0x%02X", op))
	}
}

func (g *GPU) setDrawMode(v uint32) {
	g.draw.texturePageX = uint16(v & 0xF)
	g.draw.texturePageY = uint16((v>>4)&1) * 256
	g.draw.semiTransparency = uint8((v >> 5) & 3)
	g.draw.textureDepth = uint8((v >> 7) & 3)
	g.draw.dithering = v&(1<<9) != 0
	g.draw.drawToDisplay = v&(1<<10) != 0
	g.draw.textureDisable = v&(1<<11) != 0
}

// WriteGP1 executes a control command.
func (g *GPU) WriteGP1(value uint32) {
	op := uint8(value >> 24)
	switch op {
	case 0x00:
		g.resetState()
		slog.Debug("GPU reset", "vram_preserved", true)
	case 0x01:
		g.fifo = g.fifo[:0]
		g.transfer = vramTransfer{}
	case 0x02:
		g.irqRequested = false
	case 0x03:
		g.display.disabled = value&1 != 0
	case 0x04:
		g.display.dmaDirection = uint8(value & 3)
	case 0x05:
		g.display.vramStartX = uint16(value & 0x3FE)
		g.display.vramStartY = uint16((value >> 10) & 0x1FF)
	case 0x06:
		g.display.horizStart = uint16(value & 0xFFF)
		g.display.horizEnd = uint16((value >> 12) & 0xFFF)
	case 0x07:
		g.display.lineStart = uint16(value & 0x3FF)
		g.display.lineEnd = uint16((value >> 10) & 0x3FF)
	case 0x08:
		g.display.hres1 = uint8(value & 3)
		g.display.vres = uint8((value >> 2) & 1)
		g.display.vmode = uint8((value >> 3) & 1)
		g.display.depth24 = value&(1<<4) != 0
		g.display.interlaced = value&(1<<5) != 0
		g.display.hres2 = uint8((value >> 6) & 1)
	case 0x10:
		g.getInfo(value)
	default:
		slog.Warn("unimplemented GP1 command", "opcode", fmt.Sprintf("0x%02X", op))
	}
}

func (g *GPU) getInfo(value uint32) {
	switch value & 0xF {
	case 2:
		g.readLatch = uint32(g.draw.texWindowMaskX) |
			uint32(g.draw.texWindowMaskY)<<5 |
			uint32(g.draw.texWindowOffsetX)<<10 |
			uint32(g.draw.texWindowOffsetY)<<15
	case 3:
		g.readLatch = uint32(uint16(g.draw.areaLeft)) | uint32(uint16(g.draw.areaTop))<<10
	case 4:
		g.readLatch = uint32(uint16(g.draw.areaRight)) | uint32(uint16(g.draw.areaBottom))<<10
	case 5:
		g.readLatch = uint32(uint16(g.draw.offsetX)&0x7FF) | uint32(uint16(g.draw.offsetY)&0x7FF)<<11
	case 7:
		g.readLatch = 2 // GPU version
	}
}

// ReadData services GPUREAD: transfer pixel pairs while a VRAM→CPU
// transfer runs, otherwise the get-info latch.
func (g *GPU) ReadData() uint32 {
	if g.transfer.direction != transferVRAMToCPU {
		return g.readLatch
	}
	lo := uint32(g.transferReadPixel())
	hi := uint32(g.transferReadPixel())
	return lo | hi<<16
}

func signExtend11(v uint32) int16 {
	return int16(v<<5) >> 5
}
