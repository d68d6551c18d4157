package gpu

// VRAM transfer protocol: a setup command latches a rectangle, then
// pixel pairs stream through GP0 (CPU→VRAM) or GPUREAD (VRAM→CPU),
// row by row, wrapping at the rectangle's right edge.

func (g *GPU) beginTransfer(dir transferDirection, words []uint32) {
	x := uint16(words[1] & 0x3FF)
	y := uint16((words[1] >> 16) & 0x1FF)
	w := uint16(words[2] & 0xFFFF)
	h := uint16(words[2] >> 16)

	// A zero dimension means the full 1024/512 extent.
	w = ((w - 1) & 0x3FF) + 1
	h = ((h - 1) & 0x1FF) + 1

	g.transfer = vramTransfer{
		direction: dir,
		x:         x,
		y:         y,
		width:     w,
		height:    h,
	}
}

// transferWrite consumes one GP0 data word (two pixels) of an active
// CPU→VRAM transfer.
func (g *GPU) transferWrite(word uint32) {
	g.transferWritePixel(uint16(word))
	if g.transfer.direction == transferCPUToVRAM {
		g.transferWritePixel(uint16(word >> 16))
	}
}

func (g *GPU) transferWritePixel(pixel uint16) {
	t := &g.transfer
	g.WriteVRAM(t.x+t.currentX, t.y+t.currentY, pixel)
	if !g.advanceTransfer() {
		g.transfer = vramTransfer{}
	}
}

func (g *GPU) transferReadPixel() uint16 {
	t := &g.transfer
	pixel := g.ReadVRAM(t.x+t.currentX, t.y+t.currentY)
	if !g.advanceTransfer() {
		g.transfer = vramTransfer{}
	}
	return pixel
}

// advanceTransfer steps the cursor; false once the rectangle is done.
func (g *GPU) advanceTransfer() bool {
	t := &g.transfer
	t.currentX++
	if t.currentX >= t.width {
		t.currentX = 0
		t.currentY++
	}
	return t.currentY < t.height
}

// vramToVRAMCopy performs the whole rectangle copy immediately.
func (g *GPU) vramToVRAMCopy(words []uint32) {
	srcX := uint16(words[1] & 0x3FF)
	srcY := uint16((words[1] >> 16) & 0x1FF)
	dstX := uint16(words[2] & 0x3FF)
	dstY := uint16((words[2] >> 16) & 0x1FF)
	w := uint16(words[3] & 0xFFFF)
	h := uint16(words[3] >> 16)
	w = ((w - 1) & 0x3FF) + 1
	h = ((h - 1) & 0x1FF) + 1

	for row := uint16(0); row < h; row++ {
		for col := uint16(0); col < w; col++ {
			g.WriteVRAM(dstX+col, dstY+row, g.ReadVRAM(srcX+col, srcY+row))
		}
	}
}

// fillRectangle is GP0(0x02): an unclipped VRAM fill in 16-pixel
// horizontal steps, ignoring the drawing area and mask bits.
func (g *GPU) fillRectangle(words []uint32) {
	color := toRGB15(words[0])
	x := uint16(words[1] & 0x3F0)
	y := uint16((words[1] >> 16) & 0x1FF)
	w := uint16((words[2]&0x3FF + 0xF) &^ 0xF)
	h := uint16((words[2] >> 16) & 0x1FF)

	for row := uint16(0); row < h; row++ {
		for col := uint16(0); col < w; col++ {
			g.WriteVRAM(x+col, y+row, color)
		}
	}
}
