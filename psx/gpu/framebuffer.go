package gpu

// DisplaySize returns the configured display area dimensions in pixels.
func (g *GPU) DisplaySize() (width, height int) {
	switch {
	case g.display.hres2 == 1:
		width = 368
	case g.display.hres1 == 0:
		width = 256
	case g.display.hres1 == 1:
		width = 320
	case g.display.hres1 == 2:
		width = 512
	default:
		width = 640
	}
	height = 240
	if g.display.vres == 1 && g.display.interlaced {
		height = 480
	}
	return
}

// Framebuffer extracts the display area from VRAM as an RGB24 row-major
// byte buffer of width*height*3. A disabled display yields black.
func (g *GPU) Framebuffer() []byte {
	w, h := g.DisplaySize()
	buf := make([]byte, w*h*3)
	if g.display.disabled {
		return buf
	}

	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pixel := g.ReadVRAM(g.display.vramStartX+uint16(x), g.display.vramStartY+uint16(y))
			r, gg, b := rgb15To24(pixel)
			buf[i] = r
			buf[i+1] = gg
			buf[i+2] = b
			i += 3
		}
	}
	return buf
}
