package gpu

import "math"

// The software rasterizer. Every pixel funnels through putPixel, which
// enforces the drawing-area clip, the mask-bit rules, and optional
// semi-transparent blending.

// putPixel writes one pixel honoring clip, mask and blend state. blend
// is nil for opaque writes.
func (g *GPU) putPixel(x, y int32, color uint16, blend *BlendMode) {
	if x < int32(g.draw.areaLeft) || x > int32(g.draw.areaRight) ||
		y < int32(g.draw.areaTop) || y > int32(g.draw.areaBottom) {
		return
	}
	idx := vramIndex(uint16(x), uint16(y))
	back := g.vram[idx]
	if g.draw.preserveMasked && back&0x8000 != 0 {
		return
	}
	if blend != nil {
		color = blend.Blend(back, color)
	}
	if g.draw.forceMaskBit {
		color |= 0x8000
	}
	g.vram[idx] = color
}

// blendFor returns the active blend mode for a semi-transparent command.
func (g *GPU) blendFor(semi bool) *BlendMode {
	if !semi {
		return nil
	}
	m := BlendMode(g.draw.semiTransparency)
	return &m
}

// drawFlatTriangle rasterizes a solid triangle: sort the vertices by Y,
// split at the middle vertex, and walk scanlines between two
// interpolated edges.
func (g *GPU) drawFlatTriangle(v0, v1, v2 Vertex, color uint16, blend *BlendMode) {
	area := int64(v1.X-v0.X)*int64(v2.Y-v0.Y) - int64(v1.Y-v0.Y)*int64(v2.X-v0.X)
	if area == 0 {
		return // degenerate: zero height or collinear vertices
	}
	if v0.Y > v1.Y {
		v0, v1 = v1, v0
	}
	if v1.Y > v2.Y {
		v1, v2 = v2, v1
	}
	if v0.Y > v1.Y {
		v0, v1 = v1, v0
	}

	switch {
	case v1.Y == v2.Y:
		g.flatBottom(v0, v1, v2, color, blend)
	case v0.Y == v1.Y:
		g.flatTop(v0, v1, v2, color, blend)
	default:
		// Split at the middle vertex's scanline.
		t := float64(v1.Y-v0.Y) / float64(v2.Y-v0.Y)
		split := Vertex{X: v0.X + int16(t*float64(v2.X-v0.X)), Y: v1.Y}
		g.flatBottom(v0, v1, split, color, blend)
		g.flatTop(v1, split, v2, color, blend)
	}
}

func (g *GPU) flatBottom(top, b1, b2 Vertex, color uint16, blend *BlendMode) {
	dy := float64(b1.Y - top.Y)
	if dy <= 0 {
		return
	}
	slope1 := float64(b1.X-top.X) / dy
	slope2 := float64(b2.X-top.X) / dy
	x1, x2 := float64(top.X), float64(top.X)
	for y := top.Y; y <= b1.Y; y++ {
		g.drawScanline(int32(y), int32(x1), int32(x2), color, blend)
		x1 += slope1
		x2 += slope2
	}
}

func (g *GPU) flatTop(t1, t2, bottom Vertex, color uint16, blend *BlendMode) {
	dy := float64(bottom.Y - t1.Y)
	if dy <= 0 {
		return
	}
	slope1 := float64(bottom.X-t1.X) / dy
	slope2 := float64(bottom.X-t2.X) / dy
	x1, x2 := float64(bottom.X), float64(bottom.X)
	for y := bottom.Y; y > t1.Y; y-- {
		g.drawScanline(int32(y), int32(x1), int32(x2), color, blend)
		x1 -= slope1
		x2 -= slope2
	}
}

func (g *GPU) drawScanline(y, x1, x2 int32, color uint16, blend *BlendMode) {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	for x := x1; x <= x2; x++ {
		g.putPixel(x, y, color, blend)
	}
}

// barycentric computes the doubled signed areas of the sub-triangles at
// point p. Cross products are promoted to 64 bits before multiplying.
func barycentric(v0, v1, v2 Vertex, px, py int32) (w0, w1, w2, area int64) {
	x0, y0 := int64(v0.X), int64(v0.Y)
	x1, y1 := int64(v1.X), int64(v1.Y)
	x2, y2 := int64(v2.X), int64(v2.Y)
	x, y := int64(px), int64(py)

	area = (x1-x0)*(y2-y0) - (y1-y0)*(x2-x0)
	w0 = (x1-x)*(y2-y) - (y1-y)*(x2-x)
	w1 = (x2-x)*(y0-y) - (y2-y)*(x0-x)
	w2 = (x0-x)*(y1-y) - (y0-y)*(x1-x)
	return
}

// drawShadedTriangle interpolates per-channel color with barycentric
// weights over the triangle's bounding box.
func (g *GPU) drawShadedTriangle(v0, v1, v2 Vertex, c0, c1, c2 Color, blend *BlendMode) {
	minX, minY, maxX, maxY := triangleBounds(v0, v1, v2)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			w0, w1, w2, area := barycentric(v0, v1, v2, x, y)
			if area == 0 || !sameSide(w0, w1, w2, area) {
				continue
			}
			r := uint8((w0*int64(c0.R) + w1*int64(c1.R) + w2*int64(c2.R)) / area)
			gg := uint8((w0*int64(c0.G) + w1*int64(c1.G) + w2*int64(c2.G)) / area)
			b := uint8((w0*int64(c0.B) + w1*int64(c1.B) + w2*int64(c2.B)) / area)
			g.putPixel(x, y, Color{R: r, G: gg, B: b}.ToRGB15(), blend)
		}
	}
}

// drawTexturedTriangle interpolates UVs with barycentric weights,
// applies the texture window, samples the texture page and writes the
// (optionally modulated, optionally blended) texel.
func (g *GPU) drawTexturedTriangle(
	v0, v1, v2 Vertex,
	t0, t1, t2 TexCoord,
	page texPage, cl clut,
	modColor *Color, semi bool,
) {
	blend := g.blendFor(semi)
	if blend != nil {
		m := BlendMode(page.semiTransp)
		blend = &m
	}

	minX, minY, maxX, maxY := triangleBounds(v0, v1, v2)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			w0, w1, w2, area := barycentric(v0, v1, v2, x, y)
			if area == 0 || !sameSide(w0, w1, w2, area) {
				continue
			}
			u := uint8((w0*int64(t0.U) + w1*int64(t1.U) + w2*int64(t2.U)) / area)
			v := uint8((w0*int64(t0.V) + w1*int64(t1.V) + w2*int64(t2.V)) / area)

			texel, ok := g.sampleTexture(page, cl, u, v)
			if !ok {
				continue
			}
			if modColor != nil {
				texel = modulate(texel, *modColor)
			}
			pixelBlend := blend
			if pixelBlend != nil && texel&0x8000 == 0 {
				// Only texels with the STP bit participate in blending.
				pixelBlend = nil
			}
			g.putPixel(x, y, texel, pixelBlend)
		}
	}
}

func triangleBounds(v0, v1, v2 Vertex) (minX, minY, maxX, maxY int32) {
	minX = int32(min(v0.X, min(v1.X, v2.X)))
	maxX = int32(max(v0.X, max(v1.X, v2.X)))
	minY = int32(min(v0.Y, min(v1.Y, v2.Y)))
	maxY = int32(max(v0.Y, max(v1.Y, v2.Y)))
	return
}

// sameSide accepts points whose sub-areas all carry the area's sign.
func sameSide(w0, w1, w2, area int64) bool {
	if area > 0 {
		return w0 >= 0 && w1 >= 0 && w2 >= 0
	}
	return w0 <= 0 && w1 <= 0 && w2 <= 0
}

// applyTextureWindow masks and offsets a texel coordinate in 8-pixel
// units: coord = (coord AND NOT(mask*8)) OR ((offset*8) AND (mask*8)).
func (g *GPU) applyTextureWindow(u, v uint8) (uint8, uint8) {
	mx := g.draw.texWindowMaskX * 8
	my := g.draw.texWindowMaskY * 8
	ox := g.draw.texWindowOffsetX * 8
	oy := g.draw.texWindowOffsetY * 8
	u = (u &^ mx) | (ox & mx)
	v = (v &^ my) | (oy & my)
	return u, v
}

// sampleTexture fetches a texel honoring the page depth. The second
// return is false for fully transparent texels (CLUT value 0x0000 in
// paletted modes).
func (g *GPU) sampleTexture(page texPage, cl clut, u, v uint8) (uint16, bool) {
	u, v = g.applyTextureWindow(u, v)

	var texel uint16
	switch page.textureDepth {
	case 0: // 4bpp: four indices per halfword
		word := g.ReadVRAM(page.baseX+uint16(u)/4, page.baseY+uint16(v))
		index := (word >> ((uint16(u) % 4) * 4)) & 0xF
		texel = g.ReadVRAM(cl.X+index, cl.Y)
		if texel == 0 {
			return 0, false
		}
	case 1: // 8bpp: two indices per halfword
		word := g.ReadVRAM(page.baseX+uint16(u)/2, page.baseY+uint16(v))
		index := (word >> ((uint16(u) % 2) * 8)) & 0xFF
		texel = g.ReadVRAM(cl.X+index, cl.Y)
		if texel == 0 {
			return 0, false
		}
	default: // 15bpp direct color
		texel = g.ReadVRAM(page.baseX+uint16(u), page.baseY+uint16(v))
	}
	return texel, true
}

// drawRect fills an axis-aligned rectangle, clipped to the drawing area.
func (g *GPU) drawRect(topLeft Vertex, w, h int32, color uint16, blend *BlendMode) {
	for dy := int32(0); dy < h; dy++ {
		for dx := int32(0); dx < w; dx++ {
			g.putPixel(int32(topLeft.X)+dx, int32(topLeft.Y)+dy, color, blend)
		}
	}
}

// drawTexturedRect samples with an integer-stepped UV from the top-left
// vertex.
func (g *GPU) drawTexturedRect(
	topLeft Vertex, w, h int32,
	tc TexCoord, cl clut,
	modColor *Color, semi bool,
) {
	page := texPage{
		baseX:        g.draw.texturePageX * 64,
		baseY:        g.draw.texturePageY,
		semiTransp:   g.draw.semiTransparency,
		textureDepth: g.draw.textureDepth,
	}
	blend := g.blendFor(semi)

	for dy := int32(0); dy < h; dy++ {
		for dx := int32(0); dx < w; dx++ {
			u := uint8(int32(tc.U) + dx)
			v := uint8(int32(tc.V) + dy)
			texel, ok := g.sampleTexture(page, cl, u, v)
			if !ok {
				continue
			}
			if modColor != nil {
				texel = modulate(texel, *modColor)
			}
			pixelBlend := blend
			if pixelBlend != nil && texel&0x8000 == 0 {
				pixelBlend = nil
			}
			g.putPixel(int32(topLeft.X)+dx, int32(topLeft.Y)+dy, texel, pixelBlend)
		}
	}
}

// drawLine rasterizes with Bresenham's algorithm, clipping per pixel.
func (g *GPU) drawLine(v0, v1 Vertex, color uint16, blend *BlendMode) {
	x0, y0 := int32(v0.X), int32(v0.Y)
	x1, y1 := int32(v1.X), int32(v1.Y)

	dx := abs32(x1 - x0)
	dy := -abs32(y1 - y0)
	sx := int32(1)
	if x0 > x1 {
		sx = -1
	}
	sy := int32(1)
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		g.putPixel(x0, y0, color, blend)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawGradientLine interpolates RGB along the run using the Euclidean
// distance from the start as the t parameter.
func (g *GPU) drawGradientLine(v0, v1 Vertex, c0, c1 Color, blend *BlendMode) {
	x0, y0 := int32(v0.X), int32(v0.Y)
	x1, y1 := int32(v1.X), int32(v1.Y)
	total := math.Hypot(float64(x1-x0), float64(y1-y0))
	if total == 0 {
		g.putPixel(x0, y0, c0.ToRGB15(), blend)
		return
	}

	dx := abs32(x1 - x0)
	dy := -abs32(y1 - y0)
	sx := int32(1)
	if x0 > x1 {
		sx = -1
	}
	sy := int32(1)
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	x, y := x0, y0
	for {
		t := math.Hypot(float64(x-x0), float64(y-y0)) / total
		c := Color{
			R: lerp8(c0.R, c1.R, t),
			G: lerp8(c0.G, c1.G, t),
			B: lerp8(c0.B, c1.B, t),
		}
		g.putPixel(x, y, c.ToRGB15(), blend)
		if x == x1 && y == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
