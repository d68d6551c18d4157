package gpu

// Color is a 24-bit RGB triple as carried in command words.
type Color struct {
	R, G, B uint8
}

func colorFromWord(v uint32) Color {
	return Color{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16)}
}

// ToRGB15 converts to the 5-5-5 VRAM format, dropping the low 3 bits of
// each channel. The mask bit is left clear.
func (c Color) ToRGB15() uint16 {
	return uint16(c.R>>3) | uint16(c.G>>3)<<5 | uint16(c.B>>3)<<10
}

func toRGB15(word uint32) uint16 {
	return colorFromWord(word).ToRGB15()
}

// rgb15To24 expands a VRAM pixel back to 8-bit channels.
func rgb15To24(p uint16) (r, g, b uint8) {
	return uint8(p&0x1F) << 3, uint8((p>>5)&0x1F) << 3, uint8((p>>10)&0x1F) << 3
}

// Vertex is a screen-space point from a command word: two signed 11-bit
// fields.
type Vertex struct {
	X, Y int16
}

func vertexFromWord(v uint32) Vertex {
	return Vertex{
		X: signExtend11(v & 0x7FF),
		Y: signExtend11((v >> 16) & 0x7FF),
	}
}

func (v Vertex) offset(dx, dy int16) Vertex {
	return Vertex{X: v.X + dx, Y: v.Y + dy}
}

// TexCoord is a texel coordinate from the low half of a texture word.
type TexCoord struct {
	U, V uint8
}

func texCoordFromWord(v uint32) TexCoord {
	return TexCoord{U: uint8(v), V: uint8(v >> 8)}
}

// clut locates a color lookup table from a texture word's high half.
type clut struct {
	X uint16 // in 16-halfword units, pre-multiplied
	Y uint16
}

func clutFromWord(v uint32) clut {
	return clut{
		X: uint16((v>>16)&0x3F) * 16,
		Y: uint16((v >> 22) & 0x1FF),
	}
}

// texPage decodes the texture page attribute from a texture word (as
// carried in polygon commands, bits 16-27 of the second texture word).
type texPage struct {
	baseX        uint16 // in 64-halfword units
	baseY        uint16
	semiTransp   uint8
	textureDepth uint8
}

func texPageFromWord(v uint32) texPage {
	attr := v >> 16
	return texPage{
		baseX:        uint16(attr&0xF) * 64,
		baseY:        uint16((attr>>4)&1) * 256,
		semiTransp:   uint8((attr >> 5) & 3),
		textureDepth: uint8((attr >> 7) & 3),
	}
}

// BlendMode selects one of the four semi-transparency equations.
type BlendMode uint8

const (
	// BlendAverage is B/2 + F/2.
	BlendAverage BlendMode = iota
	// BlendAdd is B + F.
	BlendAdd
	// BlendSubtract is B - F.
	BlendSubtract
	// BlendAddQuarter is B + F/4.
	BlendAddQuarter
)

// Blend combines a background and foreground VRAM pixel per the mode,
// clamping each 5-bit channel.
func (m BlendMode) Blend(background, foreground uint16) uint16 {
	br, bg, bb := unpack15(background)
	fr, fg, fb := unpack15(foreground)

	var r, g, b int32
	switch m {
	case BlendAverage:
		r, g, b = (br+fr)/2, (bg+fg)/2, (bb+fb)/2
	case BlendAdd:
		r, g, b = br+fr, bg+fg, bb+fb
	case BlendSubtract:
		r, g, b = br-fr, bg-fg, bb-fb
	case BlendAddQuarter:
		r, g, b = br+fr/4, bg+fg/4, bb+fb/4
	}
	return pack15(clamp5(r), clamp5(g), clamp5(b)) | background&0x8000
}

func unpack15(p uint16) (r, g, b int32) {
	return int32(p & 0x1F), int32((p >> 5) & 0x1F), int32((p >> 10) & 0x1F)
}

func pack15(r, g, b int32) uint16 {
	return uint16(r) | uint16(g)<<5 | uint16(b)<<10
}

func clamp5(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > 31 {
		return 31
	}
	return v
}

// modulate applies texture-color modulation: (tex * vertex) / 128 per
// 8-bit channel, clamped.
func modulate(texel uint16, c Color) uint16 {
	tr, tg, tb := rgb15To24(texel)
	r := min(int32(tr)*int32(c.R)/128, 255)
	g := min(int32(tg)*int32(c.G)/128, 255)
	b := min(int32(tb)*int32(c.B)/128, 255)
	return uint16(r>>3) | uint16(g>>3)<<5 | uint16(b>>3)<<10 | texel&0x8000
}
