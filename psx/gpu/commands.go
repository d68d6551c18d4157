package gpu

// GP0 draw-command parsing. Word layouts follow the hardware protocol:
// a leading color word for flat commands, per-vertex color words for
// shaded ones, and texcoord words carrying the CLUT (first) and texture
// page (second) attributes for textured ones.

func (g *GPU) drawPolygon(op uint8, words []uint32) {
	shaded := op&0x10 != 0
	quad := op&0x08 != 0
	textured := op&0x04 != 0
	semi := op&0x02 != 0
	rawTexture := op&0x01 != 0

	verts := 3
	if quad {
		verts = 4
	}

	var vs [4]Vertex
	var cs [4]Color
	var ts [4]TexCoord

	i := 0
	if !shaded {
		cs[0] = colorFromWord(words[0])
		i++
	}
	var texWords [4]uint32
	for v := 0; v < verts; v++ {
		if shaded {
			cs[v] = colorFromWord(words[i])
			i++
		}
		vs[v] = vertexFromWord(words[i]).offset(g.draw.offsetX, g.draw.offsetY)
		i++
		if textured {
			ts[v] = texCoordFromWord(words[i])
			texWords[v] = words[i]
			i++
		}
	}

	if textured {
		cl := clutFromWord(texWords[0])
		page := texPageFromWord(texWords[1])
		var mod *Color
		if !rawTexture {
			mod = &cs[0]
		}
		g.drawTexturedTriangle(vs[0], vs[1], vs[2], ts[0], ts[1], ts[2], page, cl, mod, semi)
		if quad {
			g.drawTexturedTriangle(vs[1], vs[2], vs[3], ts[1], ts[2], ts[3], page, cl, mod, semi)
		}
		return
	}

	if shaded {
		blend := g.blendFor(semi)
		g.drawShadedTriangle(vs[0], vs[1], vs[2], cs[0], cs[1], cs[2], blend)
		if quad {
			g.drawShadedTriangle(vs[1], vs[2], vs[3], cs[1], cs[2], cs[3], blend)
		}
		return
	}

	blend := g.blendFor(semi)
	color := cs[0].ToRGB15()
	g.drawFlatTriangle(vs[0], vs[1], vs[2], color, blend)
	if quad {
		g.drawFlatTriangle(vs[1], vs[2], vs[3], color, blend)
	}
}

func (g *GPU) drawLines(op uint8, words []uint32) {
	shaded := op&0x10 != 0
	poly := op&0x08 != 0
	semi := op&0x02 != 0
	blend := g.blendFor(semi)

	if poly {
		// Strip the terminator word.
		words = words[:len(words)-1]
	}

	if !shaded {
		color := colorFromWord(words[0]).ToRGB15()
		prev := vertexFromWord(words[1]).offset(g.draw.offsetX, g.draw.offsetY)
		for i := 2; i < len(words); i++ {
			next := vertexFromWord(words[i]).offset(g.draw.offsetX, g.draw.offsetY)
			g.drawLine(prev, next, color, blend)
			prev = next
		}
		return
	}

	// Shaded: alternating color/vertex words.
	prevColor := colorFromWord(words[0])
	prev := vertexFromWord(words[1]).offset(g.draw.offsetX, g.draw.offsetY)
	for i := 2; i+1 < len(words); i += 2 {
		nextColor := colorFromWord(words[i])
		next := vertexFromWord(words[i+1]).offset(g.draw.offsetX, g.draw.offsetY)
		g.drawGradientLine(prev, next, prevColor, nextColor, blend)
		prev, prevColor = next, nextColor
	}
}

func (g *GPU) drawRectangle(op uint8, words []uint32) {
	textured := op&0x04 != 0
	semi := op&0x02 != 0
	rawTexture := op&0x01 != 0

	color := colorFromWord(words[0])
	topLeft := vertexFromWord(words[1]).offset(g.draw.offsetX, g.draw.offsetY)

	i := 2
	var tc TexCoord
	var cl clut
	if textured {
		tc = texCoordFromWord(words[i])
		cl = clutFromWord(words[i])
		i++
	}

	var w, h int32
	switch (op >> 3) & 3 {
	case 0: // variable size word
		w = int32(words[i] & 0x3FF)
		h = int32((words[i] >> 16) & 0x1FF)
	case 1:
		w, h = 1, 1
	case 2:
		w, h = 8, 8
	case 3:
		w, h = 16, 16
	}

	if textured {
		var mod *Color
		if !rawTexture {
			mod = &color
		}
		g.drawTexturedRect(topLeft, w, h, tc, cl, mod, semi)
		return
	}
	g.drawRect(topLeft, w, h, color.ToRGB15(), g.blendFor(semi))
}
