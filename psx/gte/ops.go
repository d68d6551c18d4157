package gte

// Fixed-point helpers. Every product feeding a MAC register is computed
// in 64-bit signed arithmetic; saturation happens only at write-back.

func lo16(v int32) int64 { return int64(int16(v)) }
func hi16(v int32) int64 { return int64(int16(v >> 16)) }

type matrix [3][3]int64

// matrixAt unpacks one of the packed 3x3 matrices (rotation at control 0,
// light at 8, light color at 16).
func (g *GTE) matrixAt(base int) matrix {
	c := g.control
	return matrix{
		{lo16(c[base]), hi16(c[base]), lo16(c[base+1])},
		{hi16(c[base+1]), lo16(c[base+2]), hi16(c[base+2])},
		{lo16(c[base+3]), hi16(c[base+3]), lo16(c[base+4])},
	}
}

// vector returns input vector n (0-2) as sign-extended components.
func (g *GTE) vector(n int) (x, y, z int64) {
	xy := g.data[regVXY0+2*n]
	return lo16(xy), hi16(xy), lo16(g.data[regVZ0+2*n])
}

func (g *GTE) irVector() (x, y, z int64) {
	return lo16(g.data[regIR1]), lo16(g.data[regIR2]), lo16(g.data[regIR3])
}

// rgbc splits the RGBC data register.
func (g *GTE) rgbc() uint32 {
	return uint32(g.data[regRGBC])
}

// setMAC saturates a 64-bit result into MAC1..MAC3.
func (g *GTE) setMAC(n int, v int64) int64 {
	if v > 0x7FFFFFFF {
		v = 0x7FFFFFFF
	} else if v < -0x80000000 {
		v = -0x80000000
	}
	g.data[regMAC0+n] = int32(v)
	return v
}

// setIR saturates into IR1..IR3, setting the per-register flag bit. The
// lm bit clamps negatives to zero.
func (g *GTE) setIR(n int, v int64, lm bool) {
	minVal := int64(-32768)
	if lm {
		minVal = 0
	}
	clamped := v
	if clamped < minVal {
		clamped = minVal
		g.flags |= flagIR1 << (n - 1)
	} else if clamped > 32767 {
		clamped = 32767
		g.flags |= flagIR1 << (n - 1)
	}
	g.data[regIR0+n] = int32(clamped)
}

// setMACIR is the common write-back: MACn then IRn from the same value.
func (g *GTE) setMACIR(n int, v int64, lm bool) {
	g.setIR(n, g.setMAC(n, v), lm)
}

func (g *GTE) setMAC0(v int64) int64 {
	if v > 0x7FFFFFFF {
		g.flags |= flagMAC0Pos
	} else if v < -0x80000000 {
		g.flags |= flagMAC0Neg
	}
	g.data[regMAC0] = int32(v)
	return v
}

// pushSZ pushes a Z value through the 4-entry screen-Z FIFO.
func (g *GTE) pushSZ(z int64) {
	if z < 0 {
		z = 0
		g.flags |= flagSZ3
	} else if z > 0xFFFF {
		z = 0xFFFF
		g.flags |= flagSZ3
	}
	g.data[regSZ0] = g.data[regSZ1]
	g.data[regSZ1] = g.data[regSZ2]
	g.data[regSZ2] = g.data[regSZ3]
	g.data[regSZ3] = int32(z)
}

// pushColor converts the MAC values to 8-bit channels and pushes the
// color FIFO, preserving the code byte from RGBC.
func (g *GTE) pushColor() {
	r := g.satColor(int64(g.data[regMAC1])>>4, flagColorR)
	gg := g.satColor(int64(g.data[regMAC2])>>4, flagColorG)
	b := g.satColor(int64(g.data[regMAC3])>>4, flagColorB)
	code := g.rgbc() & 0xFF000000

	g.data[regRGB0] = g.data[regRGB1]
	g.data[regRGB1] = g.data[regRGB2]
	g.data[regRGB2] = int32(code | uint32(b)<<16 | uint32(gg)<<8 | uint32(r))
}

func (g *GTE) satColor(v int64, flag uint32) uint8 {
	if v < 0 {
		g.flags |= flag
		return 0
	}
	if v > 255 {
		g.flags |= flag
		return 255
	}
	return uint8(v)
}

// mulMatVec computes M*(x,y,z) + (tx,ty,tz)*0x1000, shifted per sf, into
// MAC1..3 and IR1..3.
func (g *GTE) mulMatVec(m matrix, x, y, z int64, tx, ty, tz int64, sf, lm bool) {
	shift := uint(0)
	if sf {
		shift = 12
	}
	for n := 0; n < 3; n++ {
		sum := (m[n][0]*x + m[n][1]*y + m[n][2]*z + (([3]int64{tx, ty, tz})[n] << 12)) >> shift
		g.setMACIR(n+1, sum, lm)
	}
}

// rtps transforms vertex V0 into screen space: rotate, translate, then
// perspective-divide with the 17-bit saturated scale.
func (g *GTE) rtps(sf bool) {
	shift := uint(0)
	if sf {
		shift = 12
	}

	vx, vy, vz := g.vector(0)
	rt := g.matrixAt(ctrlRT)
	trx := int64(g.control[ctrlTRX])
	try := int64(g.control[ctrlTRY])
	trz := int64(g.control[ctrlTRZ])

	mac1 := (rt[0][0]*vx + rt[0][1]*vy + rt[0][2]*vz + (trx << 12)) >> shift
	mac2 := (rt[1][0]*vx + rt[1][1]*vy + rt[1][2]*vz + (try << 12)) >> shift
	mac3 := (rt[2][0]*vx + rt[2][1]*vy + rt[2][2]*vz + (trz << 12)) >> shift

	mac1 = g.setMAC(1, mac1)
	mac2 = g.setMAC(2, mac2)
	mac3 = g.setMAC(3, mac3)

	h := int64(g.control[ctrlH])
	z := mac3

	var scale int64
	if z <= 0 {
		g.flags |= flagDivide
		scale = 0x1FFFF
	} else {
		scale = (h << 12) / z
		if scale > 0x1FFFF {
			scale = 0x1FFFF
		}
	}

	sx := clampI32((scale*mac1)>>12) + int64(g.control[ctrlOFX])
	sy := clampI32((scale*mac2)>>12) + int64(g.control[ctrlOFY])

	if sx < -1024 || sx > 1023 {
		g.flags |= flagSX2
	}
	if sy < -1024 || sy > 1023 {
		g.flags |= flagSY2
	}
	sx = clampRange(sx, -1024, 1023)
	sy = clampRange(sy, -1024, 1023)

	g.data[regSXY0] = g.data[regSXY1]
	g.data[regSXY1] = g.data[regSXY2]
	g.data[regSXY2] = int32(sy)<<16 | int32(sx)&0xFFFF
	g.data[regSXYP] = g.data[regSXY2]

	g.pushSZ(z)

	avg := (g.data[regSZ1] + g.data[regSZ2] + g.data[regSZ3]) / 3
	g.data[regOTZ] = int32(clampRange(int64(avg), 0, 0xFFFF))

	// Depth-cue interpolation factor from the projected Z.
	dqa := int64(int16(g.control[ctrlDQA]))
	dqb := int64(g.control[ctrlDQB])
	ir0 := (dqb + dqa*scale) >> 12
	if ir0 < 0 || ir0 > 0x1000 {
		g.flags |= flagIR0
		ir0 = clampRange(ir0, 0, 0x1000)
	}
	g.data[regIR0] = int32(ir0)

	g.data[regIR1] = int32(clampRange(mac1, -32768, 32767))
	g.data[regIR2] = int32(clampRange(mac2, -32768, 32767))
	g.data[regIR3] = int32(clampRange(mac3, 0, 65535))
}

// rtpt runs rtps over V0, V1, V2 in sequence, preserving V0.
func (g *GTE) rtpt(sf bool) {
	v0xy, v0z := g.data[regVXY0], g.data[regVZ0]

	g.rtps(sf)

	g.data[regVXY0] = g.data[regVXY1]
	g.data[regVZ0] = g.data[regVZ1]
	g.rtps(sf)

	g.data[regVXY0] = g.data[regVXY2]
	g.data[regVZ0] = g.data[regVZ2]
	g.rtps(sf)

	g.data[regVXY0] = v0xy
	g.data[regVZ0] = v0z
}

// nclip computes the winding of the projected triangle in the SXY FIFO.
func (g *GTE) nclip() {
	sx0, sy0 := lo16(g.data[regSXY0]), hi16(g.data[regSXY0])
	sx1, sy1 := lo16(g.data[regSXY1]), hi16(g.data[regSXY1])
	sx2, sy2 := lo16(g.data[regSXY2]), hi16(g.data[regSXY2])

	g.setMAC0(sx0*sy1 + sx1*sy2 + sx2*sy0 - sx0*sy2 - sx1*sy0 - sx2*sy1)
}

// mvmva decodes matrix, vector and translation selectors from the
// command word and runs the generic multiply-add.
func (g *GTE) mvmva(command uint32) {
	sf := command&(1<<19) != 0
	lm := command&(1<<10) != 0
	mx := (command >> 17) & 3
	v := (command >> 15) & 3
	cv := (command >> 13) & 3

	var m matrix
	switch mx {
	case 0:
		m = g.matrixAt(ctrlRT)
	case 1:
		m = g.matrixAt(ctrlLLM)
	case 2:
		m = g.matrixAt(ctrlLCM)
	default:
		// The fourth selector is not a real matrix on hardware.
		g.flags |= flagError
	}

	var x, y, z int64
	if v < 3 {
		x, y, z = g.vector(int(v))
	} else {
		x, y, z = g.irVector()
	}

	var tx, ty, tz int64
	switch cv {
	case 0:
		tx = int64(g.control[ctrlTRX])
		ty = int64(g.control[ctrlTRY])
		tz = int64(g.control[ctrlTRZ])
	case 1:
		tx = int64(g.control[ctrlRBK])
		ty = int64(g.control[ctrlGBK])
		tz = int64(g.control[ctrlBBK])
	case 2:
		tx = int64(g.control[ctrlRFC])
		ty = int64(g.control[ctrlGFC])
		tz = int64(g.control[ctrlBFC])
	}

	g.mulMatVec(m, x, y, z, tx, ty, tz, sf, lm)
}

// sqr squares the IR vector.
func (g *GTE) sqr(sf, lm bool) {
	shift := uint(0)
	if sf {
		shift = 12
	}
	x, y, z := g.irVector()
	g.setMACIR(1, (x*x)>>shift, lm)
	g.setMACIR(2, (y*y)>>shift, lm)
	g.setMACIR(3, (z*z)>>shift, lm)
}

// op computes the outer (cross) product of the IR vector with the
// rotation matrix diagonal.
func (g *GTE) op(sf, lm bool) {
	shift := uint(0)
	if sf {
		shift = 12
	}
	d1 := lo16(g.control[ctrlRT])
	d2 := lo16(g.control[ctrlRT+2])
	d3 := lo16(g.control[ctrlRT+4])
	ir1, ir2, ir3 := g.irVector()

	g.setMACIR(1, (ir3*d2-ir2*d3)>>shift, lm)
	g.setMACIR(2, (ir1*d3-ir3*d1)>>shift, lm)
	g.setMACIR(3, (ir2*d1-ir1*d2)>>shift, lm)
}

func (g *GTE) avsz3() {
	zsf3 := lo16(g.control[ctrlZSF3])
	sum := int64(g.data[regSZ1]) + int64(g.data[regSZ2]) + int64(g.data[regSZ3])
	mac0 := g.setMAC0(zsf3 * sum)
	otz := mac0 >> 12
	if otz < 0 || otz > 0xFFFF {
		g.flags |= flagSZ3
		otz = clampRange(otz, 0, 0xFFFF)
	}
	g.data[regOTZ] = int32(otz)
}

func (g *GTE) avsz4() {
	zsf4 := lo16(g.control[ctrlZSF4])
	sum := int64(g.data[regSZ0]) + int64(g.data[regSZ1]) +
		int64(g.data[regSZ2]) + int64(g.data[regSZ3])
	mac0 := g.setMAC0(zsf4 * sum)
	otz := mac0 >> 12
	if otz < 0 || otz > 0xFFFF {
		g.flags |= flagSZ3
		otz = clampRange(otz, 0, 0xFFFF)
	}
	g.data[regOTZ] = int32(otz)
}

// gpf: MACn = IR0*IRn.
func (g *GTE) gpf(sf, lm bool) {
	shift := uint(0)
	if sf {
		shift = 12
	}
	ir0 := int64(int16(g.data[regIR0]))
	x, y, z := g.irVector()
	g.setMACIR(1, (ir0*x)>>shift, lm)
	g.setMACIR(2, (ir0*y)>>shift, lm)
	g.setMACIR(3, (ir0*z)>>shift, lm)
	g.pushColor()
}

// gpl: MACn = MACn<<(sf*12) + IR0*IRn.
func (g *GTE) gpl(sf, lm bool) {
	shift := uint(0)
	if sf {
		shift = 12
	}
	ir0 := int64(int16(g.data[regIR0]))
	x, y, z := g.irVector()
	g.setMACIR(1, ((int64(g.data[regMAC1])<<shift)+ir0*x)>>shift, lm)
	g.setMACIR(2, ((int64(g.data[regMAC2])<<shift)+ir0*y)>>shift, lm)
	g.setMACIR(3, ((int64(g.data[regMAC3])<<shift)+ir0*z)>>shift, lm)
	g.pushColor()
}

// depthCue interpolates the current MAC color toward the far color by
// IR0: MACn += IR0 * clamp(FCn*0x1000 - MACn).
func (g *GTE) depthCue(sf, lm bool) {
	shift := uint(0)
	if sf {
		shift = 12
	}
	fc := [3]int64{
		int64(g.control[ctrlRFC]),
		int64(g.control[ctrlGFC]),
		int64(g.control[ctrlBFC]),
	}
	ir0 := int64(int16(g.data[regIR0]))
	for n := 1; n <= 3; n++ {
		mac := int64(g.data[regMAC0+n])
		diff := ((fc[n-1] << 12) - mac) >> shift
		diff = clampRange(diff, -32768, 32767)
		g.setMACIR(n, (mac+ir0*diff)>>shift, lm)
	}
}

// depthCueColor (DPCS/DPCT step): source color scaled up, depth-cued,
// pushed through the color FIFO.
func (g *GTE) depthCueColor(color uint32, sf, lm bool) {
	g.setMAC(1, int64(color&0xFF)<<16)
	g.setMAC(2, int64((color>>8)&0xFF)<<16)
	g.setMAC(3, int64((color>>16)&0xFF)<<16)
	g.depthCue(sf, lm)
	g.pushColor()
}

// intpl interpolates the IR vector toward the far color.
func (g *GTE) intpl(sf, lm bool) {
	x, y, z := g.irVector()
	g.setMAC(1, x<<12)
	g.setMAC(2, y<<12)
	g.setMAC(3, z<<12)
	g.depthCue(sf, lm)
	g.pushColor()
}

// dcpl: current color times IR vector, then depth cue.
func (g *GTE) dcpl(sf, lm bool) {
	c := g.rgbc()
	x, y, z := g.irVector()
	g.setMAC(1, int64(c&0xFF)*x<<4)
	g.setMAC(2, int64((c>>8)&0xFF)*y<<4)
	g.setMAC(3, int64((c>>16)&0xFF)*z<<4)
	g.depthCue(sf, lm)
	g.pushColor()
}

// normalColor implements the NCS/NCCS/NCDS family for one vertex:
// light-matrix transform, background-color accumulate, optional color
// multiply, optional depth cue, color FIFO push.
func (g *GTE) normalColor(vertex int, colorMul, cue, sf, lm bool) {
	x, y, z := g.vector(vertex)
	g.mulMatVec(g.matrixAt(ctrlLLM), x, y, z, 0, 0, 0, sf, lm)

	ix, iy, iz := g.irVector()
	g.mulMatVec(g.matrixAt(ctrlLCM), ix, iy, iz,
		int64(g.control[ctrlRBK]), int64(g.control[ctrlGBK]), int64(g.control[ctrlBBK]), sf, lm)

	if colorMul {
		g.colorMultiply(sf, lm)
	}
	if cue {
		g.depthCue(sf, lm)
	}
	g.pushColor()
}

// colorColor implements CC (and CDP with cue): light-color transform of
// the IR vector plus background color, times the current color.
func (g *GTE) colorColor(cue, sf, lm bool) {
	ix, iy, iz := g.irVector()
	g.mulMatVec(g.matrixAt(ctrlLCM), ix, iy, iz,
		int64(g.control[ctrlRBK]), int64(g.control[ctrlGBK]), int64(g.control[ctrlBBK]), sf, lm)

	g.colorMultiply(sf, lm)
	if cue {
		g.depthCue(sf, lm)
	}
	g.pushColor()
}

// colorMultiply scales the IR vector by the RGBC channels.
func (g *GTE) colorMultiply(sf, lm bool) {
	shift := uint(0)
	if sf {
		shift = 12
	}
	c := g.rgbc()
	x, y, z := g.irVector()
	g.setMACIR(1, (int64(c&0xFF)<<4)*x>>shift, lm)
	g.setMACIR(2, (int64((c>>8)&0xFF)<<4)*y>>shift, lm)
	g.setMACIR(3, (int64((c>>16)&0xFF)<<4)*z>>shift, lm)
}

func clampI32(v int64) int64 {
	return clampRange(v, -0x80000000, 0x7FFFFFFF)
}

func clampRange(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
