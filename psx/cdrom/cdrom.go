// Package cdrom implements the optical-disc controller: the
// command/response FIFO protocol, multi-stage interrupt delivery with
// accurate delays, and MSF-addressed sector streaming.
package cdrom

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/bit"
	"github.com/valerio/go-psyx/psx/irq"
	"github.com/valerio/go-psyx/psx/sched"
)

// Command delays in CPU cycles.
const (
	defaultAckDelay = 5_000
	initAckDelay    = 20_000
	readAckDelay    = 7_000

	getIDSecondDelay   = 33_000
	readTOCSecondDelay = 500_000
	initSecondDelay    = 70_000
	seekSecondDelay    = 100_000
	pauseSecondDelay   = 10_000

	cyclesPerSector1x = 13_300
	cyclesPerSector2x = 6_650

	// minInterruptGap is the minimum spacing between two interrupt
	// deliveries; earlier attempts are pushed to lastDelivery + gap.
	minInterruptGap = 1_000
)

const fifoSize = 16

// driveState is the mechanical state of the drive.
type driveState uint8

const (
	stateIdle driveState = iota
	stateReading
	stateSeeking
	statePlaying
)

// driveMode is the SetMode register.
type driveMode struct {
	doubleSpeed bool
	xaADPCM     bool
	wholeSector bool // deliver 2352-byte sectors instead of 2048
	filter      bool
}

func modeFromByte(v uint8) driveMode {
	return driveMode{
		doubleSpeed: v&0x80 != 0,
		xaADPCM:     v&0x40 != 0,
		wholeSector: v&0x20 != 0,
		filter:      v&0x08 != 0,
	}
}

// secondResponse identifies the queued second-stage reply.
type secondResponse uint8

const (
	secondNone secondResponse = iota
	secondGetID
	secondReadTOC
	secondInit
	secondSeek
	secondPause
)

func (r secondResponse) delay() sched.TickCount {
	switch r {
	case secondGetID:
		return getIDSecondDelay
	case secondReadTOC:
		return readTOCSecondDelay
	case secondInit:
		return initSecondDelay
	case secondSeek:
		return seekSecondDelay
	case secondPause:
		return pauseSecondDelay
	}
	return 0
}

// pendingIRQ is an interrupt waiting out the minimum delivery gap.
type pendingIRQ struct {
	level uint8
}

// CDROM is the drive controller.
type CDROM struct {
	index uint8

	paramFIFO    []uint8
	responseFIFO []uint8
	dataBuffer   []uint8
	readIndex    int

	state    driveState
	position Position
	seekTo   Position
	mode     driveMode

	interruptFlag   uint8
	interruptEnable uint8

	motorOn   bool
	errorFlag bool
	seekError bool
	idError   bool
	muted     bool

	filterFile    uint8
	filterChannel uint8

	disc *Disc

	pendingCommand uint8
	pendingSecond  secondResponse
	queuedIRQs     []pendingIRQ
	lastDelivery   sched.TickCount

	s    *sched.Scheduler
	irqc *irq.Controller

	firstEvent  sched.Handle
	secondEvent sched.Handle
	sectorEvent sched.Handle
	irqGapEvent sched.Handle
}

func New(s *sched.Scheduler, irqc *irq.Controller) *CDROM {
	c := &CDROM{
		s:       s,
		irqc:    irqc,
		motorOn: true,
	}
	c.firstEvent = s.RegisterEvent("cdrom.first_response")
	c.secondEvent = s.RegisterEvent("cdrom.second_response")
	c.sectorEvent = s.RegisterPeriodicEvent("cdrom.sector_read", cyclesPerSector1x)
	c.irqGapEvent = s.RegisterEvent("cdrom.irq_gap")
	return c
}

// InsertDisc attaches a disc image.
func (c *CDROM) InsertDisc(d *Disc) {
	c.disc = d
}

// HasDisc reports whether an image is loaded.
func (c *CDROM) HasDisc() bool {
	return c.disc != nil
}

// HandleEvent reacts to a fired scheduler event owned by the drive.
func (c *CDROM) HandleEvent(h sched.Handle) {
	switch h {
	case c.firstEvent:
		c.executeCommand(c.pendingCommand)
	case c.secondEvent:
		c.executeSecondResponse()
	case c.sectorEvent:
		c.readSector()
	case c.irqGapEvent:
		c.flushQueuedIRQs()
	}
}

// statusByte encodes the drive status delivered with every response.
func (c *CDROM) statusByte() uint8 {
	var v uint8
	if c.errorFlag {
		v |= 1 << 0
	}
	if c.motorOn {
		v |= 1 << 1
	}
	if c.seekError {
		v |= 1 << 2
	}
	if c.idError {
		v |= 1 << 3
	}
	if c.state == stateReading {
		v |= 1 << 5
	}
	if c.state == stateSeeking {
		v |= 1 << 6
	}
	if c.state == statePlaying {
		v |= 1 << 7
	}
	return v
}

func (c *CDROM) pushResponse(bytes ...uint8) {
	for _, b := range bytes {
		if len(c.responseFIFO) < fifoSize {
			c.responseFIFO = append(c.responseFIFO, b)
		}
	}
}

func (c *CDROM) popResponse() uint8 {
	if len(c.responseFIFO) == 0 {
		return 0
	}
	v := c.responseFIFO[0]
	c.responseFIFO = c.responseFIFO[1:]
	return v
}

func (c *CDROM) popParam() uint8 {
	if len(c.paramFIFO) == 0 {
		return 0
	}
	v := c.paramFIFO[0]
	c.paramFIFO = c.paramFIFO[1:]
	return v
}

// triggerInterrupt latches an interrupt level, honoring the minimum
// inter-delivery gap.
func (c *CDROM) triggerInterrupt(level uint8) {
	now := c.s.Cycles()
	if now-c.lastDelivery < minInterruptGap {
		c.queuedIRQs = append(c.queuedIRQs, pendingIRQ{level: level})
		c.s.Schedule(c.irqGapEvent, c.lastDelivery+minInterruptGap-now)
		return
	}
	c.deliver(level)
}

func (c *CDROM) deliver(level uint8) {
	c.interruptFlag |= 1 << (level - 1)
	c.lastDelivery = c.s.Cycles()
	if c.interruptFlag&c.interruptEnable != 0 {
		c.irqc.Request(addr.IntCDROM)
	}
}

func (c *CDROM) flushQueuedIRQs() {
	if len(c.queuedIRQs) == 0 {
		return
	}
	next := c.queuedIRQs[0]
	c.queuedIRQs = c.queuedIRQs[1:]
	c.deliver(next.level)
	if len(c.queuedIRQs) > 0 {
		c.s.Schedule(c.irqGapEvent, minInterruptGap)
	}
}

// ackAndStat pushes the status byte and signals INT3.
func (c *CDROM) ackAndStat() {
	c.pushResponse(c.statusByte())
	c.triggerInterrupt(3)
}

// errorResponse pushes the error pair (stat|1, code) and signals INT5.
func (c *CDROM) errorResponse(code uint8) {
	c.errorFlag = true
	c.pushResponse(c.statusByte()|0x01, code)
	c.triggerInterrupt(5)
}

func ackDelayFor(cmd uint8) sched.TickCount {
	switch cmd {
	case 0x0A:
		return initAckDelay
	case 0x06, 0x1B, 0x09:
		return readAckDelay
	default:
		return defaultAckDelay
	}
}

// queueSecond schedules the second-stage response.
func (c *CDROM) queueSecond(r secondResponse) {
	c.pendingSecond = r
	c.s.Schedule(c.secondEvent, r.delay())
}

// writeCommand latches a command byte; execution happens when the
// first-response event fires after the command's ack delay.
func (c *CDROM) writeCommand(cmd uint8) {
	c.pendingCommand = cmd
	c.s.Schedule(c.firstEvent, ackDelayFor(cmd))
	slog.Debug("CD-ROM command scheduled", "command", fmt.Sprintf("0x%02X", cmd))
}

func (c *CDROM) executeCommand(cmd uint8) {
	switch cmd {
	case 0x01: // GetStat
		c.ackAndStat()
		c.errorFlag = false
		c.seekError = false
	case 0x02: // SetLoc
		if len(c.paramFIFO) < 3 {
			c.errorResponse(0x20)
			return
		}
		mm, ss, ff := c.popParam(), c.popParam(), c.popParam()
		if !bit.IsBCDValid(mm) || !bit.IsBCDValid(ss) || !bit.IsBCDValid(ff) {
			c.errorResponse(0x10)
			return
		}
		c.seekTo = FromBCD(mm, ss, ff)
		c.ackAndStat()
	case 0x06, 0x1B: // ReadN / ReadS
		if !c.HasDisc() {
			c.errorResponse(0x80)
			return
		}
		c.position = c.seekTo
		c.state = stateReading
		c.ackAndStat()
		period := sched.TickCount(cyclesPerSector1x)
		if c.mode.doubleSpeed {
			period = cyclesPerSector2x
		}
		c.s.SetPeriod(c.sectorEvent, period)
		c.s.Schedule(c.sectorEvent, period)
	case 0x09: // Pause
		c.ackAndStat()
		c.state = stateIdle
		c.s.Deactivate(c.sectorEvent)
		c.queueSecond(secondPause)
	case 0x0A: // Init
		c.mode = driveMode{}
		c.state = stateIdle
		c.s.Deactivate(c.sectorEvent)
		c.ackAndStat()
		c.queueSecond(secondInit)
	case 0x0B: // Mute
		c.muted = true
		c.ackAndStat()
	case 0x0C: // Demute
		c.muted = false
		c.ackAndStat()
	case 0x0D: // SetFilter
		if len(c.paramFIFO) < 2 {
			c.errorResponse(0x20)
			return
		}
		c.filterFile = c.popParam()
		c.filterChannel = c.popParam()
		c.ackAndStat()
	case 0x0E: // SetMode
		if len(c.paramFIFO) < 1 {
			c.errorResponse(0x20)
			return
		}
		c.mode = modeFromByte(c.popParam())
		c.ackAndStat()
	case 0x10: // GetLocL
		mm, ss, ff := c.position.BCD()
		c.pushResponse(mm, ss, ff, 0x02, 0, 0, 0, 0)
		c.triggerInterrupt(3)
	case 0x11: // GetLocP
		mm, ss, ff := c.position.BCD()
		c.pushResponse(0x01, 0x01, mm, ss, ff, mm, ss, ff)
		c.triggerInterrupt(3)
	case 0x13: // GetTN
		c.pushResponse(c.statusByte(), bit.DecToBCD(1), bit.DecToBCD(1))
		c.triggerInterrupt(3)
	case 0x14: // GetTD
		track := c.popParam()
		_ = track
		var end Position
		if c.disc != nil {
			end = FromLBA(int32(c.disc.Sectors()))
		}
		c.pushResponse(c.statusByte(), bit.DecToBCD(end.Minute), bit.DecToBCD(end.Second))
		c.triggerInterrupt(3)
	case 0x15, 0x16: // SeekL / SeekP
		c.state = stateSeeking
		c.ackAndStat()
		c.queueSecond(secondSeek)
	case 0x19: // Test
		sub := c.popParam()
		if sub == 0x20 {
			// Controller version: year, month, version, region.
			c.pushResponse(0x94, 0x09, 0x19, 0xC0)
			c.triggerInterrupt(3)
			return
		}
		c.errorResponse(0x10)
	case 0x1A: // GetID
		c.ackAndStat()
		c.queueSecond(secondGetID)
	case 0x1E: // ReadTOC
		c.ackAndStat()
		c.queueSecond(secondReadTOC)
	default:
		slog.Warn("unknown CD-ROM command", "command", fmt.Sprintf("0x%02X", cmd))
		c.errorResponse(0x40)
	}
	c.paramFIFO = c.paramFIFO[:0]
}

func (c *CDROM) executeSecondResponse() {
	r := c.pendingSecond
	c.pendingSecond = secondNone
	switch r {
	case secondGetID:
		if !c.HasDisc() {
			c.idError = true
			c.pushResponse(0x08, 0x40, 0, 0, 0, 0, 0, 0)
			c.triggerInterrupt(5)
			return
		}
		// Licensed data disc, region A.
		c.pushResponse(0x02, 0x00, 0x20, 0x00, 'S', 'C', 'E', 'A')
		c.triggerInterrupt(2)
	case secondSeek:
		c.position = c.seekTo
		c.state = stateIdle
		c.pushResponse(c.statusByte())
		c.triggerInterrupt(2)
	case secondInit, secondReadTOC, secondPause:
		c.pushResponse(c.statusByte())
		c.triggerInterrupt(2)
	}
}

// readSector delivers one sector into the data buffer and signals INT1.
func (c *CDROM) readSector() {
	if c.state != stateReading || c.disc == nil {
		c.s.Deactivate(c.sectorEvent)
		return
	}
	raw, err := c.disc.ReadSector(c.position.ToLBA())
	if err != nil {
		slog.Warn("CD-ROM sector read failed", "error", err)
		c.state = stateIdle
		c.s.Deactivate(c.sectorEvent)
		c.errorResponse(0x04)
		return
	}
	if c.mode.wholeSector {
		c.dataBuffer = raw
	} else {
		c.dataBuffer = raw[DataOffset : DataOffset+DataSize]
	}
	c.readIndex = 0
	c.position = c.position.Next()

	c.pushResponse(c.statusByte())
	c.triggerInterrupt(1)
}

// ReadDataByte consumes one byte of the sector data buffer (DMA channel
// 3 and the data register).
func (c *CDROM) ReadDataByte() uint8 {
	if c.readIndex >= len(c.dataBuffer) {
		return 0
	}
	v := c.dataBuffer[c.readIndex]
	c.readIndex++
	return v
}

// Reset returns the controller to power-on state; a loaded disc stays
// in the drive.
func (c *CDROM) Reset() {
	c.index = 0
	c.paramFIFO = c.paramFIFO[:0]
	c.responseFIFO = c.responseFIFO[:0]
	c.dataBuffer = nil
	c.readIndex = 0
	c.state = stateIdle
	c.position = Position{}
	c.seekTo = Position{}
	c.mode = driveMode{}
	c.interruptFlag = 0
	c.interruptEnable = 0
	c.errorFlag = false
	c.seekError = false
	c.idError = false
	c.queuedIRQs = nil
}
