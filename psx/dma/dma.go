// Package dma implements the seven-channel DMA controller moving words
// between main RAM and the GPU, CD-ROM, SPU and the ordering-table
// builder.
package dma

import (
	"encoding/binary"
	"log/slog"
	"sort"
)

// Channel indices.
const (
	ChMDECIn = 0
	ChMDECOut = 1
	ChGPU    = 2
	ChCDROM  = 3
	ChSPU    = 4
	ChPIO    = 5
	ChOTC    = 6
)

// CHCR bits.
const (
	chcrFromRAM = 1 << 0
	chcrStepBack = 1 << 1
	chcrStart   = 1 << 24
	chcrTrigger = 1 << 28
)

// GPUPort is what channel 2 needs from the GPU.
type GPUPort interface {
	WriteGP0(value uint32)
	ReadData() uint32
}

// CDROMPort streams the drive's sector data buffer byte by byte.
type CDROMPort interface {
	ReadDataByte() uint8
}

// SPUPort is the sound RAM transfer FIFO.
type SPUPort interface {
	DMAWrite(halfword uint16)
	DMARead() uint16
}

// channel holds one channel's three registers.
type channel struct {
	baseAddress    uint32
	blockControl   uint32
	channelControl uint32
}

func (c *channel) active() bool {
	return c.channelControl&chcrStart != 0
}

func (c *channel) syncMode() uint32 {
	return (c.channelControl >> 9) & 3
}

func (c *channel) fromRAM() bool {
	return c.channelControl&chcrFromRAM != 0
}

func (c *channel) step() uint32 {
	if c.channelControl&chcrStepBack != 0 {
		return ^uint32(3) // -4
	}
	return 4
}

// ready reports whether the channel wants to run: started, and in
// immediate mode also manually triggered.
func (c *channel) ready() bool {
	if !c.active() {
		return false
	}
	if c.syncMode() == 0 {
		return c.channelControl&chcrTrigger != 0
	}
	return true
}

func (c *channel) finish() {
	c.channelControl &^= chcrStart | chcrTrigger
}

// wordCount decodes BCR for block-synced transfers.
func (c *channel) wordCount() int {
	size := c.blockControl & 0xFFFF
	if size == 0 {
		size = 0x10000
	}
	if c.syncMode() == 0 {
		return int(size)
	}
	count := (c.blockControl >> 16) & 0xFFFF
	return int(size) * int(count)
}

// Controller owns the channel registers, DPCR and DICR, and executes
// transfers to completion within a single tick.
type Controller struct {
	channels  [7]channel
	control   uint32 // DPCR
	interrupt uint32 // DICR

	ram   []byte
	GPU   GPUPort
	CDROM CDROMPort
	SPU   SPUPort
}

func New(ram []byte) *Controller {
	return &Controller{
		ram:     ram,
		control: 0x0FEDCBA9, // priorities 1-7 by channel number, every channel enabled
	}
}

// ramMask keeps word addresses inside the 2 MB RAM.
const ramMask = 0x1FFFFC

func (d *Controller) readWord(address uint32) uint32 {
	return binary.LittleEndian.Uint32(d.ram[address&ramMask:])
}

func (d *Controller) writeWord(address uint32, value uint32) {
	binary.LittleEndian.PutUint32(d.ram[address&ramMask:], value)
}

func (d *Controller) channelEnabled(ch int) bool {
	return d.control&(0x8<<(ch*4)) != 0
}

func (d *Controller) channelPriority(ch int) uint32 {
	return (d.control >> (ch * 4)) & 7
}

// Tick runs every enabled, started channel to completion in priority
// order (higher priority value first). It returns true when the DICR
// master flag transitioned to set, so the caller raises the DMA IRQ.
func (d *Controller) Tick() bool {
	var pending []int
	for ch := range d.channels {
		if d.channelEnabled(ch) && d.channels[ch].ready() {
			pending = append(pending, ch)
		}
	}
	if len(pending) == 0 {
		return false
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return d.channelPriority(pending[i]) > d.channelPriority(pending[j])
	})

	raise := false
	for _, ch := range pending {
		d.execute(ch)
		if d.complete(ch) {
			raise = true
		}
	}
	return raise
}

func (d *Controller) execute(ch int) {
	c := &d.channels[ch]
	switch ch {
	case ChGPU:
		d.transferGPU(c)
	case ChCDROM:
		d.transferCDROM(c)
	case ChSPU:
		d.transferSPU(c)
	case ChOTC:
		d.transferOTC(c)
	default:
		slog.Warn("DMA transfer on unwired channel", "channel", ch)
	}
}

// complete clears the channel's busy state, latches its interrupt flag
// and recomputes the master flag. Returns true if the master flag rose.
func (d *Controller) complete(ch int) bool {
	d.channels[ch].finish()
	d.interrupt |= 1 << (24 + ch)
	wasSet := d.interrupt&(1<<31) != 0
	d.updateMasterFlag()
	return !wasSet && d.interrupt&(1<<31) != 0
}

// updateMasterFlag computes DICR bit 31:
// force OR (master_enable AND ANY(channel_enable AND channel_flag)).
func (d *Controller) updateMasterFlag() {
	force := d.interrupt&(1<<15) != 0
	masterEnable := d.interrupt&(1<<23) != 0
	enables := (d.interrupt >> 16) & 0x7F
	flags := (d.interrupt >> 24) & 0x7F

	if force || (masterEnable && enables&flags != 0) {
		d.interrupt |= 1 << 31
	} else {
		d.interrupt &^= 1 << 31
	}
}

func (d *Controller) transferGPU(c *channel) {
	if c.syncMode() == 2 {
		d.transferGPULinkedList(c)
		return
	}
	address := c.baseAddress
	step := c.step()
	words := c.wordCount()
	for i := 0; i < words; i++ {
		if c.fromRAM() {
			d.GPU.WriteGP0(d.readWord(address))
		} else {
			d.writeWord(address, d.GPU.ReadData())
		}
		address += step
	}
}

// transferGPULinkedList walks an ordering table: each node header packs
// the next-node pointer (low 24 bits) and a payload word count (high 8),
// forwarded to GP0. Bit 23 of the header terminates the chain.
func (d *Controller) transferGPULinkedList(c *channel) {
	address := c.baseAddress
	// A malformed chain could loop; bound by the worst-case node count.
	for i := 0; i < 1<<16; i++ {
		header := d.readWord(address)
		count := header >> 24
		for w := uint32(1); w <= count; w++ {
			d.GPU.WriteGP0(d.readWord(address + w*4))
		}
		if header&0x800000 != 0 {
			return
		}
		address = header & 0xFFFFFF
	}
	slog.Warn("DMA linked list did not terminate", "base", c.baseAddress)
}

func (d *Controller) transferCDROM(c *channel) {
	address := c.baseAddress
	step := c.step()
	for i := 0; i < c.wordCount(); i++ {
		word := uint32(d.CDROM.ReadDataByte()) |
			uint32(d.CDROM.ReadDataByte())<<8 |
			uint32(d.CDROM.ReadDataByte())<<16 |
			uint32(d.CDROM.ReadDataByte())<<24
		d.writeWord(address, word)
		address += step
	}
}

func (d *Controller) transferSPU(c *channel) {
	address := c.baseAddress
	step := c.step()
	for i := 0; i < c.wordCount(); i++ {
		if c.fromRAM() {
			word := d.readWord(address)
			d.SPU.DMAWrite(uint16(word))
			d.SPU.DMAWrite(uint16(word >> 16))
		} else {
			lo := uint32(d.SPU.DMARead())
			hi := uint32(d.SPU.DMARead())
			d.writeWord(address, lo|hi<<16)
		}
		address += step
	}
}

// transferOTC builds the reverse-linked ordering table: every entry
// points at the previous word, the last one holds the end-of-list
// sentinel.
func (d *Controller) transferOTC(c *channel) {
	count := c.blockControl & 0xFFFF
	if count == 0 {
		count = 0x10000
	}
	address := c.baseAddress
	for i := uint32(0); i < count; i++ {
		if i == count-1 {
			d.writeWord(address, 0x00FFFFFF)
		} else {
			d.writeWord(address, (address-4)&0x1FFFFF)
		}
		address -= 4
	}
}

// ReadRegister reads a DMA register; offset is relative to 0x1F801080.
func (d *Controller) ReadRegister(offset uint32) uint32 {
	switch {
	case offset < 0x70:
		ch := &d.channels[offset>>4]
		switch offset & 0xF {
		case 0x0:
			return ch.baseAddress
		case 0x4:
			return ch.blockControl
		case 0x8:
			return ch.channelControl
		}
	case offset == 0x70:
		return d.control
	case offset == 0x74:
		return d.interrupt
	}
	slog.Debug("unhandled DMA register read", "offset", offset)
	return 0
}

// WriteRegister writes a DMA register; offset is relative to
// 0x1F801080.
func (d *Controller) WriteRegister(offset uint32, value uint32) {
	switch {
	case offset < 0x70:
		ch := &d.channels[offset>>4]
		switch offset & 0xF {
		case 0x0:
			ch.baseAddress = value & 0xFFFFFF
		case 0x4:
			ch.blockControl = value
		case 0x8:
			ch.channelControl = value
		}
		return
	case offset == 0x70:
		d.control = value
		return
	case offset == 0x74:
		// Bits 0-5 always read zero; 6-23 are plain storage; flag bits
		// 24-30 clear where a 1 is written; 31 is computed.
		d.interrupt = (d.interrupt & 0x7F000000) | (value & 0x00FFFFC0)
		d.interrupt &^= (value >> 24 & 0x7F) << 24
		d.updateMasterFlag()
		return
	}
	slog.Debug("unhandled DMA register write", "offset", offset, "value", value)
}
