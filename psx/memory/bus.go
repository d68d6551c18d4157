// Package memory implements the system bus: RAM, BIOS ROM, scratchpad,
// expansion regions, and the memory-mapped I/O dispatch that routes CPU
// accesses to the peripherals.
package memory

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/irq"
)

// GPUPort is the slice of the GPU the bus needs: the two command ports
// and their read-back registers.
type GPUPort interface {
	WriteGP0(value uint32)
	WriteGP1(value uint32)
	ReadData() uint32
	Status() uint32
}

// DMAPort exposes the DMA controller's register file. Offsets are
// relative to the DMA register base.
type DMAPort interface {
	ReadRegister(offset uint32) uint32
	WriteRegister(offset uint32, value uint32)
}

// CDROMPort exposes the drive controller's four byte-wide registers.
type CDROMPort interface {
	ReadRegister(reg uint32) uint8
	WriteRegister(reg uint32, value uint8)
}

// SPUPort exposes the 16-bit SPU register window.
type SPUPort interface {
	ReadRegister(address uint32) uint16
	WriteRegister(address uint32, value uint16)
}

// SIOPort exposes the controller/serial port registers.
type SIOPort interface {
	ReadRegister(address uint32) uint32
	WriteRegister(address uint32, value uint32)
}

// TimerPort exposes the three timer register triplets. Addresses are the
// full physical register addresses.
type TimerPort interface {
	ReadRegister(address uint32) uint32
	WriteRegister(address uint32, value uint32)
}

// prefillEntry records a word written to low RAM so the CPU can install
// it in the instruction cache before the BIOS zero-fills the region.
type prefillEntry struct {
	Address uint32
	Word    uint32
}

type addrRange struct {
	Start uint32
	End   uint32
}

// Bus resolves every CPU access to a backing store or peripheral.
type Bus struct {
	ram     []byte
	bios    []byte
	scratch []byte

	cacheControl uint32
	memCtrl      [9]uint32 // expansion base / delay configuration ports
	ramSizeReg   uint32
	post         uint8

	GPU    GPUPort
	DMA    DMAPort
	CDROM  CDROMPort
	SPU    SPUPort
	SIO    SIOPort
	Timers TimerPort
	IRQ    *irq.Controller

	// Instruction-cache maintenance queues, drained by the CPU at each
	// step boundary.
	prefillQueue         []prefillEntry
	invalidateQueue      []uint32
	invalidateRangeQueue []addrRange
}

// prefill window: exception vectors and the BIOS-copied handlers live in
// the first 64 KB of RAM.
const prefillEnd = 0x10000

func New() *Bus {
	return &Bus{
		ram:     make([]byte, addr.RAMSize),
		bios:    make([]byte, addr.BIOSSize),
		scratch: make([]byte, addr.ScratchSize),
	}
}

// Reset zeroes RAM, scratchpad and the cache queues; the loaded BIOS
// image is preserved.
func (b *Bus) Reset() {
	clear(b.ram)
	clear(b.scratch)
	b.prefillQueue = b.prefillQueue[:0]
	b.invalidateQueue = b.invalidateQueue[:0]
	b.invalidateRangeQueue = b.invalidateRangeQueue[:0]
}

// LoadBIOS reads a raw 512 KB BIOS image into ROM.
func (b *Bus) LoadBIOS(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading BIOS: %w", err)
	}
	return b.LoadBIOSData(data)
}

// LoadBIOSData installs an in-memory BIOS image.
func (b *Bus) LoadBIOSData(data []byte) error {
	if uint32(len(data)) != addr.BIOSSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBIOSSize, len(data), addr.BIOSSize)
	}
	copy(b.bios, data)
	slog.Info("BIOS loaded", "size", len(data))
	return nil
}

// RAM exposes the backing RAM slice for the DMA controller, which moves
// words without going through the CPU-facing access path.
func (b *Bus) RAM() []byte {
	return b.ram
}

// translate strips the virtual segment, yielding a physical address.
// KUSEG, KSEG0 and KSEG1 mirror the same physical space; KSEG2 holds
// only the cache-control register.
func translate(vaddr uint32) uint32 {
	switch vaddr >> 29 {
	case 4: // KSEG0
		return vaddr & 0x1FFFFFFF
	case 5: // KSEG1
		return vaddr & 0x1FFFFFFF
	case 6, 7: // KSEG2
		if vaddr == 0xFFFE0130 {
			return addr.CacheControl
		}
		return vaddr
	default: // KUSEG
		return vaddr & 0x1FFFFFFF
	}
}

// IsUncached reports whether a virtual address bypasses the instruction
// cache (KSEG1).
func IsUncached(vaddr uint32) bool {
	return vaddr>>29 == 5
}

func (b *Bus) Read8(vaddr uint32) (uint8, error) {
	paddr := translate(vaddr)
	switch {
	case paddr < 0x00800000:
		return b.ram[paddr&(addr.RAMSize-1)], nil
	case paddr >= addr.ScratchStart && paddr < addr.ScratchEnd:
		return b.scratch[paddr&(addr.ScratchSize-1)], nil
	case paddr >= addr.BIOSStart && paddr < addr.BIOSStart+addr.BIOSSize:
		return b.bios[paddr-addr.BIOSStart], nil
	case paddr >= addr.IOStart && paddr < addr.IOEnd:
		return b.ioRead8(paddr), nil
	case paddr >= addr.Exp1Start && paddr < addr.Exp1End:
		return expansion1Read(paddr), nil
	case paddr >= addr.Exp2Start && paddr < addr.Exp2End:
		return 0xFF, nil
	case isExpansionHole(paddr):
		return 0xFF, nil
	case paddr == addr.CacheControl:
		return uint8(b.cacheControl), nil
	}
	return 0, accessError(vaddr)
}

func (b *Bus) Read16(vaddr uint32) (uint16, error) {
	if vaddr&1 != 0 {
		return 0, alignError(vaddr)
	}
	paddr := translate(vaddr)
	switch {
	case paddr < 0x00800000:
		o := paddr & (addr.RAMSize - 1)
		return uint16(b.ram[o]) | uint16(b.ram[o+1])<<8, nil
	case paddr >= addr.ScratchStart && paddr < addr.ScratchEnd:
		o := paddr & (addr.ScratchSize - 1)
		return uint16(b.scratch[o]) | uint16(b.scratch[o+1])<<8, nil
	case paddr >= addr.BIOSStart && paddr < addr.BIOSStart+addr.BIOSSize:
		o := paddr - addr.BIOSStart
		return uint16(b.bios[o]) | uint16(b.bios[o+1])<<8, nil
	case paddr >= addr.IOStart && paddr < addr.IOEnd:
		return b.ioRead16(paddr), nil
	case paddr >= addr.Exp1Start && paddr < addr.Exp1End:
		return uint16(expansion1Read(paddr)) | uint16(expansion1Read(paddr+1))<<8, nil
	case paddr >= addr.Exp2Start && paddr < addr.Exp2End, isExpansionHole(paddr):
		return 0xFFFF, nil
	}
	return 0, accessError(vaddr)
}

func (b *Bus) Read32(vaddr uint32) (uint32, error) {
	if vaddr&3 != 0 {
		return 0, alignError(vaddr)
	}
	paddr := translate(vaddr)
	switch {
	case paddr < 0x00800000:
		return b.ramWord(paddr & (addr.RAMSize - 1)), nil
	case paddr >= addr.ScratchStart && paddr < addr.ScratchEnd:
		o := paddr & (addr.ScratchSize - 1)
		return uint32(b.scratch[o]) | uint32(b.scratch[o+1])<<8 |
			uint32(b.scratch[o+2])<<16 | uint32(b.scratch[o+3])<<24, nil
	case paddr >= addr.BIOSStart && paddr < addr.BIOSStart+addr.BIOSSize:
		o := paddr - addr.BIOSStart
		return uint32(b.bios[o]) | uint32(b.bios[o+1])<<8 |
			uint32(b.bios[o+2])<<16 | uint32(b.bios[o+3])<<24, nil
	case paddr >= addr.IOStart && paddr < addr.IOEnd:
		return b.ioRead32(paddr), nil
	case paddr >= addr.Exp1Start && paddr < addr.Exp1End:
		if paddr-addr.Exp1Start < addr.Exp1HeaderSz {
			return 0, nil
		}
		return 0xFFFFFFFF, nil
	case paddr >= addr.Exp2Start && paddr < addr.Exp2End, isExpansionHole(paddr):
		return 0xFFFFFFFF, nil
	case paddr == addr.CacheControl:
		return b.cacheControl, nil
	}
	return 0, accessError(vaddr)
}

func (b *Bus) Write8(vaddr uint32, value uint8) error {
	paddr := translate(vaddr)
	switch {
	case paddr < 0x00800000:
		o := paddr & (addr.RAMSize - 1)
		b.ram[o] = value
		b.invalidateQueue = append(b.invalidateQueue, o&^3)
		return nil
	case paddr >= addr.ScratchStart && paddr < addr.ScratchEnd:
		b.scratch[paddr&(addr.ScratchSize-1)] = value
		return nil
	case paddr >= addr.BIOSStart && paddr < addr.BIOSStart+addr.BIOSSize:
		return nil // ROM writes are silently ignored
	case paddr >= addr.IOStart && paddr < addr.IOEnd:
		b.ioWrite8(paddr, value)
		return nil
	case paddr == addr.POST:
		b.post = value
		slog.Debug("POST", "value", fmt.Sprintf("0x%02X", value))
		return nil
	case paddr >= addr.Exp1Start && paddr < addr.Exp1End,
		paddr >= addr.Exp2Start && paddr < addr.Exp2End,
		isExpansionHole(paddr):
		return nil
	}
	return accessError(vaddr)
}

func (b *Bus) Write16(vaddr uint32, value uint16) error {
	if vaddr&1 != 0 {
		return alignError(vaddr)
	}
	paddr := translate(vaddr)
	switch {
	case paddr < 0x00800000:
		o := paddr & (addr.RAMSize - 1)
		b.ram[o] = uint8(value)
		b.ram[o+1] = uint8(value >> 8)
		b.invalidateQueue = append(b.invalidateQueue, o&^3)
		return nil
	case paddr >= addr.ScratchStart && paddr < addr.ScratchEnd:
		o := paddr & (addr.ScratchSize - 1)
		b.scratch[o] = uint8(value)
		b.scratch[o+1] = uint8(value >> 8)
		return nil
	case paddr >= addr.BIOSStart && paddr < addr.BIOSStart+addr.BIOSSize:
		return nil
	case paddr >= addr.IOStart && paddr < addr.IOEnd:
		b.ioWrite16(paddr, value)
		return nil
	case paddr >= addr.Exp1Start && paddr < addr.Exp1End,
		paddr >= addr.Exp2Start && paddr < addr.Exp2End,
		isExpansionHole(paddr):
		return nil
	}
	return accessError(vaddr)
}

func (b *Bus) Write32(vaddr uint32, value uint32) error {
	if vaddr&3 != 0 {
		return alignError(vaddr)
	}
	paddr := translate(vaddr)
	switch {
	case paddr < 0x00800000:
		o := paddr & (addr.RAMSize - 1)
		b.setRAMWord(o, value)
		b.invalidateQueue = append(b.invalidateQueue, o)
		if o < prefillEnd {
			b.prefillQueue = append(b.prefillQueue, prefillEntry{Address: o, Word: value})
		}
		return nil
	case paddr >= addr.ScratchStart && paddr < addr.ScratchEnd:
		o := paddr & (addr.ScratchSize - 1)
		b.scratch[o] = uint8(value)
		b.scratch[o+1] = uint8(value >> 8)
		b.scratch[o+2] = uint8(value >> 16)
		b.scratch[o+3] = uint8(value >> 24)
		return nil
	case paddr >= addr.BIOSStart && paddr < addr.BIOSStart+addr.BIOSSize:
		return nil
	case paddr >= addr.IOStart && paddr < addr.IOEnd:
		b.ioWrite32(paddr, value)
		return nil
	case paddr == addr.CacheControl:
		b.cacheControl = value
		return nil
	case paddr >= addr.Exp1Start && paddr < addr.Exp1End,
		paddr >= addr.Exp2Start && paddr < addr.Exp2End,
		isExpansionHole(paddr):
		return nil
	}
	return accessError(vaddr)
}

// WriteBlock places a byte range directly into RAM (executable loading)
// and enqueues a single range invalidation instead of one record per
// word.
func (b *Bus) WriteBlock(vaddr uint32, data []byte) error {
	paddr := translate(vaddr)
	if paddr >= addr.RAMSize || paddr+uint32(len(data)) > addr.RAMSize {
		return accessError(vaddr)
	}
	copy(b.ram[paddr:], data)
	b.invalidateRangeQueue = append(b.invalidateRangeQueue, addrRange{Start: paddr, End: paddr + uint32(len(data))})
	return nil
}

// DrainCacheQueues hands the pending invalidation and prefill records to
// the CPU. The caller must process singles, then ranges, then prefills.
func (b *Bus) DrainCacheQueues(
	single func(paddr uint32),
	rng func(start, end uint32),
	prefill func(paddr, word uint32),
) {
	for _, a := range b.invalidateQueue {
		single(a)
	}
	b.invalidateQueue = b.invalidateQueue[:0]
	for _, r := range b.invalidateRangeQueue {
		rng(r.Start, r.End)
	}
	b.invalidateRangeQueue = b.invalidateRangeQueue[:0]
	for _, p := range b.prefillQueue {
		prefill(p.Address, p.Word)
	}
	b.prefillQueue = b.prefillQueue[:0]
}

func (b *Bus) ramWord(o uint32) uint32 {
	return uint32(b.ram[o]) | uint32(b.ram[o+1])<<8 |
		uint32(b.ram[o+2])<<16 | uint32(b.ram[o+3])<<24
}

func (b *Bus) setRAMWord(o uint32, value uint32) {
	b.ram[o] = uint8(value)
	b.ram[o+1] = uint8(value >> 8)
	b.ram[o+2] = uint8(value >> 16)
	b.ram[o+3] = uint8(value >> 24)
}

// expansion1Read returns 0x00 inside the ROM-header window so the BIOS
// sees "no expansion ROM present", and all-ones elsewhere.
func expansion1Read(paddr uint32) uint8 {
	if paddr-addr.Exp1Start < addr.Exp1HeaderSz {
		return 0x00
	}
	return 0xFF
}

// isExpansionHole covers the unpopulated address space between the RAM
// mirrors and expansion 1, and expansion 3.
func isExpansionHole(paddr uint32) bool {
	return (paddr >= 0x00800000 && paddr < addr.Exp1Start) ||
		(paddr >= 0x1FA00000 && paddr < 0x1FC00000)
}

func accessError(vaddr uint32) error {
	return fmt.Errorf("%w: address 0x%08X", ErrInvalidMemoryAccess, vaddr)
}

func alignError(vaddr uint32) error {
	return fmt.Errorf("%w: address 0x%08X", ErrUnalignedAccess, vaddr)
}
