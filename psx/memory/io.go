package memory

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-psyx/psx/addr"
)

// I/O dispatch. Every known register is matched by address; unknown ports
// read 0 and absorb writes so guest probing never faults the host.

func (b *Bus) ioRead32(paddr uint32) uint32 {
	switch {
	case paddr >= addr.Exp1Base && paddr <= addr.ComDelay:
		return b.memCtrl[(paddr-addr.Exp1Base)>>2]
	case paddr >= addr.SIO0Data && paddr < addr.RAMSizePort:
		if b.SIO != nil {
			return b.SIO.ReadRegister(paddr)
		}
		return 0
	case paddr == addr.RAMSizePort:
		return b.ramSizeReg
	case paddr == addr.IRQStatus:
		return uint32(b.IRQ.Status())
	case paddr == addr.IRQMask:
		return uint32(b.IRQ.Mask())
	case paddr >= addr.DMABase && paddr < addr.DMABase+0x80:
		if b.DMA != nil {
			return b.DMA.ReadRegister(paddr - addr.DMABase)
		}
		return 0
	case paddr >= addr.TimerBase && paddr < addr.TimerEnd:
		if b.Timers != nil {
			return b.Timers.ReadRegister(paddr)
		}
		return 0
	case paddr >= addr.CDROMBase && paddr < addr.CDROMEnd:
		// 32-bit reads of the byte registers replicate the byte lanes.
		lo := uint32(b.ioRead8(paddr))
		return lo | lo<<8 | lo<<16 | lo<<24
	case paddr == addr.GPURead:
		if b.GPU != nil {
			return b.GPU.ReadData()
		}
		return 0
	case paddr == addr.GPUStat:
		if b.GPU != nil {
			return b.GPU.Status()
		}
		return 0
	case paddr >= addr.SPUStart && paddr < addr.SPUEnd:
		lo := uint32(b.ioRead16(paddr))
		hi := uint32(b.ioRead16(paddr + 2))
		return lo | hi<<16
	}
	slog.Debug("unhandled I/O read", "address", fmt.Sprintf("0x%08X", paddr))
	return 0
}

func (b *Bus) ioWrite32(paddr uint32, value uint32) {
	switch {
	case paddr >= addr.Exp1Base && paddr <= addr.ComDelay:
		b.memCtrl[(paddr-addr.Exp1Base)>>2] = value
		return
	case paddr >= addr.SIO0Data && paddr < addr.RAMSizePort:
		if b.SIO != nil {
			b.SIO.WriteRegister(paddr, value)
		}
		return
	case paddr == addr.RAMSizePort:
		b.ramSizeReg = value
		return
	case paddr == addr.IRQStatus:
		b.IRQ.WriteStatus(uint16(value))
		return
	case paddr == addr.IRQMask:
		b.IRQ.WriteMask(uint16(value))
		return
	case paddr >= addr.DMABase && paddr < addr.DMABase+0x80:
		if b.DMA != nil {
			b.DMA.WriteRegister(paddr-addr.DMABase, value)
		}
		return
	case paddr >= addr.TimerBase && paddr < addr.TimerEnd:
		if b.Timers != nil {
			b.Timers.WriteRegister(paddr, value)
		}
		return
	case paddr >= addr.CDROMBase && paddr < addr.CDROMEnd:
		b.ioWrite8(paddr, uint8(value))
		return
	case paddr == addr.GP0:
		if b.GPU != nil {
			b.GPU.WriteGP0(value)
		}
		return
	case paddr == addr.GP1:
		if b.GPU != nil {
			b.GPU.WriteGP1(value)
		}
		return
	case paddr >= addr.SPUStart && paddr < addr.SPUEnd:
		b.ioWrite16(paddr, uint16(value))
		b.ioWrite16(paddr+2, uint16(value>>16))
		return
	}
	slog.Debug("unhandled I/O write", "address", fmt.Sprintf("0x%08X", paddr), "value", fmt.Sprintf("0x%08X", value))
}

func (b *Bus) ioRead16(paddr uint32) uint16 {
	switch {
	case paddr >= addr.SPUStart && paddr < addr.SPUEnd:
		if b.SPU != nil {
			return b.SPU.ReadRegister(paddr)
		}
		return 0
	case paddr >= addr.SIO0Data && paddr < addr.RAMSizePort:
		if b.SIO != nil {
			return uint16(b.SIO.ReadRegister(paddr))
		}
		return 0
	case paddr == addr.IRQStatus:
		return b.IRQ.Status()
	case paddr == addr.IRQMask:
		return b.IRQ.Mask()
	case paddr >= addr.TimerBase && paddr < addr.TimerEnd:
		if b.Timers != nil {
			return uint16(b.Timers.ReadRegister(paddr))
		}
		return 0
	}
	aligned := paddr &^ 3
	word := b.ioRead32(aligned)
	return uint16(word >> ((paddr & 2) * 8))
}

func (b *Bus) ioWrite16(paddr uint32, value uint16) {
	switch {
	case paddr >= addr.SPUStart && paddr < addr.SPUEnd:
		if b.SPU != nil {
			b.SPU.WriteRegister(paddr, value)
		}
		return
	case paddr >= addr.SIO0Data && paddr < addr.RAMSizePort:
		if b.SIO != nil {
			b.SIO.WriteRegister(paddr, uint32(value))
		}
		return
	case paddr == addr.IRQStatus:
		b.IRQ.WriteStatus(value)
		return
	case paddr == addr.IRQMask:
		b.IRQ.WriteMask(value)
		return
	case paddr >= addr.TimerBase && paddr < addr.TimerEnd:
		if b.Timers != nil {
			b.Timers.WriteRegister(paddr, uint32(value))
		}
		return
	}
	b.ioWrite32(paddr&^3, uint32(value))
}

func (b *Bus) ioRead8(paddr uint32) uint8 {
	if paddr >= addr.CDROMBase && paddr < addr.CDROMEnd {
		if b.CDROM != nil {
			return b.CDROM.ReadRegister(paddr - addr.CDROMBase)
		}
		return 0
	}
	aligned := paddr &^ 3
	word := b.ioRead32(aligned)
	return uint8(word >> ((paddr & 3) * 8))
}

func (b *Bus) ioWrite8(paddr uint32, value uint8) {
	if paddr >= addr.CDROMBase && paddr < addr.CDROMEnd {
		if b.CDROM != nil {
			b.CDROM.WriteRegister(paddr-addr.CDROMBase, value)
		}
		return
	}
	b.ioWrite32(paddr&^3, uint32(value))
}
