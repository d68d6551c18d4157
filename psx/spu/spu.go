// Package spu implements the sound processor's register window, sound
// RAM and transfer FIFO. Voice mixing and host audio output are the
// audio backend's concern; the mix hook produces silence.
package spu

import (
	"log/slog"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/irq"
)

const (
	// soundRAMSize is the SPU's private 512 KB sample store.
	soundRAMSize = 512 * 1024

	regVoiceBase  = 0x1F801C00 // 24 voices x 16 bytes
	regVoiceEnd   = 0x1F801D80
	regMainVolL   = 0x1F801D80
	regMainVolR   = 0x1F801D82
	regReverbVolL = 0x1F801D84
	regReverbVolR = 0x1F801D86
	regKeyOnLo    = 0x1F801D88
	regKeyOnHi    = 0x1F801D8A
	regKeyOffLo   = 0x1F801D8C
	regKeyOffHi   = 0x1F801D8E
	regIRQAddr    = 0x1F801DA4
	regXferAddr   = 0x1F801DA6
	regXferFIFO   = 0x1F801DA8
	regControl    = 0x1F801DAA
	regXferCtrl   = 0x1F801DAC
	regStatus     = 0x1F801DAE
)

// SPU holds the register file and sound RAM.
type SPU struct {
	regs     [0x200]uint16 // raw register window backing store
	soundRAM []byte

	control      uint16
	status       uint16
	transferAddr uint32 // current byte address in sound RAM
	irqAddr      uint32

	irqc *irq.Controller
}

func New(irqc *irq.Controller) *SPU {
	return &SPU{
		soundRAM: make([]byte, soundRAMSize),
		irqc:     irqc,
	}
}

// ReadRegister services a 16-bit read in the SPU window.
func (s *SPU) ReadRegister(address uint32) uint16 {
	switch address {
	case regControl:
		return s.control
	case regStatus:
		// SPUSTAT mirrors the low 6 bits of SPUCNT.
		return (s.status &^ 0x3F) | (s.control & 0x3F)
	case regXferAddr:
		return uint16(s.transferAddr / 8)
	case regIRQAddr:
		return uint16(s.irqAddr / 8)
	}
	if address >= addr.SPUStart && address < addr.SPUEnd {
		return s.regs[(address-addr.SPUStart)/2]
	}
	slog.Debug("SPU read outside window", "address", address)
	return 0
}

// WriteRegister services a 16-bit write in the SPU window.
func (s *SPU) WriteRegister(address uint32, value uint16) {
	switch address {
	case regControl:
		s.control = value
		return
	case regXferAddr:
		// Stored in 8-byte units.
		s.transferAddr = uint32(value) * 8
		return
	case regXferFIFO:
		s.DMAWrite(value)
		return
	case regIRQAddr:
		s.irqAddr = uint32(value) * 8
		return
	}
	if address >= addr.SPUStart && address < addr.SPUEnd {
		s.regs[(address-addr.SPUStart)/2] = value
		return
	}
	slog.Debug("SPU write outside window", "address", address, "value", value)
}

// DMAWrite pushes one halfword into sound RAM at the transfer address,
// raising the SPU IRQ when the write crosses the IRQ address while
// enabled.
func (s *SPU) DMAWrite(value uint16) {
	a := s.transferAddr % soundRAMSize
	s.soundRAM[a] = uint8(value)
	s.soundRAM[(a+1)%soundRAMSize] = uint8(value >> 8)

	if s.control&(1<<6) != 0 && s.transferAddr == s.irqAddr {
		s.status |= 1 << 6
		s.irqc.Request(addr.IntSPU)
	}
	s.transferAddr = (s.transferAddr + 2) % soundRAMSize
}

// DMARead pops one halfword from sound RAM at the transfer address.
func (s *SPU) DMARead() uint16 {
	a := s.transferAddr % soundRAMSize
	v := uint16(s.soundRAM[a]) | uint16(s.soundRAM[(a+1)%soundRAMSize])<<8
	s.transferAddr = (s.transferAddr + 2) % soundRAMSize
	return v
}

// MixSamples is the audio-backend hook: it yields count interleaved
// stereo sample pairs for the elapsed tick. With mixing out of scope it
// returns silence, keyed on/off state notwithstanding.
func (s *SPU) MixSamples(count int) []int16 {
	return make([]int16, count*2)
}

// Enabled reports whether the SPU master enable bit is set.
func (s *SPU) Enabled() bool {
	return s.control&(1<<15) != 0
}
