package spu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/irq"
)

func TestVoiceRegistersStore(t *testing.T) {
	s := New(irq.New())
	s.WriteRegister(0x1F801C00, 0x3FFF) // voice 0 volume left
	assert.Equal(t, uint16(0x3FFF), s.ReadRegister(0x1F801C00))
}

func TestStatusMirrorsControlLowBits(t *testing.T) {
	s := New(irq.New())
	s.WriteRegister(regControl, 0xC02A)
	assert.Equal(t, uint16(0x2A), s.ReadRegister(regStatus)&0x3F)
}

func TestTransferFIFORoundTrip(t *testing.T) {
	s := New(irq.New())
	s.WriteRegister(regXferAddr, 0x100) // byte address 0x800

	s.DMAWrite(0x1234)
	s.DMAWrite(0x5678)

	s.WriteRegister(regXferAddr, 0x100)
	assert.Equal(t, uint16(0x1234), s.DMARead())
	assert.Equal(t, uint16(0x5678), s.DMARead())
}

func TestIRQOnTransferAddress(t *testing.T) {
	ic := irq.New()
	s := New(ic)
	s.WriteRegister(regIRQAddr, 0x10)  // byte address 0x80
	s.WriteRegister(regControl, 1<<6|1<<15)
	s.WriteRegister(regXferAddr, 0x10)

	s.DMAWrite(0xBEEF)
	assert.NotZero(t, ic.Status()&(1<<addr.IntSPU))
}

func TestMixSilence(t *testing.T) {
	s := New(irq.New())
	out := s.MixSamples(64)
	assert.Len(t, out, 128)
	for _, v := range out {
		assert.Zero(t, v)
	}
}
