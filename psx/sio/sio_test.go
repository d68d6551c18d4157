package sio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/irq"
)

func newSelectedPort() (*Port, *irq.Controller) {
	ic := irq.New()
	p := New(ic)
	p.WriteRegister(addr.SIO0Ctrl, 0x1003) // TX enable, select, ack IRQ enable
	return p, ic
}

func TestDigitalPadHandshake(t *testing.T) {
	p, _ := newSelectedPort()
	p.SetButtons(ButtonCross | ButtonStart)

	p.WriteRegister(addr.SIO0Data, 0x01)
	p.ReadRegister(addr.SIO0Data)

	p.WriteRegister(addr.SIO0Data, 0x42)
	assert.Equal(t, uint32(0x41), p.ReadRegister(addr.SIO0Data))

	p.WriteRegister(addr.SIO0Data, 0x00)
	assert.Equal(t, uint32(0x5A), p.ReadRegister(addr.SIO0Data))

	p.WriteRegister(addr.SIO0Data, 0x00)
	lo := p.ReadRegister(addr.SIO0Data)
	p.WriteRegister(addr.SIO0Data, 0x00)
	hi := p.ReadRegister(addr.SIO0Data)

	buttons := ^uint16(lo | hi<<8)
	assert.Equal(t, uint16(ButtonCross|ButtonStart), buttons)
}

func TestStatTXReady(t *testing.T) {
	p, _ := newSelectedPort()
	v := p.ReadRegister(addr.SIO0Stat)
	assert.NotZero(t, v&1)
	assert.Zero(t, v&(1<<1), "RX empty before any transfer")

	p.WriteRegister(addr.SIO0Data, 0x01)
	v = p.ReadRegister(addr.SIO0Stat)
	assert.NotZero(t, v&(1<<1), "RX loaded after transfer")
}

func TestAckInterrupt(t *testing.T) {
	p, ic := newSelectedPort()
	p.WriteRegister(addr.SIO0Data, 0x01)
	p.WriteRegister(addr.SIO0Data, 0x42)
	assert.NotZero(t, ic.Status()&(1<<addr.IntController))
}

func TestUnselectedPortIgnoresAddress(t *testing.T) {
	ic := irq.New()
	p := New(ic)
	p.WriteRegister(addr.SIO0Data, 0x01)
	p.WriteRegister(addr.SIO0Data, 0x42)
	assert.Equal(t, uint32(0xFF), p.ReadRegister(addr.SIO0Data), "hi-Z without selection")
}
