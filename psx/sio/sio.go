// Package sio implements the controller/serial port registers and the
// digital-pad handshake the BIOS polls. Actual input capture is the
// frontend's concern: it feeds button state through SetButtons.
package sio

import (
	"log/slog"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/irq"
)

// Button bits of the digital pad, active low on the wire.
const (
	ButtonSelect   = 1 << 0
	ButtonStart    = 1 << 3
	ButtonUp       = 1 << 4
	ButtonRight    = 1 << 5
	ButtonDown     = 1 << 6
	ButtonLeft     = 1 << 7
	ButtonL2       = 1 << 8
	ButtonR2       = 1 << 9
	ButtonL1       = 1 << 10
	ButtonR1       = 1 << 11
	ButtonTriangle = 1 << 12
	ButtonCircle   = 1 << 13
	ButtonCross    = 1 << 14
	ButtonSquare   = 1 << 15
)

// pad protocol phases.
type padPhase uint8

const (
	padIdle padPhase = iota
	padIDLow
	padIDHigh
	padButtonsLow
	padButtonsHigh
)

// Port is the SIO0 controller port with one digital pad attached.
type Port struct {
	rxData   uint8
	rxLoaded bool
	mode     uint16
	ctrl     uint16
	baud     uint16

	phase   padPhase
	buttons uint16 // pressed = bit set; inverted on the wire

	irqc *irq.Controller
}

func New(irqc *irq.Controller) *Port {
	return &Port{irqc: irqc}
}

// SetButtons updates the pad state from the frontend.
func (p *Port) SetButtons(buttons uint16) {
	p.buttons = buttons
}

// ReadRegister services a read of the SIO0 register block.
func (p *Port) ReadRegister(address uint32) uint32 {
	switch address {
	case addr.SIO0Data:
		v := p.rxData
		p.rxData = 0xFF
		p.rxLoaded = false
		return uint32(v)
	case addr.SIO0Stat:
		// TX ready (bits 0, 2); RX FIFO not empty in bit 1.
		v := uint32(0x5)
		if p.rxLoaded {
			v |= 1 << 1
		}
		return v
	case addr.SIO0Mode:
		return uint32(p.mode)
	case addr.SIO0Ctrl:
		return uint32(p.ctrl)
	case addr.SIO0Baud:
		return uint32(p.baud)
	}
	slog.Debug("unhandled SIO read", "address", address)
	return 0
}

// WriteRegister services a write of the SIO0 register block.
func (p *Port) WriteRegister(address uint32, value uint32) {
	switch address {
	case addr.SIO0Data:
		p.transfer(uint8(value))
	case addr.SIO0Mode:
		p.mode = uint16(value)
	case addr.SIO0Ctrl:
		p.ctrl = uint16(value)
		if value&0x40 != 0 { // reset
			p.phase = padIdle
			p.rxData = 0xFF
			p.rxLoaded = false
		}
	case addr.SIO0Baud:
		p.baud = uint16(value)
	default:
		slog.Debug("unhandled SIO write", "address", address, "value", value)
	}
}

// transfer clocks one byte out to the pad and one byte back, following
// the digital-pad protocol: 0x01 address, 0x42 poll, then ID 0x41 0x5A
// and two button bytes.
func (p *Port) transfer(tx uint8) {
	var rx uint8 = 0xFF

	switch p.phase {
	case padIdle:
		if tx == 0x01 && p.selected() {
			p.phase = padIDLow
		}
	case padIDLow:
		if tx == 0x42 {
			rx = 0x41 // digital pad ID low
			p.phase = padIDHigh
		} else {
			p.phase = padIdle
		}
	case padIDHigh:
		rx = 0x5A
		p.phase = padButtonsLow
	case padButtonsLow:
		rx = uint8(^p.buttons)
		p.phase = padButtonsHigh
	case padButtonsHigh:
		rx = uint8(^p.buttons >> 8)
		p.phase = padIdle
	}

	p.rxData = rx
	p.rxLoaded = true

	// Acknowledge interrupt when enabled and the pad is still selected.
	if p.ctrl&(1<<12) != 0 && p.phase != padIdle {
		p.irqc.Request(addr.IntController)
	}
}

// selected reports whether port 1 is selected for transfer (CTRL TX
// enable + joy select, slot 1).
func (p *Port) selected() bool {
	return p.ctrl&0x3 == 0x3 && p.ctrl&(1<<13) == 0
}
