package cdrom

import "log/slog"

// Register access. Four byte-wide registers with four index planes
// selected by the low two bits of register 0.

// ReadRegister reads one of the four registers; reg is 0-3.
func (c *CDROM) ReadRegister(reg uint32) uint8 {
	switch reg {
	case 0:
		return c.readStatusRegister()
	case 1:
		switch c.index {
		case 0, 1:
			return c.popResponse()
		default:
			return c.ReadDataByte()
		}
	case 2:
		switch c.index {
		case 0, 2:
			return 0xE0 | c.interruptFlag
		default:
			return c.interruptEnable
		}
	case 3:
		switch c.index {
		case 0, 2:
			return c.interruptEnable
		default:
			return 0xE0 | c.interruptFlag
		}
	}
	slog.Warn("invalid CD-ROM register read", "reg", reg)
	return 0
}

// WriteRegister writes one of the four registers; reg is 0-3.
func (c *CDROM) WriteRegister(reg uint32, value uint8) {
	switch reg {
	case 0:
		c.index = value & 3
	case 1:
		switch c.index {
		case 0:
			c.writeCommand(value)
		default:
			c.pushParam(value)
		}
	case 2:
		switch c.index {
		case 0, 2:
			c.acknowledgeInterrupt(value)
		default:
			c.interruptEnable = value & 0x1F
		}
	case 3:
		switch c.index {
		case 0:
			// Request register: BFRD latches the sector into the data
			// FIFO; the buffer is already exposed, so only a cleared
			// bit needs action.
			if value&0x80 == 0 {
				c.readIndex = len(c.dataBuffer)
			}
		case 1:
			c.acknowledgeInterrupt(value)
		default:
			// Audio volume / apply registers; mixing is the backend's
			// concern.
		}
	default:
		slog.Warn("invalid CD-ROM register write", "reg", reg, "value", value)
	}
}

func (c *CDROM) readStatusRegister() uint8 {
	v := c.index & 3
	if len(c.paramFIFO) == 0 {
		v |= 1 << 3
	}
	if len(c.paramFIFO) < fifoSize {
		v |= 1 << 4
	}
	if len(c.responseFIFO) > 0 {
		v |= 1 << 5
	}
	if c.readIndex < len(c.dataBuffer) {
		v |= 1 << 6
	}
	if c.state == stateSeeking || c.state == stateReading {
		v |= 1 << 7
	}
	return v
}

func (c *CDROM) pushParam(value uint8) {
	if len(c.paramFIFO) < fifoSize {
		c.paramFIFO = append(c.paramFIFO, value)
	}
}

// acknowledgeInterrupt clears the interrupt levels whose bits are set in
// value. Clearing INT5 also clears the latched error status. When no
// delivery is queued, acknowledging any level also drops the unread rest
// of the response FIFO.
func (c *CDROM) acknowledgeInterrupt(value uint8) {
	c.interruptFlag &^= value & 0x1F
	if value&0x1F != 0 && len(c.queuedIRQs) == 0 {
		c.responseFIFO = c.responseFIFO[:0]
	}
	if value&0x10 != 0 {
		c.errorFlag = false
		c.seekError = false
		c.idError = false
	}
	if value&0x40 != 0 {
		c.paramFIFO = c.paramFIFO[:0]
	}
}
