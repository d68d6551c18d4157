package cdrom

import "github.com/valerio/go-psyx/psx/bit"

// FramesPerSecond is the CD frame rate: 75 sectors per second.
const FramesPerSecond = 75

// leadInFrames is the two-second pre-gap before the data area.
const leadInFrames = 150

// Position is an MSF address stored in decimal (not BCD); conversion to
// the wire format happens at the register boundary.
type Position struct {
	Minute uint8
	Second uint8
	Frame  uint8
}

// ToLBA converts to a logical block address.
func (p Position) ToLBA() int32 {
	return (int32(p.Minute)*60+int32(p.Second))*FramesPerSecond + int32(p.Frame) - leadInFrames
}

// FromLBA converts a logical block address back to MSF.
func FromLBA(lba int32) Position {
	frames := lba + leadInFrames
	return Position{
		Minute: uint8(frames / (60 * FramesPerSecond)),
		Second: uint8(frames / FramesPerSecond % 60),
		Frame:  uint8(frames % FramesPerSecond),
	}
}

// FromBCD builds a position from the BCD bytes of a SetLoc command.
func FromBCD(minute, second, frame uint8) Position {
	return Position{
		Minute: bit.BCDToDec(minute),
		Second: bit.BCDToDec(second),
		Frame:  bit.BCDToDec(frame),
	}
}

// BCD returns the position's wire encoding.
func (p Position) BCD() (minute, second, frame uint8) {
	return bit.DecToBCD(p.Minute), bit.DecToBCD(p.Second), bit.DecToBCD(p.Frame)
}

// Next advances by one frame.
func (p Position) Next() Position {
	p.Frame++
	if p.Frame >= FramesPerSecond {
		p.Frame = 0
		p.Second++
		if p.Second >= 60 {
			p.Second = 0
			p.Minute++
		}
	}
	return p
}
