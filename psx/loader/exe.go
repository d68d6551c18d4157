// Package loader parses the PSX-EXE executable format.
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// HeaderSize is the fixed 2 KB header preceding the program image.
const HeaderSize = 2048

// DefaultStackTop is used when the header carries no stack base.
const DefaultStackTop = 0x801FFF00

// ErrBadEXE covers a short file, wrong magic, or an inconsistent size
// field.
var ErrBadEXE = errors.New("malformed PSX-EXE")

var exeMagic = [8]byte{'P', 'S', '-', 'X', ' ', 'E', 'X', 'E'}

// EXE is a parsed executable.
type EXE struct {
	EntryPC     uint32
	InitialGP   uint32
	LoadAddress uint32
	StackBase   uint32
	StackOffset uint32
	Data        []byte
}

// ParseEXE validates the header and returns the program image.
func ParseEXE(raw []byte) (*EXE, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("%w: file shorter than header", ErrBadEXE)
	}
	if [8]byte(raw[:8]) != exeMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadEXE)
	}

	le := binary.LittleEndian
	size := le.Uint32(raw[0x1C:])
	if size%HeaderSize != 0 {
		return nil, fmt.Errorf("%w: size field 0x%X not a multiple of 2048", ErrBadEXE, size)
	}
	if int(size) > len(raw)-HeaderSize {
		return nil, fmt.Errorf("%w: size field exceeds file", ErrBadEXE)
	}

	return &EXE{
		EntryPC:     le.Uint32(raw[0x10:]),
		InitialGP:   le.Uint32(raw[0x14:]),
		LoadAddress: le.Uint32(raw[0x18:]),
		StackBase:   le.Uint32(raw[0x30:]),
		StackOffset: le.Uint32(raw[0x34:]),
		Data:        raw[HeaderSize : HeaderSize+int(size)],
	}, nil
}

// LoadEXE reads and parses an executable from disk.
func LoadEXE(path string) (*EXE, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading executable: %w", err)
	}
	return ParseEXE(raw)
}

// StackPointer resolves the initial SP/FP value.
func (e *EXE) StackPointer() uint32 {
	if e.StackBase == 0 {
		return DefaultStackTop
	}
	return e.StackBase + e.StackOffset
}
