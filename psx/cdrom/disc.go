package cdrom

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SectorSize is the raw sector size on disc, including sync, header and
// subheader.
const SectorSize = 2352

// DataOffset is where the 2048-byte user data begins inside a raw mode 2
// sector.
const DataOffset = 24

// DataSize is the user-data payload of one sector.
const DataSize = 2048

var (
	// ErrNoDisc names the no-disc condition. No function in this package
	// returns it; the drive reports a missing disc to the guest through
	// its INT5 error response.
	ErrNoDisc = errors.New("no disc loaded")
	// ErrMalformedImage covers CUE files without a FILE directive and
	// out-of-range sector reads.
	ErrMalformedImage = errors.New("malformed disc image")
)

// Disc provides LBA-addressed raw sector access to a CUE/BIN pair. The
// CUE file is parsed only to locate the companion BIN.
type Disc struct {
	bin     *os.File
	sectors int64
}

// OpenCUE parses the CUE file's first FILE directive and opens the BIN
// it names, resolved relative to the CUE's directory.
func OpenCUE(path string) (*Disc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CUE: %w", err)
	}

	binName := ""
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToUpper(line), "FILE") {
			continue
		}
		start := strings.IndexByte(line, '"')
		if start < 0 {
			continue
		}
		end := strings.IndexByte(line[start+1:], '"')
		if end < 0 {
			continue
		}
		binName = line[start+1 : start+1+end]
		break
	}
	if binName == "" {
		return nil, fmt.Errorf("%w: no FILE directive in %s", ErrMalformedImage, path)
	}

	binPath := filepath.Join(filepath.Dir(path), binName)
	f, err := os.Open(binPath)
	if err != nil {
		return nil, fmt.Errorf("opening BIN: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat BIN: %w", err)
	}

	return &Disc{bin: f, sectors: info.Size() / SectorSize}, nil
}

// ReadSector returns the raw 2352-byte sector at the given block
// address.
func (d *Disc) ReadSector(lba int32) ([]byte, error) {
	if lba < 0 || int64(lba) >= d.sectors {
		return nil, fmt.Errorf("%w: sector %d out of range", ErrMalformedImage, lba)
	}
	buf := make([]byte, SectorSize)
	if _, err := d.bin.ReadAt(buf, int64(lba)*SectorSize); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading sector %d: %w", lba, err)
	}
	return buf, nil
}

// Sectors returns the image length in sectors.
func (d *Disc) Sectors() int64 {
	return d.sectors
}

// Close releases the BIN file.
func (d *Disc) Close() error {
	return d.bin.Close()
}
