package cdrom

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-psyx/psx/irq"
	"github.com/valerio/go-psyx/psx/sched"
)

func newTestDrive() (*CDROM, *sched.Scheduler, *irq.Controller) {
	s := sched.New()
	ic := irq.New()
	return New(s, ic), s, ic
}

// run advances the scheduler and dispatches fired events to the drive.
func run(c *CDROM, s *sched.Scheduler, cycles int64) {
	for cycles > 0 {
		step := s.Budget()
		if step > cycles {
			step = cycles
		}
		s.AddCycles(step)
		cycles -= step
		for _, h := range s.RunEvents() {
			c.HandleEvent(h)
		}
	}
}

func TestMSFLBARoundTrip(t *testing.T) {
	assert.Equal(t, int32(0), Position{0, 2, 0}.ToLBA())
	assert.Equal(t, int32(4350), Position{1, 0, 0}.ToLBA())
	assert.Equal(t, Position{0, 2, 0}, FromLBA(0))
	assert.Equal(t, Position{1, 0, 0}, FromLBA(4350))

	for _, lba := range []int32{0, 1, 74, 75, 4500, 263894} {
		assert.Equal(t, lba, FromLBA(lba).ToLBA())
	}
	for _, p := range []Position{{0, 2, 0}, {12, 34, 56}, {73, 59, 74}} {
		assert.Equal(t, p, FromLBA(p.ToLBA()))
	}
}

func TestGetStatAcknowledge(t *testing.T) {
	c, s, _ := newTestDrive()

	c.WriteRegister(0, 0)    // index 0
	c.WriteRegister(1, 0x01) // GetStat

	// Before the ack delay elapses nothing is visible.
	run(c, s, defaultAckDelay-1)
	assert.Zero(t, c.interruptFlag)

	run(c, s, 1)
	assert.Equal(t, uint8(1<<2), c.interruptFlag, "INT3 latched")

	// Response FIFO holds the status byte (motor on).
	c.WriteRegister(0, 0)
	assert.Equal(t, uint8(0x02), c.ReadRegister(1))
}

func TestGetIDSecondResponse(t *testing.T) {
	c, s, ic := newTestDrive()
	c.WriteRegister(0, 1) // index 1: interrupt enable plane
	c.WriteRegister(2, 0x1F)
	c.WriteRegister(0, 0)

	// Fake disc presence: OpenCUE is exercised separately.
	c.InsertDisc(&Disc{sectors: 100})

	c.WriteRegister(1, 0x1A) // GetID
	run(c, s, defaultAckDelay)
	assert.Equal(t, uint8(1<<2), c.interruptFlag)
	assert.True(t, ic.Status()&(1<<2) != 0, "CDROM IRQ raised")

	// Acknowledge INT3; second response arrives after its own delay and
	// the minimum gap.
	c.WriteRegister(0, 1)
	c.WriteRegister(3, 0x07)
	c.WriteRegister(0, 0)
	assert.Zero(t, c.interruptFlag)

	run(c, s, getIDSecondDelay+minInterruptGap)
	assert.Equal(t, uint8(1<<1), c.interruptFlag, "INT2 latched")

	want := []uint8{0x02, 0x00, 0x20, 0x00, 'S', 'C', 'E', 'A'}
	got := make([]uint8, 0, 8)
	for range want {
		got = append(got, c.ReadRegister(1))
	}
	assert.Equal(t, want, got)
}

func TestGetIDWithoutDiscErrors(t *testing.T) {
	c, s, _ := newTestDrive()
	c.WriteRegister(1, 0x1A)
	run(c, s, defaultAckDelay+getIDSecondDelay+minInterruptGap)
	assert.NotZero(t, c.interruptFlag&(1<<4), "INT5 for missing disc")
}

func TestInterruptMinimumGap(t *testing.T) {
	c, s, _ := newTestDrive()

	// Move past the power-on window so the first delivery is immediate.
	s.AddCycles(2 * minInterruptGap)

	c.triggerInterrupt(3)
	first := s.Cycles()
	c.acknowledgeInterrupt(0x1F)

	// A second delivery inside the gap is deferred.
	s.AddCycles(10)
	c.triggerInterrupt(2)
	assert.Zero(t, c.interruptFlag)

	run(c, s, minInterruptGap)
	assert.Equal(t, uint8(1<<1), c.interruptFlag)
	assert.GreaterOrEqual(t, c.lastDelivery-first, int64(minInterruptGap))
}

func TestInterruptAckClearsErrorOnINT5(t *testing.T) {
	c, _, _ := newTestDrive()
	c.errorFlag = true
	c.idError = true
	c.interruptFlag = 0x1F

	c.acknowledgeInterrupt(0x10)
	assert.Equal(t, uint8(0x0F), c.interruptFlag)
	assert.False(t, c.errorFlag)
	assert.False(t, c.idError)
}

func TestUnknownCommandSignalsINT5(t *testing.T) {
	c, s, _ := newTestDrive()
	c.WriteRegister(1, 0xFF)
	run(c, s, defaultAckDelay)
	assert.NotZero(t, c.interruptFlag&(1<<4))

	// Error pair: stat with error bit, then the code.
	stat := c.ReadRegister(1)
	assert.NotZero(t, stat&0x01)
	assert.Equal(t, uint8(0x40), c.ReadRegister(1))
}

func TestStatusRegisterFIFOBits(t *testing.T) {
	c, _, _ := newTestDrive()

	v := c.ReadRegister(0)
	assert.NotZero(t, v&(1<<3), "param FIFO empty")
	assert.NotZero(t, v&(1<<4), "param FIFO not full")
	assert.Zero(t, v&(1<<5), "response FIFO empty")

	c.WriteRegister(0, 1)
	c.WriteRegister(1, 0x42) // parameter push under index 1
	c.WriteRegister(0, 0)
	v = c.ReadRegister(0)
	assert.Zero(t, v&(1<<3))
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	bin := make([]byte, SectorSize*3)
	for sector := 0; sector < 3; sector++ {
		for i := 0; i < SectorSize; i += 4 {
			binary.LittleEndian.PutUint32(bin[sector*SectorSize+i:], uint32(sector<<16|i))
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game.bin"), bin, 0o644))

	cue := "FILE \"game.bin\" BINARY\n  TRACK 01 MODE2/2352\n    INDEX 01 00:00:00\n"
	cuePath := filepath.Join(dir, "game.cue")
	require.NoError(t, os.WriteFile(cuePath, []byte(cue), 0o644))
	return cuePath
}

func TestOpenCUEAndSectorRead(t *testing.T) {
	cuePath := writeTestImage(t)
	disc, err := OpenCUE(cuePath)
	require.NoError(t, err)
	defer disc.Close()

	assert.Equal(t, int64(3), disc.Sectors())

	sector, err := disc.ReadSector(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1<<16), binary.LittleEndian.Uint32(sector))

	_, err = disc.ReadSector(99)
	assert.ErrorIs(t, err, ErrMalformedImage)
}

func TestReadNDeliversSectors(t *testing.T) {
	cuePath := writeTestImage(t)
	disc, err := OpenCUE(cuePath)
	require.NoError(t, err)
	defer disc.Close()

	c, s, _ := newTestDrive()
	c.InsertDisc(disc)

	// SetMode: whole sector reads.
	c.WriteRegister(0, 1)
	c.WriteRegister(1, 0x20)
	c.WriteRegister(0, 0)
	c.WriteRegister(1, 0x0E)
	run(c, s, defaultAckDelay)
	c.WriteRegister(0, 1)
	c.WriteRegister(3, 0x1F)
	c.WriteRegister(0, 0)

	// SetLoc 00:02:01 (LBA 1), then ReadN.
	c.WriteRegister(0, 1)
	c.WriteRegister(1, 0x00)
	c.WriteRegister(1, 0x02)
	c.WriteRegister(1, 0x01)
	c.WriteRegister(0, 0)
	c.WriteRegister(1, 0x02)
	run(c, s, defaultAckDelay+minInterruptGap)
	c.WriteRegister(0, 1)
	c.WriteRegister(3, 0x1F)
	c.WriteRegister(0, 0)

	c.WriteRegister(1, 0x06) // ReadN
	run(c, s, readAckDelay+cyclesPerSector1x+minInterruptGap)

	assert.NotZero(t, c.interruptFlag&(1<<0), "INT1 for sector data")
	assert.Len(t, c.dataBuffer, SectorSize)
	assert.Equal(t, uint32(1<<16), binary.LittleEndian.Uint32(c.dataBuffer))

	// The drive advanced to the next sector position.
	assert.Equal(t, Position{0, 2, 2}, c.position)
}
