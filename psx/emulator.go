// Package psx wires the console together: CPU, bus, scheduler and every
// peripheral, driven frame by frame.
package psx

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-psyx/psx/addr"
	"github.com/valerio/go-psyx/psx/cdrom"
	"github.com/valerio/go-psyx/psx/cpu"
	"github.com/valerio/go-psyx/psx/dma"
	"github.com/valerio/go-psyx/psx/gpu"
	"github.com/valerio/go-psyx/psx/gte"
	"github.com/valerio/go-psyx/psx/irq"
	"github.com/valerio/go-psyx/psx/loader"
	"github.com/valerio/go-psyx/psx/memory"
	"github.com/valerio/go-psyx/psx/sched"
	"github.com/valerio/go-psyx/psx/sio"
	"github.com/valerio/go-psyx/psx/spu"
	"github.com/valerio/go-psyx/psx/timer"
)

// Emulator is the root struct and entry point for running the emulation.
type Emulator struct {
	sched  *sched.Scheduler
	irqc   *irq.Controller
	bus    *memory.Bus
	cpu    *cpu.CPU
	gte    *gte.GTE
	gpu    *gpu.GPU
	dma    *dma.Controller
	cdrom  *cdrom.CDROM
	spu    *spu.SPU
	sio    *sio.Port
	timers *timer.Timers

	frameCount uint64
}

// New constructs a fully wired console with no BIOS or disc loaded.
func New() *Emulator {
	e := &Emulator{}

	e.sched = sched.New()
	e.irqc = irq.New()
	e.bus = memory.New()

	e.gpu = gpu.New(e.irqc)
	e.spu = spu.New(e.irqc)
	e.sio = sio.New(e.irqc)
	e.timers = timer.New(e.sched, e.irqc)
	e.cdrom = cdrom.New(e.sched, e.irqc)

	e.dma = dma.New(e.bus.RAM())
	e.dma.GPU = e.gpu
	e.dma.CDROM = e.cdrom
	e.dma.SPU = e.spu

	e.bus.IRQ = e.irqc
	e.bus.GPU = e.gpu
	e.bus.DMA = e.dma
	e.bus.CDROM = e.cdrom
	e.bus.SPU = e.spu
	e.bus.SIO = e.sio
	e.bus.Timers = e.timers

	e.gte = gte.New()
	e.cpu = cpu.New(e.bus, e.irqc, e.gte)

	e.gpu.RegisterEvents(e.sched)
	e.timers.RegisterEvents(e.sched)
	e.gpu.OnHBlank = e.timers.HBlankPulse
	e.gpu.OnVBlankEdge = e.timers.SetVBlank

	return e
}

// NewWithBIOS constructs the console and loads the BIOS image at path.
func NewWithBIOS(path string) (*Emulator, error) {
	e := New()
	if err := e.bus.LoadBIOS(path); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadDisc opens a CUE/BIN image and inserts it into the drive.
func (e *Emulator) LoadDisc(cuePath string) error {
	disc, err := cdrom.OpenCUE(cuePath)
	if err != nil {
		return err
	}
	e.cdrom.InsertDisc(disc)
	slog.Info("disc inserted", "cue", cuePath, "sectors", disc.Sectors())
	return nil
}

// LoadEXE sideloads a PSX-EXE, placing its image in RAM and pointing the
// CPU at the entry point. The BIOS must already have run its
// initialization, or the executable must not rely on it.
func (e *Emulator) LoadEXE(path string) error {
	exe, err := loader.LoadEXE(path)
	if err != nil {
		return err
	}
	if err := e.bus.WriteBlock(exe.LoadAddress, exe.Data); err != nil {
		return fmt.Errorf("placing executable: %w", err)
	}

	sp := exe.StackPointer()
	e.cpu.SetReg(28, exe.InitialGP)
	e.cpu.SetReg(29, sp)
	e.cpu.SetReg(30, sp)
	e.cpu.SetPC(exe.EntryPC)

	slog.Info("executable loaded",
		"pc", fmt.Sprintf("0x%08X", exe.EntryPC),
		"load_address", fmt.Sprintf("0x%08X", exe.LoadAddress),
		"size", len(exe.Data))
	return nil
}

// SetTracer installs a CPU instruction tracer.
func (e *Emulator) SetTracer(t cpu.Tracer) {
	e.cpu.SetTracer(t)
}

// SetButtons forwards pad state to the controller port.
func (e *Emulator) SetButtons(buttons uint16) {
	e.sio.SetButtons(buttons)
}

// Reset returns the console to its power-on state, preserving the BIOS
// image and any inserted disc.
func (e *Emulator) Reset() {
	e.bus.Reset()
	e.cpu.Reset()
	e.gte.Reset()
	e.gpu.Reset()
	e.cdrom.Reset()
	e.irqc.Reset()
}

// RunUntilFrame executes until the next frame boundary. The scheduler
// reports the CPU's cycle budget between peripheral events; after each
// burst the due events fire and the DMA controller runs any started
// channels.
func (e *Emulator) RunUntilFrame() error {
	e.sched.SetFrameTarget(gpu.CyclesPerFrame)

	for !e.sched.FrameTargetReached() {
		budget := e.sched.Budget()

		var consumed int64
		for consumed < budget {
			cycles, err := e.cpu.Step()
			consumed += cycles
			if err != nil {
				e.sched.AddCycles(consumed)
				return fmt.Errorf("cpu fault at 0x%08X: %w", e.cpu.PC(), err)
			}
		}
		e.sched.AddCycles(consumed)

		e.timers.Tick(consumed)
		if e.dma.Tick() {
			e.irqc.Request(addr.IntDMA)
		}

		for _, h := range e.sched.RunEvents() {
			e.gpu.HandleEvent(h)
			e.cdrom.HandleEvent(h)
			e.timers.HandleEvent(h)
		}
	}

	e.frameCount++
	if e.frameCount%600 == 0 {
		slog.Debug("frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%08X", e.cpu.PC()))
	}
	return nil
}

// Framebuffer returns the current display area as RGB24 bytes.
func (e *Emulator) Framebuffer() []byte {
	return e.gpu.Framebuffer()
}

// DisplaySize returns the current display resolution.
func (e *Emulator) DisplaySize() (int, int) {
	return e.gpu.DisplaySize()
}

// FrameCount returns the number of completed frames.
func (e *Emulator) FrameCount() uint64 {
	return e.frameCount
}
