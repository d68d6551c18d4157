package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/urfave/cli"
	"github.com/valerio/go-psyx/psx"
	"github.com/valerio/go-psyx/psx/sio"
	"github.com/valerio/go-psyx/psx/timing"
)

// Terminal cells are taller than wide; the lower half block packs two
// vertical pixels into one cell.
const halfBlock = '▄'

type TerminalRenderer struct {
	screen   tcell.Screen
	emulator *psx.Emulator
	limiter  timing.Limiter
	running  bool
}

func NewTerminalRenderer(emu *psx.Emulator) (*TerminalRenderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}

	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}

	return &TerminalRenderer{
		screen:   screen,
		emulator: emu,
		limiter:  timing.NewFrameLimiter(),
		running:  true,
	}, nil
}

func (t *TerminalRenderer) Run() error {
	defer func() {
		slog.Info("Finishing terminal")
		t.screen.Fini()
	}()

	t.screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite))
	t.screen.Clear()

	// Handle input in a separate goroutine
	go t.handleInput()

	// catch SIGINT and SIGTERM
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for t.running {
		select {
		case <-signals:
			t.running = false
			slog.Info("Received signal to stop")
			return nil
		default:
		}

		if err := t.emulator.RunUntilFrame(); err != nil {
			return err
		}
		t.render()
		t.screen.Show()
		t.limiter.WaitForNextFrame()
	}

	return nil
}

func (t *TerminalRenderer) handleInput() {
	for t.running {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape {
				t.running = false
				return
			}
			t.emulator.SetButtons(buttonsForKey(ev))
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

// buttonsForKey maps a terminal key press to a momentary pad state.
// Terminals deliver no key-up events, so each poll only sees the most
// recent key; enough to navigate BIOS menus.
func buttonsForKey(ev *tcell.EventKey) uint16 {
	switch ev.Key() {
	case tcell.KeyUp:
		return sio.ButtonUp
	case tcell.KeyDown:
		return sio.ButtonDown
	case tcell.KeyLeft:
		return sio.ButtonLeft
	case tcell.KeyRight:
		return sio.ButtonRight
	case tcell.KeyEnter:
		return sio.ButtonStart
	}
	switch ev.Rune() {
	case 'x':
		return sio.ButtonCross
	case 'z':
		return sio.ButtonCircle
	case 'a':
		return sio.ButtonSquare
	case 's':
		return sio.ButtonTriangle
	case 'q':
		return sio.ButtonSelect
	}
	return 0
}

func (t *TerminalRenderer) render() {
	fb := t.emulator.Framebuffer()
	width, height := t.emulator.DisplaySize()

	cols, rows := t.screen.Size()
	if cols < 1 || rows < 1 {
		return
	}
	scaleX := (width + cols - 1) / cols
	scaleY := (height + 2*rows - 1) / (2 * rows)
	scale := maxInt(1, maxInt(scaleX, scaleY))

	t.screen.Clear()
	for y := 0; y+scale <= height; y += 2 * scale {
		for x := 0; x+scale <= width; x += scale {
			top := pixelAt(fb, width, x, y)
			bottom := top
			if y+scale < height {
				bottom = pixelAt(fb, width, x, y+scale)
			}
			style := tcell.StyleDefault.
				Background(top).
				Foreground(bottom)
			t.screen.SetContent(x/scale, y/(2*scale), halfBlock, nil, style)
		}
	}
}

func pixelAt(fb []byte, width, x, y int) tcell.Color {
	i := (y*width + x) * 3
	return tcell.NewRGBColor(int32(fb[i]), int32(fb[i+1]), int32(fb[i+2]))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func main() {
	app := cli.NewApp()
	app.Name = "psyx"
	app.Description = "A PlayStation emulator"
	app.Usage = "psyx --bios <BIOS file> [options]"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "bios",
			Usage: "Path to a 512KB BIOS image (required)",
		},
		cli.StringFlag{
			Name:  "disc",
			Usage: "Path to a CUE file for the disc to insert",
		},
		cli.StringFlag{
			Name:  "exe",
			Usage: "Path to a PSX-EXE to sideload",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run without a display",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Exit after this many frames (headless)",
			Value: 600,
		},
		cli.BoolFlag{
			Name:  "trace",
			Usage: "Log executed instructions (very verbose)",
		},
	}
	app.Action = runEmulator

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	biosPath := c.String("bios")
	if biosPath == "" {
		cli.ShowAppHelp(c)
		return errors.New("no BIOS path provided")
	}

	emu, err := psx.NewWithBIOS(biosPath)
	if err != nil {
		return err
	}

	if discPath := c.String("disc"); discPath != "" {
		if err := emu.LoadDisc(discPath); err != nil {
			return err
		}
	}
	if exePath := c.String("exe"); exePath != "" {
		if err := emu.LoadEXE(exePath); err != nil {
			return err
		}
	}
	if c.Bool("trace") {
		emu.SetTracer(&psx.SlogTracer{Stride: 1})
	}

	if c.Bool("headless") {
		for i := 0; i < c.Int("frames"); i++ {
			if err := emu.RunUntilFrame(); err != nil {
				return err
			}
		}
		slog.Info("headless run complete", "frames", emu.FrameCount())
		return nil
	}

	renderer, err := NewTerminalRenderer(emu)
	if err != nil {
		return err
	}

	return renderer.Run()
}
