package psx

import (
	"fmt"
	"log/slog"
)

// SlogTracer logs every executed instruction at debug level. Attach it
// with SetTracer when chasing guest-side faults; it is far too chatty
// for normal runs.
type SlogTracer struct {
	// Every nth instruction is logged; zero logs all of them.
	Stride uint64

	count uint64
}

func (t *SlogTracer) Trace(pc uint32, opcode uint32, regs *[32]uint32) {
	t.count++
	if t.Stride > 1 && t.count%t.Stride != 0 {
		return
	}
	slog.Debug("exec",
		"pc", fmt.Sprintf("0x%08X", pc),
		"opcode", fmt.Sprintf("0x%08X", opcode),
		"sp", fmt.Sprintf("0x%08X", regs[29]),
		"ra", fmt.Sprintf("0x%08X", regs[31]))
}
