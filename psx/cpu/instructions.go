package cpu

import (
	"log/slog"

	"github.com/valerio/go-psyx/psx/bit"
)

// Instruction field accessors.
func opRS(op uint32) uint32     { return (op >> 21) & 0x1F }
func opRT(op uint32) uint32     { return (op >> 16) & 0x1F }
func opRD(op uint32) uint32     { return (op >> 11) & 0x1F }
func opShamt(op uint32) uint32  { return (op >> 6) & 0x1F }
func opImm(op uint32) uint32    { return op & 0xFFFF }
func opSImm(op uint32) uint32   { return bit.SignExtend16(uint16(op)) }
func opTarget(op uint32) uint32 { return op & 0x03FFFFFF }

// execute decodes and runs one instruction. It returns extra cycles for
// memory traffic and any bus error from a load or store.
func (c *CPU) execute(op uint32) (int64, error) {
	switch op >> 26 {
	case 0x00:
		return c.executeSpecial(op)
	case 0x01:
		c.executeBcond(op)
	case 0x02: // J
		c.prevBranch = true
		c.branch((c.pc & 0xF0000000) | (opTarget(op) << 2))
	case 0x03: // JAL
		c.prevBranch = true
		c.setReg(31, c.nextPC)
		c.branch((c.pc & 0xF0000000) | (opTarget(op) << 2))
	case 0x04: // BEQ
		c.prevBranch = true
		if c.regs[opRS(op)] == c.regs[opRT(op)] {
			c.branch(c.pc + (opSImm(op) << 2))
		}
	case 0x05: // BNE
		c.prevBranch = true
		if c.regs[opRS(op)] != c.regs[opRT(op)] {
			c.branch(c.pc + (opSImm(op) << 2))
		}
	case 0x06: // BLEZ
		c.prevBranch = true
		if int32(c.regs[opRS(op)]) <= 0 {
			c.branch(c.pc + (opSImm(op) << 2))
		}
	case 0x07: // BGTZ
		c.prevBranch = true
		if int32(c.regs[opRS(op)]) > 0 {
			c.branch(c.pc + (opSImm(op) << 2))
		}
	case 0x08: // ADDI
		a := int32(c.regs[opRS(op)])
		b := int32(opSImm(op))
		sum := a + b
		if (a >= 0 && b >= 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
			c.exception(excOverflow)
			return 0, nil
		}
		c.setReg(opRT(op), uint32(sum))
	case 0x09: // ADDIU
		c.setReg(opRT(op), c.regs[opRS(op)]+opSImm(op))
	case 0x0A: // SLTI
		if int32(c.regs[opRS(op)]) < int32(opSImm(op)) {
			c.setReg(opRT(op), 1)
		} else {
			c.setReg(opRT(op), 0)
		}
	case 0x0B: // SLTIU
		if c.regs[opRS(op)] < opSImm(op) {
			c.setReg(opRT(op), 1)
		} else {
			c.setReg(opRT(op), 0)
		}
	case 0x0C: // ANDI
		c.setReg(opRT(op), c.regs[opRS(op)]&opImm(op))
	case 0x0D: // ORI
		c.setReg(opRT(op), c.regs[opRS(op)]|opImm(op))
	case 0x0E: // XORI
		c.setReg(opRT(op), c.regs[opRS(op)]^opImm(op))
	case 0x0F: // LUI
		c.setReg(opRT(op), opImm(op)<<16)
	case 0x10: // COP0
		c.executeCop0(op)
	case 0x11, 0x13: // COP1/COP3: not populated
		c.exception(excCopUnusable)
	case 0x12: // COP2 (GTE)
		c.executeCop2(op)
	case 0x20: // LB
		v, err := c.bus.Read8(c.regs[opRS(op)] + opSImm(op))
		if err != nil {
			return 1, err
		}
		c.issueLoad(opRT(op), bit.SignExtend8(v))
		return 1, nil
	case 0x21: // LH
		v, err := c.bus.Read16(c.regs[opRS(op)] + opSImm(op))
		if err != nil {
			return 1, err
		}
		c.issueLoad(opRT(op), bit.SignExtend16(v))
		return 1, nil
	case 0x22: // LWL
		address := c.regs[opRS(op)] + opSImm(op)
		word, err := c.bus.Read32(address &^ 3)
		if err != nil {
			return 1, err
		}
		cur := c.loadAware(opRT(op))
		var v uint32
		switch address & 3 {
		case 0:
			v = cur&0x00FFFFFF | word<<24
		case 1:
			v = cur&0x0000FFFF | word<<16
		case 2:
			v = cur&0x000000FF | word<<8
		case 3:
			v = word
		}
		c.issueLoad(opRT(op), v)
		return 1, nil
	case 0x23: // LW
		v, err := c.bus.Read32(c.regs[opRS(op)] + opSImm(op))
		if err != nil {
			return 1, err
		}
		c.issueLoad(opRT(op), v)
		return 1, nil
	case 0x24: // LBU
		v, err := c.bus.Read8(c.regs[opRS(op)] + opSImm(op))
		if err != nil {
			return 1, err
		}
		c.issueLoad(opRT(op), uint32(v))
		return 1, nil
	case 0x25: // LHU
		v, err := c.bus.Read16(c.regs[opRS(op)] + opSImm(op))
		if err != nil {
			return 1, err
		}
		c.issueLoad(opRT(op), uint32(v))
		return 1, nil
	case 0x26: // LWR
		address := c.regs[opRS(op)] + opSImm(op)
		word, err := c.bus.Read32(address &^ 3)
		if err != nil {
			return 1, err
		}
		cur := c.loadAware(opRT(op))
		var v uint32
		switch address & 3 {
		case 0:
			v = word
		case 1:
			v = cur&0xFF000000 | word>>8
		case 2:
			v = cur&0xFFFF0000 | word>>16
		case 3:
			v = cur&0xFFFFFF00 | word>>24
		}
		c.issueLoad(opRT(op), v)
		return 1, nil
	case 0x28: // SB
		return 1, c.store8(c.regs[opRS(op)]+opSImm(op), uint8(c.regs[opRT(op)]))
	case 0x29: // SH
		return 1, c.store16(c.regs[opRS(op)]+opSImm(op), uint16(c.regs[opRT(op)]))
	case 0x2A: // SWL
		address := c.regs[opRS(op)] + opSImm(op)
		mem, err := c.bus.Read32(address &^ 3)
		if err != nil {
			return 1, err
		}
		reg := c.regs[opRT(op)]
		var v uint32
		switch address & 3 {
		case 0:
			v = mem&0xFFFFFF00 | reg>>24
		case 1:
			v = mem&0xFFFF0000 | reg>>16
		case 2:
			v = mem&0xFF000000 | reg>>8
		case 3:
			v = reg
		}
		return 1, c.store32(address&^3, v)
	case 0x2B: // SW
		return 1, c.store32(c.regs[opRS(op)]+opSImm(op), c.regs[opRT(op)])
	case 0x2E: // SWR
		address := c.regs[opRS(op)] + opSImm(op)
		mem, err := c.bus.Read32(address &^ 3)
		if err != nil {
			return 1, err
		}
		reg := c.regs[opRT(op)]
		var v uint32
		switch address & 3 {
		case 0:
			v = reg
		case 1:
			v = mem&0x000000FF | reg<<8
		case 2:
			v = mem&0x0000FFFF | reg<<16
		case 3:
			v = mem&0x00FFFFFF | reg<<24
		}
		return 1, c.store32(address&^3, v)
	case 0x32: // LWC2
		v, err := c.bus.Read32(c.regs[opRS(op)] + opSImm(op))
		if err != nil {
			return 1, err
		}
		c.gte.WriteData(opRT(op), v)
		return 1, nil
	case 0x3A: // SWC2
		return 1, c.store32(c.regs[opRS(op)]+opSImm(op), c.gte.ReadData(opRT(op)))
	case 0x30, 0x31, 0x33, 0x38, 0x39, 0x3B: // LWC/SWC for absent coprocessors
		c.exception(excCopUnusable)
	default:
		slog.Warn("reserved instruction", "opcode", op, "pc", c.currentPC)
		c.exception(excReservedIns)
	}
	return 0, nil
}

func (c *CPU) executeSpecial(op uint32) (int64, error) {
	switch op & 0x3F {
	case 0x00: // SLL
		c.setReg(opRD(op), c.regs[opRT(op)]<<opShamt(op))
	case 0x02: // SRL
		c.setReg(opRD(op), c.regs[opRT(op)]>>opShamt(op))
	case 0x03: // SRA
		c.setReg(opRD(op), uint32(int32(c.regs[opRT(op)])>>opShamt(op)))
	case 0x04: // SLLV
		c.setReg(opRD(op), c.regs[opRT(op)]<<(c.regs[opRS(op)]&0x1F))
	case 0x06: // SRLV
		c.setReg(opRD(op), c.regs[opRT(op)]>>(c.regs[opRS(op)]&0x1F))
	case 0x07: // SRAV
		c.setReg(opRD(op), uint32(int32(c.regs[opRT(op)])>>(c.regs[opRS(op)]&0x1F)))
	case 0x08: // JR
		c.prevBranch = true
		c.branch(c.regs[opRS(op)])
	case 0x09: // JALR
		c.prevBranch = true
		target := c.regs[opRS(op)]
		c.setReg(opRD(op), c.nextPC)
		c.branch(target)
	case 0x0C: // SYSCALL
		c.exception(excSyscall)
	case 0x0D: // BREAK
		c.exception(excBreak)
	case 0x10: // MFHI
		c.setReg(opRD(op), c.hi)
	case 0x11: // MTHI
		c.hi = c.regs[opRS(op)]
	case 0x12: // MFLO
		c.setReg(opRD(op), c.lo)
	case 0x13: // MTLO
		c.lo = c.regs[opRS(op)]
	case 0x18: // MULT
		product := int64(int32(c.regs[opRS(op)])) * int64(int32(c.regs[opRT(op)]))
		c.hi = uint32(uint64(product) >> 32)
		c.lo = uint32(uint64(product))
	case 0x19: // MULTU
		product := uint64(c.regs[opRS(op)]) * uint64(c.regs[opRT(op)])
		c.hi = uint32(product >> 32)
		c.lo = uint32(product)
	case 0x1A: // DIV
		n := int32(c.regs[opRS(op)])
		d := int32(c.regs[opRT(op)])
		switch {
		case d == 0:
			// Architectural garbage values, not a guest exception.
			c.hi = uint32(n)
			if n >= 0 {
				c.lo = 0xFFFFFFFF
			} else {
				c.lo = 1
			}
		case uint32(n) == 0x80000000 && d == -1:
			c.hi = 0
			c.lo = 0x80000000
		default:
			c.hi = uint32(n % d)
			c.lo = uint32(n / d)
		}
	case 0x1B: // DIVU
		n := c.regs[opRS(op)]
		d := c.regs[opRT(op)]
		if d == 0 {
			c.hi = n
			c.lo = 0xFFFFFFFF
		} else {
			c.hi = n % d
			c.lo = n / d
		}
	case 0x20: // ADD
		a := int32(c.regs[opRS(op)])
		b := int32(c.regs[opRT(op)])
		sum := a + b
		if (a >= 0 && b >= 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
			c.exception(excOverflow)
			return 0, nil
		}
		c.setReg(opRD(op), uint32(sum))
	case 0x21: // ADDU
		c.setReg(opRD(op), c.regs[opRS(op)]+c.regs[opRT(op)])
	case 0x22: // SUB
		a := int32(c.regs[opRS(op)])
		b := int32(c.regs[opRT(op)])
		diff := a - b
		if (a >= 0 && b < 0 && diff < 0) || (a < 0 && b >= 0 && diff >= 0) {
			c.exception(excOverflow)
			return 0, nil
		}
		c.setReg(opRD(op), uint32(diff))
	case 0x23: // SUBU
		c.setReg(opRD(op), c.regs[opRS(op)]-c.regs[opRT(op)])
	case 0x24: // AND
		c.setReg(opRD(op), c.regs[opRS(op)]&c.regs[opRT(op)])
	case 0x25: // OR
		c.setReg(opRD(op), c.regs[opRS(op)]|c.regs[opRT(op)])
	case 0x26: // XOR
		c.setReg(opRD(op), c.regs[opRS(op)]^c.regs[opRT(op)])
	case 0x27: // NOR
		c.setReg(opRD(op), ^(c.regs[opRS(op)] | c.regs[opRT(op)]))
	case 0x2A: // SLT
		if int32(c.regs[opRS(op)]) < int32(c.regs[opRT(op)]) {
			c.setReg(opRD(op), 1)
		} else {
			c.setReg(opRD(op), 0)
		}
	case 0x2B: // SLTU
		if c.regs[opRS(op)] < c.regs[opRT(op)] {
			c.setReg(opRD(op), 1)
		} else {
			c.setReg(opRD(op), 0)
		}
	default:
		slog.Warn("reserved special instruction", "opcode", op, "pc", c.currentPC)
		c.exception(excReservedIns)
	}
	return 0, nil
}

// executeBcond handles the BLTZ/BGEZ/BLTZAL/BGEZAL family. The link bit
// is opcode bit 20, the ge/lt selector bit 16; link writes r31
// unconditionally.
func (c *CPU) executeBcond(op uint32) {
	c.prevBranch = true
	value := int32(c.regs[opRS(op)])
	ge := op&(1<<16) != 0
	link := (op>>17)&0xF == 0x8

	taken := value < 0
	if ge {
		taken = value >= 0
	}
	if link {
		c.setReg(31, c.nextPC)
	}
	if taken {
		c.branch(c.pc + (opSImm(op) << 2))
	}
}

func (c *CPU) executeCop0(op uint32) {
	switch opRS(op) {
	case 0x00: // MFC0
		c.issueLoad(opRT(op), c.readCop0(opRD(op)))
	case 0x04: // MTC0
		c.writeCop0(opRD(op), c.regs[opRT(op)])
	case 0x10: // RFE
		if op&0x3F == 0x10 {
			c.rfe()
		} else {
			slog.Warn("unhandled COP0 operation", "opcode", op)
		}
	default:
		slog.Warn("unhandled COP0 access", "opcode", op)
	}
}

func (c *CPU) executeCop2(op uint32) {
	if op&(1<<25) != 0 {
		c.gte.Execute(op)
		return
	}
	switch opRS(op) {
	case 0x00: // MFC2
		c.issueLoad(opRT(op), c.gte.ReadData(opRD(op)))
	case 0x02: // CFC2
		c.issueLoad(opRT(op), c.gte.ReadControl(opRD(op)))
	case 0x04: // MTC2
		c.gte.WriteData(opRD(op), c.regs[opRT(op)])
	case 0x06: // CTC2
		c.gte.WriteControl(opRD(op), c.regs[opRT(op)])
	default:
		slog.Warn("unhandled COP2 access", "opcode", op)
	}
}

// Stores funnel through these helpers so cache isolation (STATUS.IsC)
// can redirect them at the I-cache instead of memory.
func (c *CPU) store8(address uint32, v uint8) error {
	if c.sr&srIsC != 0 {
		c.icache.Invalidate(address & 0x1FFFFFFF &^ 3)
		return nil
	}
	return c.bus.Write8(address, v)
}

func (c *CPU) store16(address uint32, v uint16) error {
	if c.sr&srIsC != 0 {
		c.icache.Invalidate(address & 0x1FFFFFFF &^ 3)
		return nil
	}
	return c.bus.Write16(address, v)
}

func (c *CPU) store32(address uint32, v uint32) error {
	if c.sr&srIsC != 0 {
		c.icache.Invalidate(address & 0x1FFFFFFF)
		return nil
	}
	return c.bus.Write32(address, v)
}
