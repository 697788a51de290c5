package emu

import "github.com/sarchlab/a32sim/insts"

// execBranch executes B, BL and BLX (immediate). The target is relative
// to the instruction address plus 8. BLX (immediate) always enters Thumb
// state.
func (e *Emulator) execBranch(inst *insts.Instruction) error {
	b := inst.Operands.(insts.Branch)
	pc := e.regs.PC()

	if b.Link {
		e.regs.Write(14, pc+4)
	}

	if b.Exchange {
		e.regs.CPSR.T = true
	}

	e.branchTo(pc + 8 + uint32(b.Offset))
	return nil
}

// execBranchExchange executes BX and both forms of BLX. Bit 0 of the
// target register selects the instruction set.
func (e *Emulator) execBranchExchange(inst *insts.Instruction) error {
	if _, ok := inst.Operands.(insts.Branch); ok {
		return e.execBranch(inst)
	}

	m := inst.Operands.(insts.Miscellaneous)
	link := inst.Op() == insts.OpBLX

	if link && m.Rm == PC {
		return unpredictable("blx with the PC as target")
	}

	target := e.reg(m.Rm)
	if link {
		e.regs.Write(14, e.regs.PC()+4)
	}

	e.regs.CPSR.T = target&1 != 0
	e.branchTo(target &^ 1)

	return nil
}
