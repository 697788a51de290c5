package emu

import "github.com/sarchlab/a32sim/insts"

// coprocessor returns the attached coprocessor num. Coprocessor 15 is
// only accessible from privileged modes.
func (e *Emulator) coprocessor(num uint8, name string) (Coprocessor, error) {
	cp := e.coprocs[num&15]
	if cp == nil {
		return nil, undefined("%s to absent coprocessor p%d", name, num)
	}

	if num == 15 && !e.regs.CPSR.Mode.Privileged() {
		return nil, undefined("%s to p15 in user mode", name)
	}

	return cp, nil
}

// execCoprocessor executes MRC, MCR and CDP. An MRC to the PC copies the
// top four bits of the value to the condition flags.
func (e *Emulator) execCoprocessor(inst *insts.Instruction) error {
	c := inst.Operands.(insts.Coprocessor)
	name := inst.Desc.Mnemonic

	cp, err := e.coprocessor(c.CPNum, name)
	if err != nil {
		return err
	}

	switch inst.Op() {
	case insts.OpMRC:
		v, err := cp.MRC(c.Opc1, c.CRn, c.CRm, c.Opc2)
		if err != nil {
			return undefined("mrc p%d: %v", c.CPNum, err)
		}

		if c.Rd != PC {
			e.regs.Write(c.Rd, v)
			return nil
		}

		flags := UnpackPSR(v)
		e.regs.CPSR.N, e.regs.CPSR.Z = flags.N, flags.Z
		e.regs.CPSR.C, e.regs.CPSR.V = flags.C, flags.V
	case insts.OpMCR:
		if c.Rd == PC {
			return unpredictable("mcr from the PC")
		}

		if err := cp.MCR(c.Opc1, c.CRn, c.CRm, c.Opc2, e.regs.Read(c.Rd)); err != nil {
			return undefined("mcr p%d: %v", c.CPNum, err)
		}
	case insts.OpCDP:
		dc, ok := cp.(DataCoprocessor)
		if !ok {
			return undefined("cdp to p%d", c.CPNum)
		}

		if err := dc.CDP(c.Opc1, c.Rd, c.CRn, c.CRm, c.Opc2); err != nil {
			return undefined("cdp p%d: %v", c.CPNum, err)
		}
	}

	return nil
}

// execCoprocessorLoadStore executes LDC and STC, one word per
// instruction. The offset is scaled by 4.
func (e *Emulator) execCoprocessorLoadStore(inst *insts.Instruction) error {
	c := inst.Operands.(insts.CoprocessorLoadStore)
	name := inst.Desc.Mnemonic

	cp, err := e.coprocessor(c.CPNum, name)
	if err != nil {
		return err
	}

	dc, ok := cp.(DataCoprocessor)
	if !ok {
		return undefined("%s to p%d", name, c.CPNum)
	}

	if c.W && c.Rn == PC {
		return unpredictable("%s writeback to the PC", name)
	}

	addr, updated := address(e.reg(c.Rn), uint32(c.Offset)*4, c.P, c.U)

	if c.L {
		v, err := e.lsu.Load32(addr)
		if err != nil {
			return err
		}
		if err := dc.LDC(c.CRd, v); err != nil {
			return undefined("ldc p%d: %v", c.CPNum, err)
		}
	} else {
		v, err := dc.STC(c.CRd)
		if err != nil {
			return undefined("stc p%d: %v", c.CPNum, err)
		}
		if err := e.lsu.Store32(addr, v); err != nil {
			return err
		}
	}

	if c.W {
		e.regs.Write(c.Rn, updated)
	}

	return nil
}
