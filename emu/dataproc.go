package emu

import "github.com/sarchlab/a32sim/insts"

// execDataProcessing executes the sixteen data-processing operations in
// all three operand forms.
func (e *Emulator) execDataProcessing(inst *insts.Instruction) error {
	dp := inst.Operands.(insts.DataProcessing)
	op2 := dp.Operand2

	if op2.Kind == insts.ShifterRegShift &&
		(dp.Rd == PC || dp.Rn == PC || op2.Rm == PC || op2.Rs == PC) {
		return unpredictable("%s with a register shift uses the PC", inst.Desc.Mnemonic)
	}

	value, carry := e.shifterOperand(op2)
	r := e.alu.Execute(dp.Opcode, e.reg(dp.Rn), value, carry)

	return e.writeResult(inst.Op(), dp.Rd, dp.S, r)
}

// writeResult commits a data-processing result. Compare operations only
// update the flags. Writing the PC with S set returns from an exception by
// restoring the CPSR from the SPSR.
func (e *Emulator) writeResult(op insts.Op, rd uint8, s bool, r ALUResult) error {
	if op.IsCompare() {
		r.apply(&e.regs.CPSR)
		return nil
	}

	if rd == PC && s {
		spsr, ok := e.regs.SPSR()
		if !ok {
			return unpredictable("%ss to the PC in %s mode", op, e.regs.CPSR.Mode)
		}

		e.regs.CPSR = spsr
		if spsr.T {
			e.branchTo(r.Value &^ 1)
		} else {
			e.branchTo(r.Value &^ 3)
		}
		return nil
	}

	e.setReg(rd, r.Value)
	if s {
		r.apply(&e.regs.CPSR)
	}

	return nil
}

// execWideMove executes MOVW, which loads a 16-bit immediate, and MOVT,
// which replaces the top halfword and keeps the bottom one.
func (e *Emulator) execWideMove(inst *insts.Instruction) error {
	w := inst.Operands.(insts.WideImmediate)

	if w.Rd == PC {
		return unpredictable("%s to the PC", inst.Desc.Mnemonic)
	}

	value := uint32(w.Imm16)
	if inst.Op() == insts.OpMOVT {
		value = value<<16 | e.regs.Read(w.Rd)&0xFFFF
	}

	e.regs.Write(w.Rd, value)
	return nil
}
