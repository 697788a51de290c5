package emu

import "github.com/sarchlab/a32sim/insts"

// execMultiply executes MUL, MLA, MLS, UMAAL and the 64-bit multiplies.
// With S set, N and Z reflect the result and C and V are left unchanged.
func (e *Emulator) execMultiply(inst *insts.Instruction) error {
	m := inst.Operands.(insts.Multiply)

	if m.Rd == PC || m.Rn == PC || m.Rs == PC || m.Rm == PC {
		return unpredictable("%s uses the PC", inst.Desc.Mnemonic)
	}

	rm, rs := e.regs.Read(m.Rm), e.regs.Read(m.Rs)

	switch op := inst.Op(); op {
	case insts.OpMUL, insts.OpMLA, insts.OpMLS:
		result := rm * rs
		switch op {
		case insts.OpMLA:
			result = e.regs.Read(m.Rn) + result
		case insts.OpMLS:
			result = e.regs.Read(m.Rn) - result
		}

		e.regs.Write(m.Rd, result)
		if m.S {
			e.regs.CPSR.N = result&(1<<31) != 0
			e.regs.CPSR.Z = result == 0
		}
		return nil
	}

	hi, lo := m.Rd, m.Rn
	if hi == lo {
		return unpredictable("%s with RdHi == RdLo", inst.Desc.Mnemonic)
	}
	acc := uint64(e.regs.Read(hi))<<32 | uint64(e.regs.Read(lo))

	var result uint64
	switch inst.Op() {
	case insts.OpUMAAL:
		result = uint64(rm)*uint64(rs) + acc>>32 + acc&0xFFFFFFFF
	case insts.OpUMULL:
		result = uint64(rm) * uint64(rs)
	case insts.OpUMLAL:
		result = uint64(rm)*uint64(rs) + acc
	case insts.OpSMULL:
		result = uint64(int64(int32(rm)) * int64(int32(rs)))
	case insts.OpSMLAL:
		result = uint64(int64(int32(rm))*int64(int32(rs))) + acc
	}

	e.regs.Write(lo, uint32(result))
	e.regs.Write(hi, uint32(result>>32))
	if m.S {
		e.regs.CPSR.N = result&(1<<63) != 0
		e.regs.CPSR.Z = result == 0
	}

	return nil
}

// half returns the top or bottom halfword of v, sign-extended.
func half(v uint32, top bool) int64 {
	if top {
		return int64(int16(v >> 16))
	}
	return int64(int16(v))
}

// execHalfwordMultiply executes the signed halfword multiplies. An
// accumulation that overflows 32 bits wraps and sets the sticky Q flag.
// SMLAL<x><y> wraps silently.
func (e *Emulator) execHalfwordMultiply(inst *insts.Instruction) error {
	m := inst.Operands.(insts.HalfwordMultiply)

	op := inst.Op()
	accumulates := op != insts.OpSMULXY && op != insts.OpSMULWY

	if m.Rd == PC || m.Rs == PC || m.Rm == PC || (accumulates && m.Rn == PC) {
		return unpredictable("%s uses the PC", inst.Desc.Mnemonic)
	}

	rm, rs := e.regs.Read(m.Rm), e.regs.Read(m.Rs)

	var product int64
	switch op {
	case insts.OpSMLAWY, insts.OpSMULWY:
		product = (int64(int32(rm)) * half(rs, m.Y)) >> 16
	default:
		product = half(rm, m.X) * half(rs, m.Y)
	}

	switch op {
	case insts.OpSMULXY, insts.OpSMULWY:
		e.regs.Write(m.Rd, uint32(product))
	case insts.OpSMLAXY, insts.OpSMLAWY:
		sum := product + int64(int32(e.regs.Read(m.Rn)))
		if sum != int64(int32(sum)) {
			e.regs.CPSR.Q = true
		}
		e.regs.Write(m.Rd, uint32(sum))
	case insts.OpSMLALXY:
		hi, lo := m.Rd, m.Rn
		if hi == lo {
			return unpredictable("%s with RdHi == RdLo", inst.Desc.Mnemonic)
		}
		acc := uint64(e.regs.Read(hi))<<32 | uint64(e.regs.Read(lo))
		result := acc + uint64(product)
		e.regs.Write(lo, uint32(result))
		e.regs.Write(hi, uint32(result>>32))
	}

	return nil
}
