package emu

import (
	"math/bits"

	"github.com/sarchlab/a32sim/insts"
)

// ShiftImmediate applies a barrel shift by an immediate amount as encoded
// in an instruction. LSL #0 leaves the value and carry unchanged, LSR #0
// and ASR #0 shift by 32, and ROR #0 is RRX.
func ShiftImmediate(value uint32, shift insts.ShiftType, amount uint8, carryIn bool) (uint32, bool) {
	amount &= 31

	switch shift {
	case insts.ShiftLSL:
		if amount == 0 {
			return value, carryIn
		}
		return value << amount, value&(1<<(32-amount)) != 0
	case insts.ShiftLSR:
		if amount == 0 {
			return 0, value&(1<<31) != 0
		}
		return value >> amount, value&(1<<(amount-1)) != 0
	case insts.ShiftASR:
		if amount == 0 {
			if int32(value) < 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(value) >> amount), value&(1<<(amount-1)) != 0
	default:
		if amount == 0 {
			result := value >> 1
			if carryIn {
				result |= 1 << 31
			}
			return result, value&1 != 0
		}
		return bits.RotateLeft32(value, -int(amount)), value&(1<<(amount-1)) != 0
	}
}

// ShiftRegister applies a barrel shift by the bottom byte of a register.
func ShiftRegister(value uint32, shift insts.ShiftType, amount uint32, carryIn bool) (uint32, bool) {
	amount &= 0xFF
	if amount == 0 {
		return value, carryIn
	}

	switch shift {
	case insts.ShiftLSL:
		switch {
		case amount < 32:
			return value << amount, value&(1<<(32-amount)) != 0
		case amount == 32:
			return 0, value&1 != 0
		default:
			return 0, false
		}
	case insts.ShiftLSR:
		switch {
		case amount < 32:
			return value >> amount, value&(1<<(amount-1)) != 0
		case amount == 32:
			return 0, value&(1<<31) != 0
		default:
			return 0, false
		}
	case insts.ShiftASR:
		if amount < 32 {
			return uint32(int32(value) >> amount), value&(1<<(amount-1)) != 0
		}
		if int32(value) < 0 {
			return 0xFFFFFFFF, true
		}
		return 0, false
	default:
		rot := amount & 31
		if rot == 0 {
			return value, value&(1<<31) != 0
		}
		return bits.RotateLeft32(value, -int(rot)), value&(1<<(rot-1)) != 0
	}
}

// RotatedImmediate expands an 8-bit immediate rotated right by 2*rotate.
// The carry-out is bit 31 of the result when the rotation is not zero.
func RotatedImmediate(imm8, rotate uint8, carryIn bool) (uint32, bool) {
	if rotate&0xF == 0 {
		return uint32(imm8), carryIn
	}
	v := bits.RotateLeft32(uint32(imm8), -2*int(rotate&0xF))
	return v, v&(1<<31) != 0
}

// shifterOperand evaluates the second operand of a data-processing
// instruction.
func (e *Emulator) shifterOperand(op insts.ShifterOperand) (uint32, bool) {
	carry := e.regs.CPSR.C

	switch op.Kind {
	case insts.ShifterImmediate:
		return RotatedImmediate(op.Imm8, op.Rotate, carry)
	case insts.ShifterRegShift:
		// PC operands are rejected before this point.
		return ShiftRegister(e.reg(op.Rm), op.Shift, e.reg(op.Rs), carry)
	default:
		return ShiftImmediate(e.reg(op.Rm), op.Shift, op.Amount, carry)
	}
}
