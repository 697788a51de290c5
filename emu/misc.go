package emu

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/sarchlab/a32sim/insts"
)

// IFSR status of a debug event.
const faultDebugEvent uint32 = 0x2

// psrByteMask expands an MSR field mask into a bit mask.
func psrByteMask(mask uint8) uint32 {
	var m uint32
	for i := 0; i < 4; i++ {
		if mask&(1<<i) != 0 {
			m |= 0xFF << (8 * i)
		}
	}
	return m
}

// execMRS copies the CPSR or the SPSR to a register.
func (e *Emulator) execMRS(inst *insts.Instruction) error {
	m := inst.Operands.(insts.Miscellaneous)

	if m.Rd == PC {
		return unpredictable("mrs to the PC")
	}

	if !m.SPSR() {
		e.regs.Write(m.Rd, e.regs.CPSR.Pack())
		return nil
	}

	spsr, ok := e.regs.SPSR()
	if !ok {
		return unpredictable("mrs of the SPSR in %s mode", e.regs.CPSR.Mode)
	}
	e.regs.Write(m.Rd, spsr.Pack())

	return nil
}

// execMSR writes the fields of the CPSR or the SPSR selected by the
// field mask. User mode may only write the flags byte of the CPSR. The T
// bit of the CPSR is never changed.
func (e *Emulator) execMSR(inst *insts.Instruction) error {
	var (
		value uint32
		mask  uint8
		spsr  bool
	)

	switch op := inst.Operands.(type) {
	case insts.StatusImmediate:
		value, _ = RotatedImmediate(op.Imm8, op.Rotate, false)
		mask, spsr = op.Mask, op.SPSR
	case insts.Miscellaneous:
		if op.Rm == PC {
			return unpredictable("msr from the PC")
		}
		value = e.regs.Read(op.Rm)
		mask, spsr = op.FieldMask(), op.SPSR()
	}

	bm := psrByteMask(mask)
	mode := e.regs.CPSR.Mode

	if spsr {
		old, ok := e.regs.SPSR()
		if !ok {
			return unpredictable("msr to the SPSR in %s mode", mode)
		}
		e.regs.SetSPSR(UnpackPSR(old.Pack()&^bm | value&bm))
		return nil
	}

	if !mode.Privileged() {
		bm &= 0xFF000000
	}

	old := e.regs.CPSR.Pack()
	next := UnpackPSR(old&^bm | value&bm)
	next.T = e.regs.CPSR.T

	if !next.Mode.Valid() {
		return unpredictable("msr sets invalid mode 0x%02X", uint8(next.Mode))
	}

	e.regs.CPSR = next
	return nil
}

// execCLZ counts the leading zeros of a register.
func (e *Emulator) execCLZ(inst *insts.Instruction) error {
	m := inst.Operands.(insts.Miscellaneous)

	if m.Rd == PC || m.Rm == PC {
		return unpredictable("clz uses the PC")
	}

	e.regs.Write(m.Rd, uint32(bits.LeadingZeros32(e.regs.Read(m.Rm))))
	return nil
}

// saturate clamps v to the signed 32-bit range and reports whether it
// had to.
func saturate(v int64) (uint32, bool) {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32, true
	case v < math.MinInt32:
		return 1 << 31, true
	}
	return uint32(int32(v)), false
}

// execSaturating executes QADD, QSUB, QDADD and QDSUB. Any saturation
// sets the sticky Q flag.
func (e *Emulator) execSaturating(inst *insts.Instruction) error {
	m := inst.Operands.(insts.Miscellaneous)

	if m.Rd == PC || m.Rn == PC || m.Rm == PC {
		return unpredictable("%s uses the PC", inst.Desc.Mnemonic)
	}

	rm := int64(int32(e.regs.Read(m.Rm)))
	rn := int64(int32(e.regs.Read(m.Rn)))

	var sat bool
	op := inst.Op()
	if op == insts.OpQDADD || op == insts.OpQDSUB {
		var doubled uint32
		doubled, sat = saturate(2 * rn)
		rn = int64(int32(doubled))
	}

	var (
		result uint32
		s      bool
	)
	if op == insts.OpQADD || op == insts.OpQDADD {
		result, s = saturate(rm + rn)
	} else {
		result, s = saturate(rm - rn)
	}

	e.regs.Write(m.Rd, result)
	if sat || s {
		e.regs.CPSR.Q = true
	}

	return nil
}

// execBKPT raises a prefetch abort recorded as a debug event.
func (e *Emulator) execBKPT(inst *insts.Instruction) error {
	m := inst.Operands.(insts.Miscellaneous)

	if e.cp15 != nil {
		e.cp15.RecordFault(faultDebugEvent, e.regs.PC(), true)
	}

	return &trap{exc: ExceptionPrefetchAbort, reason: fmt.Sprintf("bkpt #0x%04X", m.BreakpointImm())}
}

// execExtend executes the sign and zero extensions, with and without
// accumulation. The source is rotated right by 8*rot first.
func (e *Emulator) execExtend(inst *insts.Instruction) error {
	m := inst.Operands.(insts.Media)

	if m.Rd == PC || m.Rm == PC {
		return unpredictable("%s uses the PC", inst.Desc.Mnemonic)
	}

	v := bits.RotateLeft32(e.regs.Read(m.Rm), -8*int(m.Rot))

	var result uint32
	switch inst.Op() {
	case insts.OpSXTB, insts.OpSXTAB:
		result = uint32(int32(int8(v)))
	case insts.OpSXTH, insts.OpSXTAH:
		result = uint32(int32(int16(v)))
	case insts.OpUXTB, insts.OpUXTAB:
		result = v & 0xFF
	case insts.OpUXTH, insts.OpUXTAH:
		result = v & 0xFFFF
	}

	switch inst.Op() {
	case insts.OpSXTAB, insts.OpSXTAH, insts.OpUXTAB, insts.OpUXTAH:
		result += e.regs.Read(m.Rn)
	}

	e.regs.Write(m.Rd, result)
	return nil
}

// execReverse executes REV, REV16 and REVSH.
func (e *Emulator) execReverse(inst *insts.Instruction) error {
	m := inst.Operands.(insts.Media)

	if m.Rd == PC || m.Rm == PC {
		return unpredictable("%s uses the PC", inst.Desc.Mnemonic)
	}

	v := e.regs.Read(m.Rm)

	var result uint32
	switch inst.Op() {
	case insts.OpREV:
		result = bits.ReverseBytes32(v)
	case insts.OpREV16:
		result = uint32(bits.ReverseBytes16(uint16(v>>16)))<<16 |
			uint32(bits.ReverseBytes16(uint16(v)))
	case insts.OpREVSH:
		result = uint32(int32(int16(bits.ReverseBytes16(uint16(v)))))
	}

	e.regs.Write(m.Rd, result)
	return nil
}

// execBitfield executes the bitfield extracts and inserts. A field that
// would run past bit 31, or an insert with MSB below LSB, is
// unpredictable.
func (e *Emulator) execBitfield(inst *insts.Instruction) error {
	b := inst.Operands.(insts.Bitfield)

	op := inst.Op()
	if b.Rd == PC || (op != insts.OpBFC && b.Rn == PC) {
		return unpredictable("%s uses the PC", inst.Desc.Mnemonic)
	}

	lsb := uint(b.LSB)

	if op == insts.OpSBFX || op == insts.OpUBFX {
		width := uint(b.MSB) + 1
		if lsb+width > 32 {
			return unpredictable("%s of bits %d to %d", inst.Desc.Mnemonic, lsb, lsb+width-1)
		}

		v := e.regs.Read(b.Rn) << (32 - lsb - width)
		if op == insts.OpSBFX {
			v = uint32(int32(v) >> (32 - width))
		} else {
			v >>= 32 - width
		}
		e.regs.Write(b.Rd, v)
		return nil
	}

	if b.MSB < b.LSB {
		return unpredictable("%s with msb %d below lsb %d", inst.Desc.Mnemonic, b.MSB, b.LSB)
	}

	width := uint(b.MSB) - lsb + 1
	mask := uint32((uint64(1)<<width)-1) << lsb

	var src uint32
	if op == insts.OpBFI {
		src = e.regs.Read(b.Rn) << lsb
	}

	e.regs.Write(b.Rd, e.regs.Read(b.Rd)&^mask|src&mask)
	return nil
}

// execBarrier executes the memory barriers, which have no functional
// effect on a single in-order core, and CLREX.
func (e *Emulator) execBarrier(inst *insts.Instruction) error {
	if inst.Op() == insts.OpCLREX {
		e.lsu.ClearExclusive()
	}
	return nil
}

// execCPS changes the interrupt masks and optionally the mode. It has no
// effect in User mode.
func (e *Emulator) execCPS(inst *insts.Instruction) error {
	c := inst.Operands.(insts.ChangeState)

	if !e.regs.CPSR.Mode.Privileged() {
		return nil
	}

	next := e.regs.CPSR

	switch c.IMod {
	case 0b10:
		next.I = next.I && !c.I
		next.F = next.F && !c.F
	case 0b11:
		next.I = next.I || c.I
		next.F = next.F || c.F
	}

	if c.MMod {
		next.Mode = Mode(c.Mode)
		if !next.Mode.Valid() {
			return unpredictable("cps to invalid mode 0x%02X", c.Mode)
		}
	}

	e.regs.CPSR = next
	return nil
}

// execPreload executes PLD, a hint with no functional effect.
func (e *Emulator) execPreload(*insts.Instruction) error {
	return nil
}
