package emu

// Data-processing opcodes.
const (
	OpcodeAND uint8 = iota
	OpcodeEOR
	OpcodeSUB
	OpcodeRSB
	OpcodeADD
	OpcodeADC
	OpcodeSBC
	OpcodeRSC
	OpcodeTST
	OpcodeTEQ
	OpcodeCMP
	OpcodeCMN
	OpcodeORR
	OpcodeMOV
	OpcodeBIC
	OpcodeMVN
)

// AddWithCarry returns a + b + carryIn with the carry and signed overflow
// of the addition.
func AddWithCarry(a, b uint32, carryIn bool) (result uint32, carry, overflow bool) {
	sum := uint64(a) + uint64(b)
	if carryIn {
		sum++
	}

	result = uint32(sum)
	carry = sum>>32 != 0
	overflow = (a^b)&(1<<31) == 0 && (a^result)&(1<<31) != 0

	return result, carry, overflow
}

// ALUResult is the outcome of a data-processing operation.
type ALUResult struct {
	Value uint32
	N     bool
	Z     bool
	C     bool
	V     bool
}

// ALU implements the sixteen data-processing operations.
type ALU struct {
	regFile *RegFile
}

// NewALU creates an ALU reading the carry flag from regFile.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Execute computes opcode on the first operand rn and the shifter operand
// op2. Logical operations take their carry from the shifter and leave V
// as it is.
func (a *ALU) Execute(opcode uint8, rn, op2 uint32, shifterCarry bool) ALUResult {
	cpsr := a.regFile.CPSR
	r := ALUResult{C: shifterCarry, V: cpsr.V}

	switch opcode & 0xF {
	case OpcodeAND, OpcodeTST:
		r.Value = rn & op2
	case OpcodeEOR, OpcodeTEQ:
		r.Value = rn ^ op2
	case OpcodeSUB, OpcodeCMP:
		r.Value, r.C, r.V = AddWithCarry(rn, ^op2, true)
	case OpcodeRSB:
		r.Value, r.C, r.V = AddWithCarry(op2, ^rn, true)
	case OpcodeADD, OpcodeCMN:
		r.Value, r.C, r.V = AddWithCarry(rn, op2, false)
	case OpcodeADC:
		r.Value, r.C, r.V = AddWithCarry(rn, op2, cpsr.C)
	case OpcodeSBC:
		r.Value, r.C, r.V = AddWithCarry(rn, ^op2, cpsr.C)
	case OpcodeRSC:
		r.Value, r.C, r.V = AddWithCarry(op2, ^rn, cpsr.C)
	case OpcodeORR:
		r.Value = rn | op2
	case OpcodeMOV:
		r.Value = op2
	case OpcodeBIC:
		r.Value = rn &^ op2
	case OpcodeMVN:
		r.Value = ^op2
	}

	r.N = r.Value&(1<<31) != 0
	r.Z = r.Value == 0

	return r
}

// apply commits the flags of r to p.
func (r ALUResult) apply(p *PSR) {
	p.N, p.Z, p.C, p.V = r.N, r.Z, r.C, r.V
}
