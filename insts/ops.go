package insts

// Op represents an ARM operation. Several descriptors may share an Op, e.g.
// the immediate, shifted-register and register-shifted-register forms of ADD.
type Op uint16

// ARM operations. The data-processing operations are ordered so that
// OpAND+opcode is the operation of a 4-bit data-processing opcode.
const (
	OpUnknown Op = iota
	OpAND
	OpEOR
	OpSUB
	OpRSB
	OpADD
	OpADC
	OpSBC
	OpRSC
	OpTST
	OpTEQ
	OpCMP
	OpCMN
	OpORR
	OpMOV
	OpBIC
	OpMVN
	OpMOVW
	OpMOVT
	OpMRS
	OpMSR
	OpBX
	OpBLX
	OpCLZ
	OpQADD
	OpQSUB
	OpQDADD
	OpQDSUB
	OpBKPT
	OpSMLAXY
	OpSMLAWY
	OpSMULWY
	OpSMLALXY
	OpSMULXY
	OpMUL
	OpMLA
	OpUMAAL
	OpMLS
	OpUMULL
	OpUMLAL
	OpSMULL
	OpSMLAL
	OpSWP
	OpSWPB
	OpLDREX
	OpSTREX
	OpLDREXD
	OpSTREXD
	OpLDREXB
	OpSTREXB
	OpLDREXH
	OpSTREXH
	OpLDRH
	OpSTRH
	OpLDRSB
	OpLDRSH
	OpLDRD
	OpSTRD
	OpLDR
	OpSTR
	OpLDRB
	OpSTRB
	OpSXTB
	OpSXTH
	OpUXTB
	OpUXTH
	OpSXTAB
	OpSXTAH
	OpUXTAB
	OpUXTAH
	OpREV
	OpREV16
	OpREVSH
	OpSBFX
	OpUBFX
	OpBFI
	OpBFC
	OpLDM
	OpSTM
	OpB
	OpBL
	OpPLD
	OpCPS
	OpCLREX
	OpDSB
	OpDMB
	OpISB
	OpCDP
	OpMCR
	OpMRC
	OpLDC
	OpSTC
	OpSWI

	// NumOps is the number of operations, including OpUnknown.
	NumOps
)

var opNames = [NumOps]string{
	"unknown",
	"and", "eor", "sub", "rsb", "add", "adc", "sbc", "rsc",
	"tst", "teq", "cmp", "cmn", "orr", "mov", "bic", "mvn",
	"movw", "movt",
	"mrs", "msr", "bx", "blx", "clz",
	"qadd", "qsub", "qdadd", "qdsub", "bkpt",
	"smlaxy", "smlawy", "smulwy", "smlalxy", "smulxy",
	"mul", "mla", "umaal", "mls", "umull", "umlal", "smull", "smlal",
	"swp", "swpb", "ldrex", "strex",
	"ldrexd", "strexd", "ldrexb", "strexb", "ldrexh", "strexh",
	"ldrh", "strh", "ldrsb", "ldrsh", "ldrd", "strd",
	"ldr", "str", "ldrb", "strb",
	"sxtb", "sxth", "uxtb", "uxth",
	"sxtab", "sxtah", "uxtab", "uxtah", "rev", "rev16", "revsh",
	"sbfx", "ubfx", "bfi", "bfc",
	"ldm", "stm", "b", "bl", "pld", "cps",
	"clrex", "dsb", "dmb", "isb",
	"cdp", "mcr", "mrc", "ldc", "stc", "swi",
}

func (op Op) String() string {
	if op < NumOps {
		return opNames[op]
	}
	return opNames[OpUnknown]
}

// OpFromMnemonic returns the operation with the given mnemonic.
func OpFromMnemonic(mnemonic string) (Op, bool) {
	for i, name := range opNames {
		if i > 0 && name == mnemonic {
			return Op(i), true
		}
	}
	return OpUnknown, false
}

// IsCompare reports whether op is one of TST, TEQ, CMP and CMN, which always
// update the flags and never write a destination register.
func (op Op) IsCompare() bool {
	return op >= OpTST && op <= OpCMN
}

// Cond represents an ARM condition code.
type Cond uint8

// ARM condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
	CondNV Cond = 0b1111 // Unconditional instruction space
)

var condNames = [16]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "", "nv",
}

func (c Cond) String() string {
	return condNames[c&0xF]
}

// ShiftType represents a barrel shifter operation.
type ShiftType uint8

// Shift types.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right (RRX when the immediate amount is 0)
)

func (s ShiftType) String() string {
	return [4]string{"lsl", "lsr", "asr", "ror"}[s&3]
}
