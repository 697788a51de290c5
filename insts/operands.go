package insts

// Operands is the typed payload of a decoded instruction. There is one
// concrete type per instruction format family.
type Operands interface {
	operands()
}

// Binder builds the typed payload from the extracted field values.
type Binder func(inst *Instruction) Operands

// ShifterKind selects how the second data-processing operand is formed.
type ShifterKind uint8

// Shifter operand kinds.
const (
	ShifterImmediate ShifterKind = iota // rotated 8-bit immediate
	ShifterImmShift                     // Rm shifted by an immediate amount
	ShifterRegShift                     // Rm shifted by the bottom byte of Rs
)

// ShifterOperand is the second operand of a data-processing instruction.
type ShifterOperand struct {
	Kind   ShifterKind
	Imm8   uint8
	Rotate uint8 // rotation is 2*Rotate
	Rm     uint8
	Rs     uint8
	Shift  ShiftType
	Amount uint8
}

// DataProcessing covers the dp_imm, dp_imm_shift and dp_reg_shift formats.
type DataProcessing struct {
	Opcode   uint8
	S        bool
	Rn       uint8
	Rd       uint8
	Operand2 ShifterOperand
}

// WideImmediate covers MOVW and MOVT.
type WideImmediate struct {
	Rd    uint8
	Imm16 uint16
}

// Miscellaneous covers the misc format: MRS, MSR (register), BX, BLX, CLZ,
// the saturating arithmetic group and BKPT.
type Miscellaneous struct {
	Op1 uint8
	Rn  uint8
	Rd  uint8
	Rs  uint8
	Op2 uint8
	Rm  uint8
}

// SPSR reports whether an MRS/MSR accesses the saved status register.
func (m Miscellaneous) SPSR() bool {
	return m.Op1&0b10 != 0
}

// FieldMask returns the MSR field mask held in the Rn position.
func (m Miscellaneous) FieldMask() uint8 {
	return m.Rn
}

// BreakpointImm returns the 16-bit BKPT comment field.
func (m Miscellaneous) BreakpointImm() uint16 {
	return uint16(m.Rn)<<12 | uint16(m.Rd)<<8 | uint16(m.Rs)<<4 | uint16(m.Rm)
}

// StatusImmediate is an MSR with an immediate operand.
type StatusImmediate struct {
	SPSR   bool
	Mask   uint8
	Imm8   uint8
	Rotate uint8
}

// HalfwordMultiply covers the signed 16-bit multiplies. X selects the top
// half of Rm and Y the top half of Rs. For SMLAL<x><y>, Rd holds RdHi and
// Rn holds RdLo; otherwise Rn is the accumulator.
type HalfwordMultiply struct {
	Rd   uint8
	Rn   uint8
	Rs   uint8
	Rm   uint8
	X, Y bool
}

// Multiply covers MUL, MLA, MLS, UMAAL and the long multiplies. For the
// 64-bit forms Rd holds RdHi and Rn holds RdLo; otherwise Rn is the
// accumulator.
type Multiply struct {
	Op1 uint8
	S   bool
	Rd  uint8
	Rn  uint8
	Rs  uint8
	Rm  uint8
}

// Swap covers SWP and SWPB.
type Swap struct {
	Byte bool
	Rn   uint8
	Rd   uint8
	Rm   uint8
}

// Exclusive covers the exclusive loads and stores. Size is the access
// size in bytes. The doubleword forms transfer Rd and Rd+1 for loads and
// Rm and Rm+1 for stores.
type Exclusive struct {
	Load bool
	Size int
	Rn   uint8
	Rd   uint8
	Rm   uint8
}

// ExtraLoadStore covers the halfword, signed byte and doubleword transfers.
type ExtraLoadStore struct {
	P, U, I, W, L bool
	Rn            uint8
	Rd            uint8
	Rm            uint8
	Imm8          uint8
	SH            uint8
}

// LoadStore covers LDR, STR, LDRB and STRB with immediate or scaled register
// offsets.
type LoadStore struct {
	P, U, B, W, L bool
	Rn            uint8
	Rd            uint8
	Register      bool
	Imm12         uint16
	Rm            uint8
	Shift         ShiftType
	Amount        uint8
}

// Media covers the extend and byte-reverse instructions.
type Media struct {
	Op1 uint8
	Rn  uint8
	Rd  uint8
	Rot uint8 // rotation is 8*Rot
	Op2 uint8
	Rm  uint8
}

// Bitfield covers SBFX, UBFX, BFI and BFC. For the extracts MSB holds the
// width minus one.
type Bitfield struct {
	Rd  uint8
	Rn  uint8
	LSB uint8
	MSB uint8
}

// BlockTransfer covers LDM and STM.
type BlockTransfer struct {
	P, U, S, W, L bool
	Rn            uint8
	List          uint16
}

// Branch covers B, BL and BLX (immediate). Offset is the byte offset from
// the instruction address plus 8.
type Branch struct {
	Link     bool
	Exchange bool
	Offset   int32
}

// Preload covers PLD.
type Preload struct {
	Register bool
	U        bool
	Rn       uint8
	Addr     uint16
}

// Barrier covers CLREX, DSB, DMB and ISB.
type Barrier struct {
	Option uint8
}

// ChangeState covers CPS.
type ChangeState struct {
	IMod    uint8
	MMod    bool
	A, I, F bool
	Mode    uint8
}

// Coprocessor covers CDP, MCR and MRC. For CDP, Opc1 holds the full 4-bit
// opcode.
type Coprocessor struct {
	Opc1  uint8
	L     bool
	CRn   uint8
	Rd    uint8
	CPNum uint8
	Opc2  uint8
	CRm   uint8
}

// CoprocessorLoadStore covers LDC and STC.
type CoprocessorLoadStore struct {
	P, U, N, W, L bool
	Rn            uint8
	CRd           uint8
	CPNum         uint8
	Offset        uint8
}

// SoftwareInterrupt covers SWI.
type SoftwareInterrupt struct {
	Imm uint32
}

func (DataProcessing) operands()       {}
func (WideImmediate) operands()        {}
func (Miscellaneous) operands()        {}
func (StatusImmediate) operands()      {}
func (HalfwordMultiply) operands()     {}
func (Multiply) operands()             {}
func (Swap) operands()                 {}
func (Exclusive) operands()            {}
func (ExtraLoadStore) operands()       {}
func (LoadStore) operands()            {}
func (Media) operands()                {}
func (Bitfield) operands()             {}
func (BlockTransfer) operands()        {}
func (Branch) operands()               {}
func (Preload) operands()              {}
func (Barrier) operands()              {}
func (ChangeState) operands()          {}
func (Coprocessor) operands()          {}
func (CoprocessorLoadStore) operands() {}
func (SoftwareInterrupt) operands()    {}

// ARMBinders maps the format names of arm.isa to their payload builders.
var ARMBinders = map[string]Binder{
	"dp_imm_shift": func(i *Instruction) Operands {
		return DataProcessing{
			Opcode: i.u8("opcode"), S: i.flag("s"), Rn: i.u8("rn"), Rd: i.u8("rd"),
			Operand2: ShifterOperand{
				Kind:   ShifterImmShift,
				Rm:     i.u8("rm"),
				Shift:  ShiftType(i.Field("shift")),
				Amount: i.u8("shamt"),
			},
		}
	},
	"dp_reg_shift": func(i *Instruction) Operands {
		return DataProcessing{
			Opcode: i.u8("opcode"), S: i.flag("s"), Rn: i.u8("rn"), Rd: i.u8("rd"),
			Operand2: ShifterOperand{
				Kind:  ShifterRegShift,
				Rm:    i.u8("rm"),
				Rs:    i.u8("rs"),
				Shift: ShiftType(i.Field("shift")),
			},
		}
	},
	"dp_imm": func(i *Instruction) Operands {
		return DataProcessing{
			Opcode: i.u8("opcode"), S: i.flag("s"), Rn: i.u8("rn"), Rd: i.u8("rd"),
			Operand2: ShifterOperand{
				Kind:   ShifterImmediate,
				Imm8:   i.u8("imm8"),
				Rotate: i.u8("rotate"),
			},
		}
	},
	"mov_wide": func(i *Instruction) Operands {
		return WideImmediate{
			Rd:    i.u8("rd"),
			Imm16: uint16(i.Field("imm4")<<12 | i.Field("imm12")),
		}
	},
	"misc": func(i *Instruction) Operands {
		return Miscellaneous{
			Op1: i.u8("op1"), Rn: i.u8("rn"), Rd: i.u8("rd"),
			Rs: i.u8("rs"), Op2: i.u8("op2"), Rm: i.u8("rm"),
		}
	},
	"msr_imm": func(i *Instruction) Operands {
		return StatusImmediate{
			SPSR: i.flag("r"), Mask: i.u8("mask"),
			Imm8: i.u8("imm8"), Rotate: i.u8("rotate"),
		}
	},
	"dsp_mul": func(i *Instruction) Operands {
		return HalfwordMultiply{
			Rd: i.u8("rd"), Rn: i.u8("rn"), Rs: i.u8("rs"), Rm: i.u8("rm"),
			X: i.flag("x"), Y: i.flag("y"),
		}
	},
	"multiply": func(i *Instruction) Operands {
		return Multiply{
			Op1: i.u8("op1"), S: i.flag("s"), Rd: i.u8("rd"),
			Rn: i.u8("rn"), Rs: i.u8("rs"), Rm: i.u8("rm"),
		}
	},
	"swap": func(i *Instruction) Operands {
		return Swap{Byte: i.flag("b"), Rn: i.u8("rn"), Rd: i.u8("rd"), Rm: i.u8("rm")}
	},
	"exclusive": func(i *Instruction) Operands {
		return Exclusive{
			Load: i.flag("l"),
			Size: [4]int{4, 8, 1, 2}[i.Field("size")],
			Rn:   i.u8("rn"), Rd: i.u8("rd"), Rm: i.u8("rm"),
		}
	},
	"extra_ls": func(i *Instruction) Operands {
		return ExtraLoadStore{
			P: i.flag("p"), U: i.flag("u"), I: i.flag("i"), W: i.flag("w"), L: i.flag("l"),
			Rn: i.u8("rn"), Rd: i.u8("rd"), Rm: i.u8("lo"),
			Imm8: i.u8("hi")<<4 | i.u8("lo"),
			SH:   i.u8("sh"),
		}
	},
	"ls_imm": func(i *Instruction) Operands {
		return LoadStore{
			P: i.flag("p"), U: i.flag("u"), B: i.flag("b"), W: i.flag("w"), L: i.flag("l"),
			Rn: i.u8("rn"), Rd: i.u8("rd"),
			Imm12: uint16(i.Field("imm12")),
		}
	},
	"ls_reg": func(i *Instruction) Operands {
		return LoadStore{
			P: i.flag("p"), U: i.flag("u"), B: i.flag("b"), W: i.flag("w"), L: i.flag("l"),
			Rn: i.u8("rn"), Rd: i.u8("rd"),
			Register: true,
			Rm:       i.u8("rm"),
			Shift:    ShiftType(i.Field("shift")),
			Amount:   i.u8("shamt"),
		}
	},
	"media": func(i *Instruction) Operands {
		return Media{
			Op1: i.u8("op1"), Rn: i.u8("rn"), Rd: i.u8("rd"),
			Rot: i.u8("rot"), Op2: i.u8("op2"), Rm: i.u8("rm"),
		}
	},
	"bitfield": func(i *Instruction) Operands {
		return Bitfield{Rd: i.u8("rd"), Rn: i.u8("rn"), LSB: i.u8("lsb"), MSB: i.u8("msb")}
	},
	"block": func(i *Instruction) Operands {
		return BlockTransfer{
			P: i.flag("p"), U: i.flag("u"), S: i.flag("s"), W: i.flag("w"), L: i.flag("l"),
			Rn:   i.u8("rn"),
			List: uint16(i.Field("list")),
		}
	},
	"branch": func(i *Instruction) Operands {
		return Branch{
			Link:   i.flag("l"),
			Offset: int32(i.Field("offset")) << 2,
		}
	},
	"blx_imm": func(i *Instruction) Operands {
		return Branch{
			Link:     true,
			Exchange: true,
			Offset:   int32(i.Field("offset"))<<2 | int32(i.Field("h"))<<1,
		}
	},
	"preload": func(i *Instruction) Operands {
		return Preload{
			Register: i.flag("i"), U: i.flag("u"), Rn: i.u8("rn"),
			Addr: uint16(i.Field("addr")),
		}
	},
	"barrier": func(i *Instruction) Operands {
		return Barrier{Option: i.u8("option")}
	},
	"cps": func(i *Instruction) Operands {
		return ChangeState{
			IMod: i.u8("imod"), MMod: i.flag("mmod"),
			A: i.flag("a"), I: i.flag("i"), F: i.flag("f"),
			Mode: i.u8("mode"),
		}
	},
	"coproc": func(i *Instruction) Operands {
		c := Coprocessor{
			Opc1: i.u8("opc1"), L: i.flag("l"), CRn: i.u8("crn"), Rd: i.u8("rd"),
			CPNum: i.u8("cpnum"), Opc2: i.u8("opc2"), CRm: i.u8("crm"),
		}
		if i.Field("b4") == 0 {
			// CDP uses bit 20 as the low bit of a 4-bit opcode.
			c.Opc1 = c.Opc1<<1 | i.u8("l")
			c.L = false
		}
		return c
	},
	"coproc_ls": func(i *Instruction) Operands {
		return CoprocessorLoadStore{
			P: i.flag("p"), U: i.flag("u"), N: i.flag("n"), W: i.flag("w"), L: i.flag("l"),
			Rn: i.u8("rn"), CRd: i.u8("crd"), CPNum: i.u8("cpnum"),
			Offset: i.u8("offset"),
		}
	},
	"swi": func(i *Instruction) Operands {
		return SoftwareInterrupt{Imm: uint32(i.Field("imm24"))}
	},
}
