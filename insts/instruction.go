package insts

import (
	"fmt"
	"strings"
)

// Instruction is one decoded occurrence of an instruction.
type Instruction struct {
	Desc *InstrDesc
	// Addr is the fetch address.
	Addr uint32
	// Words are the raw words consumed by the instruction.
	Words []uint32
	// Values holds every field of Desc.Format, in declaration order.
	Values []uint64
	// Cond is the value of the "cond" field, or CondAL for formats
	// without one.
	Cond     Cond
	Operands Operands
}

// Field returns the value of the named field. Unknown names read as zero.
func (i *Instruction) Field(name string) uint64 {
	f := i.Desc.Format.Field(name)
	if f == nil {
		return 0
	}
	return i.Values[f.Index]
}

func (i *Instruction) u8(name string) uint8 {
	return uint8(i.Field(name))
}

func (i *Instruction) flag(name string) bool {
	return i.Field(name) != 0
}

// Op returns the operation of the instruction.
func (i *Instruction) Op() Op {
	return i.Desc.Op
}

// String renders the mnemonic followed by every field value.
func (i *Instruction) String() string {
	var b strings.Builder
	b.WriteString(i.Desc.Mnemonic)
	if i.Cond != CondAL && i.Cond != CondNV {
		b.WriteString(i.Cond.String())
	}

	for idx, f := range i.Desc.Format.Fields {
		if f.Name == "cond" {
			continue
		}
		fmt.Fprintf(&b, " %s=%#x", f.Name, i.Values[idx]&f.Mask())
	}
	return b.String()
}
