package insts

import "fmt"

// Endianness selects how the words of the fetch window are numbered and
// assembled when a field is extracted.
type Endianness uint8

// Supported word orders.
const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// Field is a named bit range of a Format.
type Field struct {
	// Name is unique within the format.
	Name string
	// ID is unique across the whole table.
	ID int
	// FirstBit is the position of the most significant bit of the field,
	// counted from bit 0 at the least significant end of the format.
	FirstBit int
	// Width is the number of bits, 1 to 64.
	Width int
	// Signed fields are sign-extended on extraction.
	Signed bool
	// Index is the declaration position of the field within its format.
	Index int
}

// LastBit converts the field position into the lastBit argument of Extract
// for an instruction format of formatSize bits.
func (f *Field) LastBit(endian Endianness, formatSize int) int {
	if endian == BigEndian {
		lsb := f.FirstBit - f.Width + 1
		return formatSize - 1 - lsb
	}
	return f.FirstBit
}

// Mask returns the largest value the field can hold.
func (f *Field) Mask() uint64 {
	if f.Width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << f.Width) - 1
}

// Format is an instruction encoding layout.
type Format struct {
	ID     int
	Name   string
	Size   int // bits
	Fields []*Field

	byName map[string]*Field
	bind   Binder
}

// Field returns the named field, or nil.
func (f *Format) Field(name string) *Field {
	return f.byName[name]
}

// Words returns the number of 32-bit words spanned by the format.
func (f *Format) Words() int {
	return (f.Size + 31) / 32
}

// Constraint requires a field to hold a fixed value for an instruction to
// match, or with Exclude set, to hold any other value.
type Constraint struct {
	Field   *Field
	Value   uint64
	Exclude bool
}

// Matches reports whether v satisfies the constraint.
func (c Constraint) Matches(v uint64) bool {
	return (v == c.Value) != c.Exclude
}

// BranchInfo is the optional control-flow metadata of an instruction.
type BranchInfo struct {
	// CondField names the field holding the branch condition.
	CondField string
	// Target is a symbolic description of the branch target.
	Target string
	// DelaySlots is the number of instructions executed after the branch
	// before control transfers. Always zero for ARM.
	DelaySlots int
}

// InstrDesc describes one instruction of the table.
type InstrDesc struct {
	// ID is the dense position of the descriptor in the table.
	ID int
	// Name is unique across the table, e.g. "add.rs".
	Name string
	// Mnemonic is the name up to the first '.', e.g. "add".
	Mnemonic string
	Op       Op
	Size     int // bytes
	Format   *Format
	Decode   []Constraint
	Branch   *BranchInfo
}

// Unconditional reports whether the descriptor fixes its "cond" field,
// i.e. belongs to the unconditional instruction space.
func (d *InstrDesc) Unconditional() bool {
	for _, c := range d.Decode {
		if c.Field.Name == "cond" && !c.Exclude {
			return true
		}
	}
	return false
}

func (d *InstrDesc) String() string {
	return fmt.Sprintf("%s(%s)", d.Name, d.Format.Name)
}
