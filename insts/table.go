package insts

import (
	"bufio"
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrBadTable reports a malformed format or instruction table.
	ErrBadTable = errors.New("bad instruction table")
	// ErrAmbiguousDecode reports two descriptors that cannot be told apart.
	ErrAmbiguousDecode = errors.New("ambiguous decode")
	// ErrUnknownInstruction reports bytes that match no descriptor.
	ErrUnknownInstruction = errors.New("unknown instruction")
)

//go:embed arm.isa
var armTable []byte

// Table is the static set of formats and instruction descriptors together
// with the decode tree built from them.
type Table struct {
	Formats []*Format
	Descs   []*InstrDesc

	formats map[string]*Format
	descs   map[string]*InstrDesc
	tree    decodeTree
	nFields int
}

// LoadARMTable parses the embedded ARM table.
func LoadARMTable() (*Table, error) {
	return ParseTable(bytes.NewReader(armTable), ARMBinders)
}

// ParseTable reads a table description and builds its decode tree.
//
// The description is line oriented. '#' starts a comment.
//
//	format <name> <bits> <field>:<first bit>:<width>[:s] ...
//	instr <name> <format> <field>=<value> <field>!=<value> ... [| cond=<field> target=<expr> delay=<n>]
//
// Fields are declared most significant first and constraints must follow
// the declaration order of their format. A field!=value constraint
// matches every other value of the field. No encoding may match two
// instructions: overlapping descriptors are rejected with
// ErrAmbiguousDecode, so the order of the instr lines does not matter.
func ParseTable(r io.Reader, binders map[string]Binder) (*Table, error) {
	t := &Table{
		formats: make(map[string]*Format),
		descs:   make(map[string]*InstrDesc),
	}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "format":
			err = t.parseFormat(fields[1:], binders)
		case "instr":
			err = t.parseInstr(fields[1:])
		default:
			err = fmt.Errorf("%w: unknown directive %q", ErrBadTable, fields[0])
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read instruction table: %w", err)
	}

	for _, d := range t.Descs {
		if err := t.tree.insert(d); err != nil {
			return nil, err
		}
	}

	if err := checkOverlaps(t.Descs); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Table) parseFormat(args []string, binders map[string]Binder) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: format needs a name, a size and fields", ErrBadTable)
	}

	name := args[0]
	if _, dup := t.formats[name]; dup {
		return fmt.Errorf("%w: duplicate format %s", ErrBadTable, name)
	}

	size, err := strconv.Atoi(args[1])
	if err != nil || size <= 0 || size%32 != 0 {
		return fmt.Errorf("%w: format %s: size %q is not a positive multiple of 32",
			ErrBadTable, name, args[1])
	}

	bind, ok := binders[name]
	if !ok {
		return fmt.Errorf("%w: format %s has no operand binder", ErrBadTable, name)
	}

	f := &Format{
		ID:     len(t.Formats),
		Name:   name,
		Size:   size,
		byName: make(map[string]*Field),
		bind:   bind,
	}

	for _, def := range args[2:] {
		field, err := t.parseField(f, def)
		if err != nil {
			return err
		}
		f.Fields = append(f.Fields, field)
		f.byName[field.Name] = field
	}

	t.Formats = append(t.Formats, f)
	t.formats[name] = f
	return nil
}

func (t *Table) parseField(f *Format, def string) (*Field, error) {
	parts := strings.Split(def, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return nil, fmt.Errorf("%w: format %s: bad field %q", ErrBadTable, f.Name, def)
	}

	first, err1 := strconv.Atoi(parts[1])
	width, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: format %s: bad field %q", ErrBadTable, f.Name, def)
	}

	switch {
	case width < 1 || width > 64:
		return nil, fmt.Errorf("%w: field %s.%s: width %d out of range",
			ErrBadTable, f.Name, parts[0], width)
	case first >= f.Size || first-width+1 < 0:
		return nil, fmt.Errorf("%w: field %s.%s does not fit in %d bits",
			ErrBadTable, f.Name, parts[0], f.Size)
	case f.byName[parts[0]] != nil:
		return nil, fmt.Errorf("%w: duplicate field %s.%s", ErrBadTable, f.Name, parts[0])
	}

	field := &Field{
		Name:     parts[0],
		ID:       t.nFields,
		FirstBit: first,
		Width:    width,
		Index:    len(f.Fields),
	}
	if len(parts) == 4 {
		if parts[3] != "s" {
			return nil, fmt.Errorf("%w: field %s.%s: unknown flag %q",
				ErrBadTable, f.Name, parts[0], parts[3])
		}
		field.Signed = true
	}

	t.nFields++
	return field, nil
}

func (t *Table) parseInstr(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: instr needs a name and a format", ErrBadTable)
	}

	name := args[0]
	if _, dup := t.descs[name]; dup {
		return fmt.Errorf("%w: duplicate instruction %s", ErrBadTable, name)
	}

	mnemonic, _, _ := strings.Cut(name, ".")
	op, ok := OpFromMnemonic(mnemonic)
	if !ok {
		return fmt.Errorf("%w: %s: unknown mnemonic %q", ErrBadTable, name, mnemonic)
	}

	f, ok := t.formats[args[1]]
	if !ok {
		return fmt.Errorf("%w: %s: unknown format %s", ErrBadTable, name, args[1])
	}

	d := &InstrDesc{
		ID:       len(t.Descs),
		Name:     name,
		Mnemonic: mnemonic,
		Op:       op,
		Size:     f.Size / 8,
		Format:   f,
	}

	meta := false
	lastIndex := -1
	for _, arg := range args[2:] {
		if arg == "|" {
			meta = true
			continue
		}

		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("%w: %s: expected key=value, got %q", ErrBadTable, name, arg)
		}

		if meta {
			if err := parseBranchInfo(d, key, value); err != nil {
				return err
			}
			continue
		}

		key, exclude := strings.CutSuffix(key, "!")

		field := f.Field(key)
		if field == nil {
			return fmt.Errorf("%w: %s: format %s has no field %s", ErrBadTable, name, f.Name, key)
		}
		if field.Index <= lastIndex {
			return fmt.Errorf("%w: %s: constraint on %s is out of field declaration order",
				ErrBadTable, name, key)
		}
		lastIndex = field.Index

		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil || v&^field.Mask() != 0 {
			return fmt.Errorf("%w: %s: value %q does not fit field %s", ErrBadTable, name, value, key)
		}

		d.Decode = append(d.Decode, Constraint{Field: field, Value: v, Exclude: exclude})
	}

	t.Descs = append(t.Descs, d)
	t.descs[name] = d
	return nil
}

func parseBranchInfo(d *InstrDesc, key, value string) error {
	if d.Branch == nil {
		d.Branch = &BranchInfo{}
	}

	switch key {
	case "cond":
		d.Branch.CondField = value
	case "target":
		d.Branch.Target = value
	case "delay":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s: bad delay slot count %q", ErrBadTable, d.Name, value)
		}
		d.Branch.DelaySlots = n
	default:
		return fmt.Errorf("%w: %s: unknown metadata %q", ErrBadTable, d.Name, key)
	}
	return nil
}

// Lookup returns the descriptor with the given name, or nil.
func (t *Table) Lookup(name string) *InstrDesc {
	return t.descs[name]
}

// Format returns the format with the given name, or nil.
func (t *Table) Format(name string) *Format {
	return t.formats[name]
}

// TreeNodes returns the number of nodes of the decode tree.
func (t *Table) TreeNodes() int {
	return t.tree.nodes
}

// Match identifies the descriptor for the instruction at the start of the
// window, fetching further words as the walk needs them.
func (t *Table) Match(w *FetchWindow) (*InstrDesc, error) {
	d, err := t.tree.match(w)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w at 0x%08X", ErrUnknownInstruction, w.Addr())
	}
	return d, nil
}
