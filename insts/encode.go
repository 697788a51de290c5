package insts

import (
	"fmt"
	"sort"
)

// Encode builds the words of the named instruction. The decode constraints
// are applied first, then the given field values. A field left out reads
// as zero and must still satisfy the exclusions. Values of signed fields
// may be passed as two's complement and are truncated to the field width.
func (t *Table) Encode(endian Endianness, name string, fields map[string]uint64) ([]uint32, error) {
	d := t.Lookup(name)
	if d == nil {
		return nil, fmt.Errorf("%w: no instruction named %s", ErrBadTable, name)
	}

	f := d.Format
	words := make([]uint32, f.Words())

	fixed := make(map[string]uint64, len(d.Decode))
	for _, c := range d.Decode {
		if c.Exclude {
			if !c.Matches(fields[c.Field.Name] & c.Field.Mask()) {
				return nil, fmt.Errorf("%s: field %s must not be %#x", name, c.Field.Name, c.Value)
			}
			continue
		}
		words = Deposit(words, endian, c.Field.LastBit(endian, f.Size), c.Field.Width, c.Value)
		fixed[c.Field.Name] = c.Value
	}

	// Sorted for deterministic error reporting.
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		field := f.Field(n)
		if field == nil {
			return nil, fmt.Errorf("%s: format %s has no field %s", name, f.Name, n)
		}

		v := fields[n]
		if field.Signed {
			v &= field.Mask()
		}
		if v&^field.Mask() != 0 {
			return nil, fmt.Errorf("%s: value %#x does not fit field %s", name, v, n)
		}
		if want, ok := fixed[n]; ok && want != v {
			return nil, fmt.Errorf("%s: field %s is fixed to %#x", name, n, want)
		}

		words = Deposit(words, endian, field.LastBit(endian, f.Size), field.Width, v)
	}

	return words, nil
}

// MustEncode is Encode for callers that build known-good encodings. It
// encodes a single-word little-endian instruction and panics on error.
func (t *Table) MustEncode(name string, fields map[string]uint64) uint32 {
	words, err := t.Encode(LittleEndian, name, fields)
	if err != nil {
		panic(err)
	}
	return words[0]
}
