package insts

import "fmt"

// node is one check of the decode tree. A match follows child, a mismatch
// follows sibling.
type node struct {
	field   *Field
	size    int // bits of the format owning field
	value   uint64
	exclude bool
	instr   *InstrDesc
	child   *node
	sibling *node
}

// decodeTree is a discrimination tree over the descriptor constraints.
// Constraint prefixes shared by several descriptors share nodes.
type decodeTree struct {
	root  *node
	nodes int
}

func (t *decodeTree) insert(desc *InstrDesc) error {
	if len(desc.Decode) == 0 {
		return fmt.Errorf("%w: %s has no decode constraints", ErrBadTable, desc.Name)
	}

	link := &t.root
	for i, c := range desc.Decode {
		n := t.findOrAppend(link, c, desc.Format.Size)

		if n.instr != nil {
			return fmt.Errorf("%w: %s is shadowed by %s",
				ErrAmbiguousDecode, desc.Name, n.instr.Name)
		}

		if i == len(desc.Decode)-1 {
			if n.child != nil {
				return fmt.Errorf("%w: constraints of %s are a prefix of another instruction",
					ErrAmbiguousDecode, desc.Name)
			}
			n.instr = desc
		}

		link = &n.child
	}

	return nil
}

// findOrAppend returns the node of the sibling list at link that checks the
// same constraint as c, appending a new one at the end of the list
// when there is none. Appending keeps table order as match order.
func (t *decodeTree) findOrAppend(link **node, c Constraint, size int) *node {
	p := link
	for *p != nil {
		if (*p).field == c.Field && (*p).value == c.Value && (*p).exclude == c.Exclude {
			return *p
		}
		p = &(*p).sibling
	}

	n := &node{field: c.Field, size: size, value: c.Value, exclude: c.Exclude}
	*p = n
	t.nodes++
	return n
}

// match walks the tree depth first. checkOverlaps guarantees that at most
// one terminal can be reached, so the walk order only affects speed.
func (t *decodeTree) match(w *FetchWindow) (*InstrDesc, error) {
	return t.walk(t.root, w)
}

func (t *decodeTree) walk(n *node, w *FetchWindow) (*InstrDesc, error) {
	for ; n != nil; n = n.sibling {
		v, err := Extract(w, n.field.LastBit(w.endian, n.size), n.field.Width, false)
		if err != nil {
			return nil, err
		}

		if (v == n.value) == n.exclude {
			continue
		}

		if n.instr != nil {
			return n.instr, nil
		}

		found, err := t.walk(n.child, w)
		if err != nil || found != nil {
			return found, err
		}
	}

	return nil, nil
}

// pattern is the set of bits fixed by the equality constraints of a
// descriptor, positioned within its format.
type pattern struct {
	mask, value uint64
}

func fieldShift(f *Field) int {
	return f.FirstBit - f.Width + 1
}

func fixedBits(d *InstrDesc) pattern {
	var p pattern
	for _, c := range d.Decode {
		if c.Exclude {
			continue
		}
		p.mask |= c.Field.Mask() << fieldShift(c.Field)
		p.value |= c.Value << fieldShift(c.Field)
	}
	return p
}

// excludedBy reports whether every encoding matching p breaks one of the
// exclusions of d.
func excludedBy(d *InstrDesc, p pattern) bool {
	for _, c := range d.Decode {
		if !c.Exclude {
			continue
		}
		m := c.Field.Mask() << fieldShift(c.Field)
		if p.mask&m == m && p.value&m == c.Value<<fieldShift(c.Field) {
			return true
		}
	}
	return false
}

// disjoint reports whether no encoding can match both a and b.
func disjoint(a, b *InstrDesc) bool {
	pa, pb := fixedBits(a), fixedBits(b)
	if pa.mask&pb.mask&(pa.value^pb.value) != 0 {
		return true
	}
	return excludedBy(a, pb) || excludedBy(b, pa)
}

// checkOverlaps rejects any two descriptors of the same size that some
// encoding matches both of. Formats wider than 64 bits are not compared.
func checkOverlaps(descs []*InstrDesc) error {
	for i, a := range descs {
		if a.Format.Size > 64 {
			continue
		}
		for _, b := range descs[i+1:] {
			if b.Format.Size != a.Format.Size {
				continue
			}
			if !disjoint(a, b) {
				return fmt.Errorf("%w: %s and %s overlap", ErrAmbiguousDecode, a.Name, b.Name)
			}
		}
	}
	return nil
}
