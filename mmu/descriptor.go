// Package mmu implements the ARMv5/ARMv6 short-descriptor virtual memory
// system: the two-level translation table walk and a translation cache.
package mmu

import "fmt"

// DescriptorType identifies the kind of a translation table entry.
type DescriptorType uint8

// First- and second-level descriptor types.
const (
	DescFault DescriptorType = iota
	DescCoarseTable
	DescSection
	DescSupersection
	DescFineTable
	DescLargePage
	DescSmallPage
	DescTinyPage
)

var descNames = [...]string{
	"fault", "coarse", "section", "supersection", "fine",
	"large page", "small page", "tiny page",
}

func (t DescriptorType) String() string {
	if int(t) < len(descNames) {
		return descNames[t]
	}
	return fmt.Sprintf("DescriptorType(%d)", uint8(t))
}

// Descriptor is a classified translation table entry.
type Descriptor struct {
	Type DescriptorType
	Raw  uint32
	// Base is the output address (sections and pages) or the address of
	// the second-level table (coarse and fine).
	Base   uint32
	Domain uint8
	// AP holds the access permission bits. Small pages carry four 2-bit
	// subpage fields, packed ap3:ap2:ap1:ap0.
	AP uint8
	C  bool
	B  bool
}

// ClassifyFirstLevel decodes a first-level descriptor.
func ClassifyFirstLevel(raw uint32) Descriptor {
	d := Descriptor{
		Raw:    raw,
		Domain: uint8(raw >> 5 & 0xF),
	}

	switch raw & 3 {
	case 0:
		d.Type = DescFault
		d.Domain = 0
	case 1:
		d.Type = DescCoarseTable
		d.Base = raw & 0xFFFFFC00
	case 2:
		d.AP = uint8(raw >> 10 & 3)
		d.C = raw&(1<<3) != 0
		d.B = raw&(1<<2) != 0
		if raw&(1<<18) != 0 {
			d.Type = DescSupersection
			d.Base = raw & 0xFF000000
			d.Domain = 0
		} else {
			d.Type = DescSection
			d.Base = raw & 0xFFF00000
		}
	case 3:
		d.Type = DescFineTable
		d.Base = raw & 0xFFFFF000
	}

	return d
}

// ClassifySecondLevel decodes a second-level descriptor read from a coarse
// or fine table. In a coarse table type 3 is an extended small page, in a
// fine table it is a tiny page.
func ClassifySecondLevel(raw uint32, fine bool) Descriptor {
	d := Descriptor{
		Raw: raw,
		C:   raw&(1<<3) != 0,
		B:   raw&(1<<2) != 0,
	}

	switch raw & 3 {
	case 0:
		d = Descriptor{Type: DescFault, Raw: raw}
	case 1:
		d.Type = DescLargePage
		d.Base = raw & 0xFFFF0000
		d.AP = uint8(raw >> 4)
	case 2:
		d.Type = DescSmallPage
		d.Base = raw & 0xFFFFF000
		d.AP = uint8(raw >> 4)
	case 3:
		if fine {
			d.Type = DescTinyPage
			d.Base = raw & 0xFFFFFC00
			d.AP = uint8(raw >> 4 & 3)
		} else {
			d.Type = DescSmallPage
			d.Base = raw & 0xFFFFF000
			d.AP = uint8(raw >> 4 & 3)
		}
	}

	return d
}

// Size returns the number of bytes mapped by a section or page descriptor,
// or 0 for fault and table descriptors.
func (d Descriptor) Size() uint32 {
	switch d.Type {
	case DescSection:
		return 1 << 20
	case DescSupersection:
		return 1 << 24
	case DescLargePage:
		return 1 << 16
	case DescSmallPage:
		return 1 << 12
	case DescTinyPage:
		return 1 << 10
	}
	return 0
}

// Map returns the output address of va through a section or page
// descriptor.
func (d Descriptor) Map(va uint32) uint32 {
	return d.Base | va&(d.Size()-1)
}
