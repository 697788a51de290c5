package mmu

import (
	"errors"
	"fmt"
)

// AccessKind tells the translator what the address is used for.
type AccessKind uint8

// Access kinds.
const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessFetch
)

func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessFetch:
		return "fetch"
	}
	return fmt.Sprintf("AccessKind(%d)", uint8(k))
}

// Fault status codes, as written to the fault status register.
const (
	FaultAlignment          uint8 = 0x1
	FaultTranslationSection uint8 = 0x5
	FaultTranslationPage    uint8 = 0x7
)

// ErrUnsupportedDescriptor is returned for descriptor encodings the walk
// does not implement. It is not an architectural fault.
var ErrUnsupportedDescriptor = errors.New("unsupported translation descriptor")

// Fault is an architectural memory abort raised by translation.
type Fault struct {
	Status uint8
	Domain uint8
	// Level is the table level that produced the fault, 0 for alignment.
	Level int
	Addr  uint32
	Kind  AccessKind
}

func (f *Fault) Error() string {
	switch f.Status {
	case FaultAlignment:
		return fmt.Sprintf("alignment fault on %s at 0x%08X", f.Kind, f.Addr)
	default:
		return fmt.Sprintf("translation fault (status 0x%X, level %d, domain %d) on %s at 0x%08X",
			f.Status, f.Level, f.Domain, f.Kind, f.Addr)
	}
}

// FSR returns the fault status register encoding of the fault.
func (f *Fault) FSR() uint32 {
	return uint32(f.Domain)<<4 | uint32(f.Status)
}
