// Package sysctrl models the system control coprocessor (CP15): the
// registers the MMU and the exception dispatcher depend on, fault status
// recording and TLB maintenance.
package sysctrl

import (
	"fmt"

	"github.com/go-logr/logr"
)

// Key addresses a CP15 register as encoded in MRC and MCR.
type Key struct {
	CRn  uint8
	Opc1 uint8
	CRm  uint8
	Opc2 uint8
}

func (k Key) String() string {
	return fmt.Sprintf("c%d, %d, c%d, %d", k.CRn, k.Opc1, k.CRm, k.Opc2)
}

// Registers.
var (
	MainID          = Key{CRn: 0, Opc2: 0}
	CacheType       = Key{CRn: 0, Opc2: 1}
	Control         = Key{CRn: 1, Opc2: 0}
	AuxControl      = Key{CRn: 1, Opc2: 1}
	CoprocAccess    = Key{CRn: 1, Opc2: 2}
	TTBR0           = Key{CRn: 2, Opc2: 0}
	TTBR1           = Key{CRn: 2, Opc2: 1}
	TTBCR           = Key{CRn: 2, Opc2: 2}
	DomainAccess    = Key{CRn: 3}
	DataFaultStatus = Key{CRn: 5, Opc2: 0}
	InstFaultStatus = Key{CRn: 5, Opc2: 1}
	FaultAddress    = Key{CRn: 6, Opc2: 0}
	InstFaultAddr   = Key{CRn: 6, Opc2: 2}
	FCSEPID         = Key{CRn: 13, Opc2: 0}
	ContextID       = Key{CRn: 13, Opc2: 1}
)

// SCTLR bits.
const (
	ControlM uint32 = 1 << 0  // MMU enable
	ControlA uint32 = 1 << 1  // alignment check
	ControlC uint32 = 1 << 2  // data cache
	ControlW uint32 = 1 << 3  // write buffer
	ControlV uint32 = 1 << 13 // high vectors

	controlSBO uint32 = 0x70
)

// Reset values.
const (
	DefaultMainID    uint32 = 0x41069265 // ARM926EJ-S
	DefaultCacheType uint32 = 0x1D152152
)

// TLBMaintainer receives the TLB maintenance operations written to c8.
type TLBMaintainer interface {
	InvalidateAll()
	InvalidateEntry(va uint32)
}

// SystemControl is a CP15 register store.
type SystemControl struct {
	regs     map[Key]uint32
	readOnly map[Key]bool
	tlb      TLBMaintainer
	log      logr.Logger
}

// Option configures a SystemControl.
type Option func(*SystemControl)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *SystemControl) {
		s.log = log
	}
}

// WithHighVectors sets the reset value of the SCTLR V bit.
func WithHighVectors(high bool) Option {
	return func(s *SystemControl) {
		if high {
			s.regs[Control] |= ControlV
		} else {
			s.regs[Control] &^= ControlV
		}
	}
}

// WithMainID overrides the main ID register.
func WithMainID(id uint32) Option {
	return func(s *SystemControl) {
		s.regs[MainID] = id
	}
}

// New creates a system control coprocessor in its reset state.
func New(opts ...Option) *SystemControl {
	s := &SystemControl{
		regs: map[Key]uint32{
			MainID:          DefaultMainID,
			CacheType:       DefaultCacheType,
			Control:         controlSBO,
			AuxControl:      0,
			CoprocAccess:    0,
			TTBR0:           0,
			TTBR1:           0,
			TTBCR:           0,
			DomainAccess:    0,
			DataFaultStatus: 0,
			InstFaultStatus: 0,
			FaultAddress:    0,
			InstFaultAddr:   0,
			FCSEPID:         0,
			ContextID:       0,
		},
		readOnly: map[Key]bool{
			MainID:    true,
			CacheType: true,
		},
		log: logr.Discard(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AttachTLB sets the receiver of TLB maintenance operations.
func (s *SystemControl) AttachTLB(tlb TLBMaintainer) {
	s.tlb = tlb
}

// Read returns a register. Unimplemented registers read as zero.
func (s *SystemControl) Read(k Key) uint32 {
	v, ok := s.regs[k]
	if !ok {
		s.log.Info("read of unimplemented CP15 register", "reg", k.String())
	}
	return v
}

// Write sets a register. Writes to read-only and unimplemented registers
// are ignored.
func (s *SystemControl) Write(k Key, v uint32) {
	switch {
	case k.CRn == 7:
		// Cache and write buffer maintenance has no functional effect.
		return
	case k.CRn == 8:
		s.tlbOperation(k, v)
		return
	case s.readOnly[k]:
		s.log.Info("write to read-only CP15 register", "reg", k.String(), "value", v)
		return
	}

	if _, ok := s.regs[k]; !ok {
		s.log.Info("write to unimplemented CP15 register", "reg", k.String(), "value", v)
		return
	}

	switch k {
	case Control:
		v |= controlSBO
	case TTBCR:
		v &= 7
	}

	s.regs[k] = v
}

// tlbOperation forwards c8 writes. CRm 5, 6 and 7 select the instruction,
// data and unified TLB, which are all the same TLB here.
func (s *SystemControl) tlbOperation(k Key, v uint32) {
	if k.CRm < 5 || k.CRm > 7 || k.Opc1 != 0 {
		s.log.Info("unimplemented TLB operation", "reg", k.String())
		return
	}

	if s.tlb == nil {
		s.log.Info("TLB operation without a TLB", "reg", k.String())
		return
	}

	switch k.Opc2 {
	case 0:
		s.tlb.InvalidateAll()
	case 1:
		s.tlb.InvalidateEntry(v)
	case 2:
		// By ASID. No ASIDs are tracked.
		s.tlb.InvalidateAll()
	default:
		s.log.Info("unimplemented TLB operation", "reg", k.String())
	}
}

// MRC reads a register for an MRC instruction.
func (s *SystemControl) MRC(opc1, crn, crm, opc2 uint8) (uint32, error) {
	return s.Read(Key{CRn: crn, Opc1: opc1, CRm: crm, Opc2: opc2}), nil
}

// MCR writes a register for an MCR instruction.
func (s *SystemControl) MCR(opc1, crn, crm, opc2 uint8, value uint32) error {
	s.Write(Key{CRn: crn, Opc1: opc1, CRm: crm, Opc2: opc2}, value)
	return nil
}

// TranslationEnabled reports the SCTLR M bit.
func (s *SystemControl) TranslationEnabled() bool {
	return s.regs[Control]&ControlM != 0
}

// AlignmentCheck reports the SCTLR A bit.
func (s *SystemControl) AlignmentCheck() bool {
	return s.regs[Control]&ControlA != 0
}

// HighVectors reports the SCTLR V bit.
func (s *SystemControl) HighVectors() bool {
	return s.regs[Control]&ControlV != 0
}

// TranslationBase returns TTBR0 or TTBR1.
func (s *SystemControl) TranslationBase(n int) uint32 {
	if n == 1 {
		return s.regs[TTBR1]
	}
	return s.regs[TTBR0]
}

// TranslationControl returns TTBCR.
func (s *SystemControl) TranslationControl() uint32 {
	return s.regs[TTBCR]
}

// DomainAccessControl returns the DACR.
func (s *SystemControl) DomainAccessControl() uint32 {
	return s.regs[DomainAccess]
}

// RecordFault updates the fault status and address registers for an
// abort. Prefetch aborts record the instruction fault registers.
func (s *SystemControl) RecordFault(status uint32, addr uint32, prefetch bool) {
	if prefetch {
		s.regs[InstFaultStatus] = status
		s.regs[InstFaultAddr] = addr
		return
	}

	s.regs[DataFaultStatus] = status
	s.regs[FaultAddress] = addr
}
