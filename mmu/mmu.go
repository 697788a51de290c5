package mmu

import (
	"fmt"

	"github.com/go-logr/logr"
)

// ControlRegisters is the view of the system control coprocessor the
// translator reads. The translator never writes these registers.
type ControlRegisters interface {
	// TranslationEnabled reports the SCTLR M bit.
	TranslationEnabled() bool
	// AlignmentCheck reports the SCTLR A bit.
	AlignmentCheck() bool
	// TranslationBase returns TTBR0 or TTBR1.
	TranslationBase(n int) uint32
	// TranslationControl returns TTBCR.
	TranslationControl() uint32
}

// PhysicalMemory is read by the table walk.
type PhysicalMemory interface {
	Read32(addr uint32) uint32
}

// Stats holds translation statistics.
type Stats struct {
	Translations uint64
	Walks        uint64
	Faults       uint64
}

// MMU translates virtual addresses through the translation tables.
type MMU struct {
	ctrl  ControlRegisters
	mem   PhysicalMemory
	tlb   *TLB
	log   logr.Logger
	stats Stats
}

// Option configures an MMU.
type Option func(*MMU)

// WithTLBEntries sets the size of the translation cache.
func WithTLBEntries(n int) Option {
	return func(m *MMU) {
		m.tlb = NewTLB(n)
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(m *MMU) {
		m.log = log
	}
}

// New creates an MMU reading its configuration from ctrl and its tables
// from mem.
func New(ctrl ControlRegisters, mem PhysicalMemory, opts ...Option) *MMU {
	m := &MMU{
		ctrl: ctrl,
		mem:  mem,
		log:  logr.Discard(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.tlb == nil {
		m.tlb = NewTLB(64)
	}

	return m
}

// TLB returns the translation cache.
func (m *MMU) TLB() *TLB {
	return m.tlb
}

// Stats returns the translation statistics.
func (m *MMU) Stats() Stats {
	return m.stats
}

// Translate returns the physical address of va. With translation disabled
// the address is returned unchanged.
func (m *MMU) Translate(va uint32, kind AccessKind) (uint32, error) {
	if !m.ctrl.TranslationEnabled() {
		return va, nil
	}

	m.stats.Translations++

	if pa, ok := m.tlb.Lookup(va); ok {
		return pa, nil
	}

	pa, _, err := m.Walk(va, kind)
	if err != nil {
		if _, ok := err.(*Fault); ok {
			m.stats.Faults++
		}
		return 0, err
	}

	m.tlb.Insert(va, pa)
	return pa, nil
}

// CheckAlignment returns an alignment fault when alignment checking is
// enabled and va is not a multiple of size.
func (m *MMU) CheckAlignment(va uint32, size int, kind AccessKind) error {
	if size <= 1 || !m.ctrl.AlignmentCheck() || va&uint32(size-1) == 0 {
		return nil
	}

	m.stats.Faults++
	return &Fault{Status: FaultAlignment, Addr: va, Kind: kind}
}

// firstLevelAddress selects the translation table for va and returns the
// physical address of its first-level descriptor.
func (m *MMU) firstLevelAddress(va uint32) uint32 {
	n := m.ctrl.TranslationControl() & 7

	if n == 0 || va>>(32-n) == 0 {
		base := m.ctrl.TranslationBase(0) & (^uint32(0) << (14 - n))
		index := va << n >> (20 + n)
		return base | index<<2
	}

	base := m.ctrl.TranslationBase(1) & 0xFFFFC000
	return base | (va>>20)<<2
}

// Walk performs an uncached table walk. It returns the physical address
// and the last descriptor read.
func (m *MMU) Walk(va uint32, kind AccessKind) (uint32, Descriptor, error) {
	m.stats.Walks++

	l1Addr := m.firstLevelAddress(va)
	l1 := ClassifyFirstLevel(m.mem.Read32(l1Addr))

	var fine bool
	var l2Addr uint32

	switch l1.Type {
	case DescFault:
		return 0, l1, &Fault{Status: FaultTranslationSection, Level: 1, Addr: va, Kind: kind}
	case DescSection:
		return l1.Map(va), l1, nil
	case DescSupersection:
		// PA[35:32] in bits 23:20 and PA[39:36] in bits 8:5.
		if l1.Raw&0x00F001E0 != 0 {
			return 0, l1, fmt.Errorf("%w: supersection with extended base 0x%08X for 0x%08X",
				ErrUnsupportedDescriptor, l1.Raw, va)
		}
		return l1.Map(va), l1, nil
	case DescCoarseTable:
		l2Addr = l1.Base | (va>>12&0xFF)<<2
	case DescFineTable:
		fine = true
		l2Addr = l1.Base | (va>>10&0x3FF)<<2
	}

	l2 := ClassifySecondLevel(m.mem.Read32(l2Addr), fine)
	l2.Domain = l1.Domain

	switch l2.Type {
	case DescFault:
		return 0, l2, &Fault{
			Status: FaultTranslationPage, Domain: l1.Domain, Level: 2, Addr: va, Kind: kind,
		}
	case DescTinyPage:
		return 0, l2, fmt.Errorf("%w: tiny page descriptor 0x%08X for 0x%08X",
			ErrUnsupportedDescriptor, l2.Raw, va)
	}

	return l2.Map(va), l2, nil
}

// InvalidateAll drops every cached translation.
func (m *MMU) InvalidateAll() {
	m.log.V(2).Info("tlb invalidate all")
	m.tlb.InvalidateAll()
}

// InvalidateEntry drops the cached translation of va.
func (m *MMU) InvalidateEntry(va uint32) {
	m.log.V(2).Info("tlb invalidate entry", "va", fmt.Sprintf("0x%08X", va))
	m.tlb.InvalidateEntry(va)
}
