// Package emu provides functional ARM (A32) emulation.
package emu

import (
	"fmt"
	"strings"

	"github.com/sarchlab/a32sim/insts"
)

// Mode is a processor mode, encoded as in CPSR[4:0].
type Mode uint8

// Processor modes.
const (
	ModeUser       Mode = 0x10
	ModeFIQ        Mode = 0x11
	ModeIRQ        Mode = 0x12
	ModeSupervisor Mode = 0x13
	ModeAbort      Mode = 0x17
	ModeUndefined  Mode = 0x1B
	ModeSystem     Mode = 0x1F
)

func (m Mode) String() string {
	switch m {
	case ModeUser:
		return "usr"
	case ModeFIQ:
		return "fiq"
	case ModeIRQ:
		return "irq"
	case ModeSupervisor:
		return "svc"
	case ModeAbort:
		return "abt"
	case ModeUndefined:
		return "und"
	case ModeSystem:
		return "sys"
	}
	return fmt.Sprintf("mode(0x%02X)", uint8(m))
}

// Valid reports whether m is an architecturally defined mode.
func (m Mode) Valid() bool {
	return m.bank() >= 0 || m == ModeUser || m == ModeSystem
}

// Privileged reports whether m is any mode but User.
func (m Mode) Privileged() bool {
	return m != ModeUser
}

// HasSPSR reports whether m owns a saved program status register.
func (m Mode) HasSPSR() bool {
	return m.bank() >= 0
}

// bank returns the index of the exception mode's banked R13/R14 and SPSR,
// or -1 for User and System.
func (m Mode) bank() int {
	switch m {
	case ModeFIQ:
		return 0
	case ModeIRQ:
		return 1
	case ModeSupervisor:
		return 2
	case ModeAbort:
		return 3
	case ModeUndefined:
		return 4
	}
	return -1
}

// PSR is a program status register.
type PSR struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool
	// Q is the sticky saturation flag.
	Q bool
	// I disables IRQ.
	I bool
	// F disables FIQ.
	F bool
	// T selects Thumb state.
	T bool

	Mode Mode
}

// Status register bits.
const (
	psrN uint32 = 1 << 31
	psrZ uint32 = 1 << 30
	psrC uint32 = 1 << 29
	psrV uint32 = 1 << 28
	psrQ uint32 = 1 << 27
	psrI uint32 = 1 << 7
	psrF uint32 = 1 << 6
	psrT uint32 = 1 << 5

	psrModeMask uint32 = 0x1F
)

// Pack returns the 32-bit encoding of the register.
func (p PSR) Pack() uint32 {
	v := uint32(p.Mode) & psrModeMask
	for _, b := range []struct {
		set bool
		bit uint32
	}{
		{p.N, psrN}, {p.Z, psrZ}, {p.C, psrC}, {p.V, psrV},
		{p.Q, psrQ}, {p.I, psrI}, {p.F, psrF}, {p.T, psrT},
	} {
		if b.set {
			v |= b.bit
		}
	}
	return v
}

// UnpackPSR decodes a 32-bit status register value.
func UnpackPSR(v uint32) PSR {
	return PSR{
		N:    v&psrN != 0,
		Z:    v&psrZ != 0,
		C:    v&psrC != 0,
		V:    v&psrV != 0,
		Q:    v&psrQ != 0,
		I:    v&psrI != 0,
		F:    v&psrF != 0,
		T:    v&psrT != 0,
		Mode: Mode(v & psrModeMask),
	}
}

// ConditionPassed evaluates a condition code against the flags. CondNV
// never passes.
func (p PSR) ConditionPassed(cond insts.Cond) bool {
	switch cond {
	case insts.CondEQ:
		return p.Z
	case insts.CondNE:
		return !p.Z
	case insts.CondCS:
		return p.C
	case insts.CondCC:
		return !p.C
	case insts.CondMI:
		return p.N
	case insts.CondPL:
		return !p.N
	case insts.CondVS:
		return p.V
	case insts.CondVC:
		return !p.V
	case insts.CondHI:
		return p.C && !p.Z
	case insts.CondLS:
		return !p.C || p.Z
	case insts.CondGE:
		return p.N == p.V
	case insts.CondLT:
		return p.N != p.V
	case insts.CondGT:
		return !p.Z && p.N == p.V
	case insts.CondLE:
		return p.Z || p.N != p.V
	case insts.CondAL:
		return true
	}
	return false
}

func (p PSR) String() string {
	var b strings.Builder
	for _, f := range []struct {
		set  bool
		name byte
	}{
		{p.N, 'N'}, {p.Z, 'Z'}, {p.C, 'C'}, {p.V, 'V'}, {p.Q, 'Q'},
		{p.I, 'I'}, {p.F, 'F'}, {p.T, 'T'},
	} {
		if f.set {
			b.WriteByte(f.name)
		} else {
			b.WriteByte('-')
		}
	}
	b.WriteByte(' ')
	b.WriteString(p.Mode.String())
	return b.String()
}

// PC is the register number of the program counter.
const PC = 15

// RegFile is the ARM register file with its mode-banked registers.
// Register access by number goes through the current mode.
type RegFile struct {
	// R holds the User/System bank. R[15] is the address of the
	// instruction being executed.
	R [16]uint32

	// CPSR is the current program status register.
	CPSR PSR

	fiq  [7]uint32    // R8_fiq to R14_fiq
	bank [5][2]uint32 // R13 and R14 of fiq, irq, svc, abt, und
	spsr [5]PSR
}

// NewRegFile returns a register file in the reset state: Supervisor mode
// with both interrupt kinds disabled.
func NewRegFile() *RegFile {
	return &RegFile{
		CPSR: PSR{Mode: ModeSupervisor, I: true, F: true},
	}
}

func (r *RegFile) slot(mode Mode, n uint8) *uint32 {
	n &= 15

	switch {
	case n == PC:
		return &r.R[PC]
	case mode == ModeFIQ && n >= 8:
		return &r.fiq[n-8]
	case n >= 13:
		if b := mode.bank(); b > 0 {
			return &r.bank[b][n-13]
		}
	}

	return &r.R[n]
}

// Read returns register n of the current mode. R15 reads return the raw
// program counter.
func (r *RegFile) Read(n uint8) uint32 {
	return *r.slot(r.CPSR.Mode, n)
}

// Write sets register n of the current mode.
func (r *RegFile) Write(n uint8, value uint32) {
	*r.slot(r.CPSR.Mode, n) = value
}

// ReadMode returns register n as seen from the given mode.
func (r *RegFile) ReadMode(mode Mode, n uint8) uint32 {
	return *r.slot(mode, n)
}

// WriteMode sets register n as seen from the given mode.
func (r *RegFile) WriteMode(mode Mode, n uint8, value uint32) {
	*r.slot(mode, n) = value
}

// PC returns the program counter.
func (r *RegFile) PC() uint32 {
	return r.R[PC]
}

// SetPC sets the program counter.
func (r *RegFile) SetPC(pc uint32) {
	r.R[PC] = pc
}

// SPSR returns the saved status register of the current mode. ok is false
// in User and System mode, which have none.
func (r *RegFile) SPSR() (psr PSR, ok bool) {
	return r.SPSRFor(r.CPSR.Mode)
}

// SPSRFor returns the saved status register of the given mode.
func (r *RegFile) SPSRFor(mode Mode) (PSR, bool) {
	b := mode.bank()
	if b < 0 {
		return PSR{}, false
	}
	return r.spsr[b], true
}

// SetSPSR sets the saved status register of the current mode. It reports
// false in User and System mode.
func (r *RegFile) SetSPSR(psr PSR) bool {
	return r.SetSPSRFor(r.CPSR.Mode, psr)
}

// SetSPSRFor sets the saved status register of the given mode.
func (r *RegFile) SetSPSRFor(mode Mode, psr PSR) bool {
	b := mode.bank()
	if b < 0 {
		return false
	}
	r.spsr[b] = psr
	return true
}
