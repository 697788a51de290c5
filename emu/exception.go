package emu

import "fmt"

// Exception is an ARM exception class.
type Exception uint8

// Exception classes.
const (
	ExceptionNone Exception = iota
	ExceptionReset
	ExceptionUndefined
	ExceptionSWI
	ExceptionPrefetchAbort
	ExceptionDataAbort
	ExceptionIRQ
	ExceptionFIQ

	// NumExceptions is the number of exception classes, including
	// ExceptionNone.
	NumExceptions
)

func (x Exception) String() string {
	switch x {
	case ExceptionNone:
		return "none"
	case ExceptionReset:
		return "reset"
	case ExceptionUndefined:
		return "undefined"
	case ExceptionSWI:
		return "swi"
	case ExceptionPrefetchAbort:
		return "prefetch abort"
	case ExceptionDataAbort:
		return "data abort"
	case ExceptionIRQ:
		return "irq"
	case ExceptionFIQ:
		return "fiq"
	}
	return fmt.Sprintf("Exception(%d)", uint8(x))
}

// HighVectorBase is the exception vector base when high vectors are
// selected.
const HighVectorBase uint32 = 0xFFFF0000

type vector struct {
	mode   Mode
	offset uint32
	lr     uint32 // added to the address of the interrupted instruction
	maskF  bool
}

var vectors = [NumExceptions]vector{
	ExceptionReset:         {mode: ModeSupervisor, offset: 0x00, maskF: true},
	ExceptionUndefined:     {mode: ModeUndefined, offset: 0x04, lr: 4},
	ExceptionSWI:           {mode: ModeSupervisor, offset: 0x08, lr: 4},
	ExceptionPrefetchAbort: {mode: ModeAbort, offset: 0x0C, lr: 4},
	ExceptionDataAbort:     {mode: ModeAbort, offset: 0x10, lr: 8},
	ExceptionIRQ:           {mode: ModeIRQ, offset: 0x18, lr: 4},
	ExceptionFIQ:           {mode: ModeFIQ, offset: 0x1C, lr: 4, maskF: true},
}

// VectorAddress returns the address of the vector of exc under the
// current vector base.
func (e *Emulator) VectorAddress(exc Exception) uint32 {
	base := uint32(0)
	if e.vectorsHigh() {
		base = HighVectorBase
	}
	return base + vectors[exc].offset
}

func (e *Emulator) vectorsHigh() bool {
	if hv, ok := e.coprocs[15].(interface{ HighVectors() bool }); ok {
		return hv.HighVectors()
	}
	return e.highVectors
}

// dispatch enters the handler of exc. pc is the address of the
// instruction that raised it, or of the next instruction to execute for
// interrupts.
func (e *Emulator) dispatch(exc Exception, pc uint32) {
	if exc == ExceptionNone || exc >= NumExceptions {
		return
	}

	v := vectors[exc]
	old := e.regs.CPSR

	e.regs.CPSR.Mode = v.mode
	if exc != ExceptionReset {
		e.regs.SetSPSR(old)
		e.regs.Write(14, pc+v.lr)
	}

	e.regs.CPSR.I = true
	e.regs.CPSR.T = false
	if v.maskF {
		e.regs.CPSR.F = true
	}

	target := e.VectorAddress(exc)
	e.regs.SetPC(target)

	e.lsu.ClearExclusive()
	e.stats.Exceptions[exc]++
	e.taken = exc

	e.log.V(1).Info("exception",
		"class", exc.String(),
		"from", fmt.Sprintf("0x%08X", pc),
		"vector", fmt.Sprintf("0x%08X", target),
		"mode", v.mode.String())
}

// Dispatch takes exc as if raised by the instruction at the current PC.
// A masked IRQ or FIQ is dropped and Dispatch returns false.
func (e *Emulator) Dispatch(exc Exception) bool {
	if e.masked(exc) || exc == ExceptionNone || exc >= NumExceptions {
		return false
	}

	e.dispatch(exc, e.regs.PC())
	return true
}

// RaiseInterrupt requests an IRQ or FIQ before the next instruction. It
// returns false without effect when the interrupt is masked.
func (e *Emulator) RaiseInterrupt(exc Exception) bool {
	if exc != ExceptionIRQ && exc != ExceptionFIQ {
		e.log.Info("not an interrupt", "exception", exc.String())
		return false
	}

	return e.Dispatch(exc)
}

// masked reports whether exc is an interrupt disabled by the CPSR.
func (e *Emulator) masked(exc Exception) bool {
	switch exc {
	case ExceptionIRQ:
		return e.regs.CPSR.I
	case ExceptionFIQ:
		return e.regs.CPSR.F
	}
	return false
}
