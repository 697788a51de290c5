package emu

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// GDB register numbers beyond r0-r15.
const (
	DebugRegCPSR = 25
)

// ReadRegister reads a register by GDB number as seen from the current
// mode. The PC reads as the address of the next instruction to execute.
func (e *Emulator) ReadRegister(n int) (uint32, error) {
	switch {
	case n >= 0 && n < PC:
		return e.regs.Read(uint8(n)), nil
	case n == PC:
		return e.regs.PC(), nil
	case n == DebugRegCPSR:
		return e.regs.CPSR.Pack(), nil
	}
	return 0, fmt.Errorf("register %d: no such register", n)
}

// WriteRegister writes a register by GDB number. Writing the CPSR with an
// invalid mode fails.
func (e *Emulator) WriteRegister(n int, v uint32) error {
	switch {
	case n >= 0 && n < PC:
		e.regs.Write(uint8(n), v)
	case n == PC:
		e.regs.SetPC(v)
	case n == DebugRegCPSR:
		psr := UnpackPSR(v)
		if !psr.Mode.Valid() {
			return fmt.Errorf("cpsr 0x%08X: invalid mode", v)
		}
		e.regs.CPSR = psr
	default:
		return fmt.Errorf("register %d: no such register", n)
	}
	return nil
}

// debugState is the snapshot printed by DumpState.
type debugState struct {
	Registers [16]uint32
	CPSR      string
	SPSR      string
	Stats     Stats
}

// DumpState writes the architectural state of the current mode to w.
func (e *Emulator) DumpState(w io.Writer) {
	s := debugState{
		CPSR:  e.regs.CPSR.String(),
		SPSR:  "-",
		Stats: e.stats,
	}

	for i := range s.Registers {
		s.Registers[i] = e.regs.Read(uint8(i))
	}

	if spsr, ok := e.regs.SPSR(); ok {
		s.SPSR = spsr.String()
	}

	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	cfg.Fdump(w, s)
}
