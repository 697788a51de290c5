package emu

import (
	"math/bits"

	"github.com/sarchlab/a32sim/insts"
	"github.com/sarchlab/a32sim/mmu"
)

// blockRange returns the lowest transfer address and the written-back
// base of a block transfer of n registers.
func blockRange(base uint32, n int, pre, up bool) (start, updated uint32) {
	size := uint32(4 * n)

	switch {
	case up && !pre: // IA
		return base, base + size
	case up && pre: // IB
		return base + 4, base + size
	case !up && !pre: // DA
		return base - size + 4, base - size
	default: // DB
		return base - size, base - size
	}
}

// execBlockTransfer executes LDM and STM. Registers are transferred in
// ascending order from the lowest address. With S set, a list without the
// PC (or any STM) transfers the User bank, and an LDM that loads the PC
// also restores the CPSR from the SPSR.
func (e *Emulator) execBlockTransfer(inst *insts.Instruction) error {
	b := inst.Operands.(insts.BlockTransfer)
	name := inst.Desc.Mnemonic

	n := bits.OnesCount16(b.List)
	if n == 0 {
		return unpredictable("%s with an empty register list", name)
	}

	if b.W && b.Rn == PC {
		return unpredictable("%s writeback to the PC", name)
	}

	if b.W && b.List&(1<<b.Rn) != 0 {
		return unpredictable("%s writeback with r%d in the list", name, b.Rn)
	}

	loadsPC := b.L && b.List&(1<<PC) != 0
	userBank := b.S && !loadsPC
	mode := e.regs.CPSR.Mode

	if b.S && !mode.HasSPSR() {
		return unpredictable("%s with S set in %s mode", name, mode)
	}

	if userBank && b.W {
		return unpredictable("%s user-bank transfer with writeback", name)
	}

	bank := mode
	if userBank {
		bank = ModeUser
	}

	base := e.regs.Read(b.Rn)
	start, updated := blockRange(base, n, b.P, b.U)

	if b.L {
		return e.loadMultiple(b, bank, start, updated)
	}
	return e.storeMultiple(b, bank, start, updated)
}

func (e *Emulator) loadMultiple(b insts.BlockTransfer, bank Mode, start, updated uint32) error {
	var values [16]uint32

	addr := start
	for r := uint8(0); r < 16; r++ {
		if b.List&(1<<r) == 0 {
			continue
		}

		v, err := e.lsu.Load32(addr)
		if err != nil {
			return err
		}
		values[r] = v
		addr += 4
	}

	if b.W {
		e.regs.Write(b.Rn, updated)
	}

	for r := uint8(0); r < PC; r++ {
		if b.List&(1<<r) != 0 {
			e.regs.WriteMode(bank, r, values[r])
		}
	}

	if b.List&(1<<PC) == 0 {
		return nil
	}

	if !b.S {
		e.loadPC(values[PC])
		return nil
	}

	spsr, _ := e.regs.SPSR()
	e.regs.CPSR = spsr
	if spsr.T {
		e.branchTo(values[PC] &^ 1)
	} else {
		e.branchTo(values[PC] &^ 3)
	}

	return nil
}

func (e *Emulator) storeMultiple(b insts.BlockTransfer, bank Mode, start, updated uint32) error {
	var phys [16]uint32

	addr := start
	for r := uint8(0); r < 16; r++ {
		if b.List&(1<<r) == 0 {
			continue
		}

		pa, err := e.lsu.Physical(addr, 4, mmu.AccessWrite)
		if err != nil {
			return err
		}
		phys[r] = pa &^ 3
		addr += 4
	}

	for r := uint8(0); r < 16; r++ {
		if b.List&(1<<r) == 0 {
			continue
		}

		v := e.regs.ReadMode(bank, r)
		if r == PC {
			v = e.reg(PC)
		}
		e.bus.Write32(phys[r], v)
	}

	if b.W {
		e.regs.Write(b.Rn, updated)
	}

	return nil
}
