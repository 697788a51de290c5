package emu

import (
	"math/bits"

	"github.com/sarchlab/a32sim/insts"
	"github.com/sarchlab/a32sim/mmu"
)

// LoadStoreUnit performs translated memory accesses and holds the local
// exclusive monitor.
type LoadStoreUnit struct {
	translator Translator
	bus        Bus

	exclusive     bool
	exclusiveAddr uint32 // physical
}

// NewLoadStoreUnit creates a LoadStoreUnit on the given translator and
// physical memory.
func NewLoadStoreUnit(translator Translator, bus Bus) *LoadStoreUnit {
	return &LoadStoreUnit{translator: translator, bus: bus}
}

// Physical checks the alignment of an access of size bytes and returns
// the physical address of va.
func (lsu *LoadStoreUnit) Physical(va uint32, size int, kind mmu.AccessKind) (uint32, error) {
	if err := lsu.translator.CheckAlignment(va, size, kind); err != nil {
		return 0, err
	}
	return lsu.translator.Translate(va, kind)
}

// Load8 reads a byte.
func (lsu *LoadStoreUnit) Load8(va uint32) (uint32, error) {
	pa, err := lsu.Physical(va, 1, mmu.AccessRead)
	if err != nil {
		return 0, err
	}
	return uint32(lsu.bus.Read8(pa)), nil
}

// Load16 reads the halfword containing va.
func (lsu *LoadStoreUnit) Load16(va uint32) (uint32, error) {
	pa, err := lsu.Physical(va, 2, mmu.AccessRead)
	if err != nil {
		return 0, err
	}
	return uint32(lsu.bus.Read16(pa &^ 1)), nil
}

// Load32 reads the word containing va.
func (lsu *LoadStoreUnit) Load32(va uint32) (uint32, error) {
	pa, err := lsu.Physical(va, 4, mmu.AccessRead)
	if err != nil {
		return 0, err
	}
	return lsu.bus.Read32(pa &^ 3), nil
}

// LoadWord reads a word for LDR and SWP. An unaligned address reads the
// containing word rotated so that the addressed byte is the low byte.
func (lsu *LoadStoreUnit) LoadWord(va uint32) (uint32, error) {
	v, err := lsu.Load32(va)
	if err != nil {
		return 0, err
	}
	return bits.RotateLeft32(v, -8*int(va&3)), nil
}

// Store8 writes a byte.
func (lsu *LoadStoreUnit) Store8(va uint32, v uint32) error {
	pa, err := lsu.Physical(va, 1, mmu.AccessWrite)
	if err != nil {
		return err
	}
	lsu.bus.Write8(pa, uint8(v))
	return nil
}

// Store16 writes the halfword containing va.
func (lsu *LoadStoreUnit) Store16(va uint32, v uint32) error {
	pa, err := lsu.Physical(va, 2, mmu.AccessWrite)
	if err != nil {
		return err
	}
	lsu.bus.Write16(pa&^1, uint16(v))
	return nil
}

// Store32 writes the word containing va.
func (lsu *LoadStoreUnit) Store32(va uint32, v uint32) error {
	pa, err := lsu.Physical(va, 4, mmu.AccessWrite)
	if err != nil {
		return err
	}
	lsu.bus.Write32(pa&^3, v)
	return nil
}

// MarkExclusive tags the physical address pa in the local monitor.
func (lsu *LoadStoreUnit) MarkExclusive(pa uint32) {
	lsu.exclusive = true
	lsu.exclusiveAddr = pa
}

// CheckExclusive reports whether pa is tagged, then clears the monitor.
func (lsu *LoadStoreUnit) CheckExclusive(pa uint32) bool {
	ok := lsu.exclusive && lsu.exclusiveAddr == pa
	lsu.ClearExclusive()
	return ok
}

// ClearExclusive clears the local monitor.
func (lsu *LoadStoreUnit) ClearExclusive() {
	lsu.exclusive = false
}

// address computes the transfer address and the written-back base of a
// single-register transfer.
func address(base, offset uint32, pre, up bool) (addr, updated uint32) {
	updated = base - offset
	if up {
		updated = base + offset
	}

	if pre {
		return updated, updated
	}
	return base, updated
}

// execLoadStore executes LDR, STR, LDRB and STRB. The post-indexed forms
// with W set are the user-mode (T) variants, which translate like the
// normal forms because access permissions are not checked.
func (e *Emulator) execLoadStore(inst *insts.Instruction) error {
	ls := inst.Operands.(insts.LoadStore)

	offset := uint32(ls.Imm12)
	if ls.Register {
		if ls.Rm == PC {
			return unpredictable("%s with the PC as offset register", inst.Desc.Mnemonic)
		}
		offset, _ = ShiftImmediate(e.regs.Read(ls.Rm), ls.Shift, ls.Amount, e.regs.CPSR.C)
	}

	writeback := !ls.P || ls.W
	if writeback && (ls.Rn == PC || ls.Rn == ls.Rd) {
		return unpredictable("%s writeback with Rn=r%d Rd=r%d", inst.Desc.Mnemonic, ls.Rn, ls.Rd)
	}

	if ls.B && ls.Rd == PC {
		return unpredictable("%s with the PC as Rd", inst.Desc.Mnemonic)
	}

	addr, updated := address(e.reg(ls.Rn), offset, ls.P, ls.U)

	if !ls.L {
		var err error
		if ls.B {
			err = e.lsu.Store8(addr, e.reg(ls.Rd))
		} else {
			err = e.lsu.Store32(addr, e.reg(ls.Rd))
		}
		if err != nil {
			return err
		}

		if writeback {
			e.regs.Write(ls.Rn, updated)
		}
		return nil
	}

	var (
		v   uint32
		err error
	)
	if ls.B {
		v, err = e.lsu.Load8(addr)
	} else {
		v, err = e.lsu.LoadWord(addr)
	}
	if err != nil {
		return err
	}

	if writeback {
		e.regs.Write(ls.Rn, updated)
	}

	if ls.Rd == PC {
		e.loadPC(v)
	} else {
		e.regs.Write(ls.Rd, v)
	}

	return nil
}

// execExtraLoadStore executes the halfword, signed byte and doubleword
// transfers.
func (e *Emulator) execExtraLoadStore(inst *insts.Instruction) error {
	x := inst.Operands.(insts.ExtraLoadStore)
	op := inst.Op()

	offset := uint32(x.Imm8)
	if !x.I {
		if x.Rm == PC {
			return unpredictable("%s with the PC as offset register", inst.Desc.Mnemonic)
		}
		offset = e.regs.Read(x.Rm)
	}

	if !x.P && x.W {
		return unpredictable("%s post-indexed with W set", inst.Desc.Mnemonic)
	}

	writeback := !x.P || x.W
	if writeback && (x.Rn == PC || x.Rn == x.Rd) {
		return unpredictable("%s writeback with Rn=r%d Rd=r%d", inst.Desc.Mnemonic, x.Rn, x.Rd)
	}

	if op == insts.OpLDRD || op == insts.OpSTRD {
		return e.doubleword(inst, x, offset, writeback)
	}

	if x.Rd == PC {
		return unpredictable("%s with the PC as Rd", inst.Desc.Mnemonic)
	}

	addr, updated := address(e.reg(x.Rn), offset, x.P, x.U)

	if op == insts.OpSTRH {
		if err := e.lsu.Store16(addr, e.regs.Read(x.Rd)); err != nil {
			return err
		}
		if writeback {
			e.regs.Write(x.Rn, updated)
		}
		return nil
	}

	var (
		v   uint32
		err error
	)
	switch op {
	case insts.OpLDRH:
		v, err = e.lsu.Load16(addr)
	case insts.OpLDRSB:
		v, err = e.lsu.Load8(addr)
		v = uint32(int32(int8(v)))
	case insts.OpLDRSH:
		v, err = e.lsu.Load16(addr)
		v = uint32(int32(int16(v)))
	}
	if err != nil {
		return err
	}

	if writeback {
		e.regs.Write(x.Rn, updated)
	}
	e.regs.Write(x.Rd, v)

	return nil
}

func (e *Emulator) doubleword(
	inst *insts.Instruction, x insts.ExtraLoadStore, offset uint32, writeback bool,
) error {
	if x.Rd&1 != 0 {
		return undefined("%s with odd Rd r%d", inst.Desc.Mnemonic, x.Rd)
	}

	if x.Rd == 14 {
		return unpredictable("%s with Rd=r14", inst.Desc.Mnemonic)
	}

	if writeback && x.Rn == x.Rd+1 {
		return unpredictable("%s writeback with Rn=r%d", inst.Desc.Mnemonic, x.Rn)
	}

	addr, updated := address(e.reg(x.Rn), offset, x.P, x.U)

	kind := mmu.AccessRead
	if inst.Op() == insts.OpSTRD {
		kind = mmu.AccessWrite
	}
	if addr&7 != 0 {
		return &mmu.Fault{Status: mmu.FaultAlignment, Addr: addr, Kind: kind}
	}

	if inst.Op() == insts.OpSTRD {
		if _, err := e.lsu.Physical(addr+4, 4, mmu.AccessWrite); err != nil {
			return err
		}
		if err := e.lsu.Store32(addr, e.regs.Read(x.Rd)); err != nil {
			return err
		}
		if err := e.lsu.Store32(addr+4, e.regs.Read(x.Rd+1)); err != nil {
			return err
		}
	} else {
		lo, err := e.lsu.Load32(addr)
		if err != nil {
			return err
		}
		hi, err := e.lsu.Load32(addr + 4)
		if err != nil {
			return err
		}
		e.regs.Write(x.Rd, lo)
		e.regs.Write(x.Rd+1, hi)
	}

	if writeback {
		e.regs.Write(x.Rn, updated)
	}

	return nil
}

// execSwap executes SWP and SWPB.
func (e *Emulator) execSwap(inst *insts.Instruction) error {
	s := inst.Operands.(insts.Swap)

	if s.Rn == PC || s.Rd == PC || s.Rm == PC {
		return unpredictable("%s uses the PC", inst.Desc.Mnemonic)
	}
	if s.Rn == s.Rd || s.Rn == s.Rm {
		return unpredictable("%s with Rn aliasing Rd or Rm", inst.Desc.Mnemonic)
	}

	addr := e.regs.Read(s.Rn)
	size := 4
	if s.Byte {
		size = 1
	}
	if _, err := e.lsu.Physical(addr, size, mmu.AccessWrite); err != nil {
		return err
	}

	var (
		old uint32
		err error
	)
	if s.Byte {
		old, err = e.lsu.Load8(addr)
		if err == nil {
			err = e.lsu.Store8(addr, e.regs.Read(s.Rm))
		}
	} else {
		old, err = e.lsu.LoadWord(addr)
		if err == nil {
			err = e.lsu.Store32(addr, e.regs.Read(s.Rm))
		}
	}
	if err != nil {
		return err
	}

	e.regs.Write(s.Rd, old)
	return nil
}

// execExclusive executes the exclusive loads and stores against the local
// monitor. A store writes 0 to Rd on success and 1 on failure. Accesses
// must be aligned to their size.
func (e *Emulator) execExclusive(inst *insts.Instruction) error {
	x := inst.Operands.(insts.Exclusive)

	if x.Rn == PC || x.Rd == PC || (!x.Load && x.Rm == PC) {
		return unpredictable("%s uses the PC", inst.Desc.Mnemonic)
	}

	// The doubleword forms move a pair starting at an even register.
	first := x.Rd
	if !x.Load {
		first = x.Rm
	}
	if x.Size == 8 && (first&1 != 0 || first == 14) {
		return unpredictable("%s with r%d", inst.Desc.Mnemonic, first)
	}

	addr := e.regs.Read(x.Rn)
	kind := mmu.AccessRead
	if !x.Load {
		kind = mmu.AccessWrite
	}
	if addr&uint32(x.Size-1) != 0 {
		return &mmu.Fault{Status: mmu.FaultAlignment, Addr: addr, Kind: kind}
	}

	if x.Load {
		pa, err := e.lsu.Physical(addr, min(x.Size, 4), mmu.AccessRead)
		if err != nil {
			return err
		}

		switch x.Size {
		case 1:
			e.regs.Write(x.Rd, uint32(e.bus.Read8(pa)))
		case 2:
			e.regs.Write(x.Rd, uint32(e.bus.Read16(pa)))
		case 4:
			e.regs.Write(x.Rd, e.bus.Read32(pa))
		case 8:
			hi, err := e.lsu.Physical(addr+4, 4, mmu.AccessRead)
			if err != nil {
				return err
			}
			e.regs.Write(x.Rd, e.bus.Read32(pa))
			e.regs.Write(x.Rd+1, e.bus.Read32(hi))
		}

		e.lsu.MarkExclusive(pa)
		return nil
	}

	if x.Rd == x.Rn || x.Rd == x.Rm || (x.Size == 8 && x.Rd == x.Rm+1) {
		return unpredictable("%s with Rd aliasing Rn or Rm", inst.Desc.Mnemonic)
	}

	pa, err := e.lsu.Physical(addr, min(x.Size, 4), mmu.AccessWrite)
	if err != nil {
		return err
	}
	var hi uint32
	if x.Size == 8 {
		if hi, err = e.lsu.Physical(addr+4, 4, mmu.AccessWrite); err != nil {
			return err
		}
	}

	if !e.lsu.CheckExclusive(pa) {
		e.regs.Write(x.Rd, 1)
		return nil
	}

	v := e.regs.Read(x.Rm)
	switch x.Size {
	case 1:
		e.bus.Write8(pa, uint8(v))
	case 2:
		e.bus.Write16(pa, uint16(v))
	case 4:
		e.bus.Write32(pa, v)
	case 8:
		e.bus.Write32(pa, v)
		e.bus.Write32(hi, e.regs.Read(x.Rm+1))
	}

	e.regs.Write(x.Rd, 0)
	return nil
}
