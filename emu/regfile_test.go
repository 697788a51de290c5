package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a32sim/emu"
	"github.com/sarchlab/a32sim/insts"
)

var _ = Describe("RegFile", func() {
	var regs *emu.RegFile

	BeforeEach(func() {
		regs = emu.NewRegFile()
	})

	It("should reset into Supervisor mode with interrupts masked", func() {
		Expect(regs.CPSR.Mode).To(Equal(emu.ModeSupervisor))
		Expect(regs.CPSR.I).To(BeTrue())
		Expect(regs.CPSR.F).To(BeTrue())
		Expect(regs.CPSR.T).To(BeFalse())
	})

	It("should bank r13 and r14 per exception mode", func() {
		regs.CPSR.Mode = emu.ModeUser
		regs.Write(13, 0x1000)
		regs.Write(14, 0x1004)

		regs.CPSR.Mode = emu.ModeIRQ
		Expect(regs.Read(13)).To(BeZero())
		regs.Write(13, 0x2000)

		regs.CPSR.Mode = emu.ModeSupervisor
		regs.Write(13, 0x3000)

		regs.CPSR.Mode = emu.ModeSystem
		Expect(regs.Read(13)).To(Equal(uint32(0x1000)))
		Expect(regs.Read(14)).To(Equal(uint32(0x1004)))

		Expect(regs.ReadMode(emu.ModeIRQ, 13)).To(Equal(uint32(0x2000)))
		Expect(regs.ReadMode(emu.ModeSupervisor, 13)).To(Equal(uint32(0x3000)))
		Expect(regs.ReadMode(emu.ModeAbort, 13)).To(BeZero())
	})

	It("should bank r8 to r14 in FIQ mode only", func() {
		regs.CPSR.Mode = emu.ModeUser
		for r := uint8(0); r < 15; r++ {
			regs.Write(r, uint32(r))
		}

		regs.CPSR.Mode = emu.ModeFIQ
		Expect(regs.Read(7)).To(Equal(uint32(7)))
		for r := uint8(8); r < 15; r++ {
			Expect(regs.Read(r)).To(BeZero())
			regs.Write(r, 0xF00+uint32(r))
		}

		Expect(regs.ReadMode(emu.ModeUser, 8)).To(Equal(uint32(8)))
		Expect(regs.ReadMode(emu.ModeIRQ, 12)).To(Equal(uint32(12)))
		Expect(regs.ReadMode(emu.ModeFIQ, 12)).To(Equal(uint32(0xF0C)))
	})

	It("should share the PC across modes", func() {
		regs.SetPC(0x8000)
		regs.CPSR.Mode = emu.ModeUndefined
		Expect(regs.Read(emu.PC)).To(Equal(uint32(0x8000)))
		Expect(regs.ReadMode(emu.ModeFIQ, emu.PC)).To(Equal(uint32(0x8000)))
	})

	It("should have an SPSR only in exception modes", func() {
		regs.CPSR.Mode = emu.ModeUser
		_, ok := regs.SPSR()
		Expect(ok).To(BeFalse())
		Expect(regs.SetSPSR(emu.PSR{})).To(BeFalse())

		regs.CPSR.Mode = emu.ModeAbort
		Expect(regs.SetSPSR(emu.PSR{Z: true, Mode: emu.ModeUser})).To(BeTrue())
		spsr, ok := regs.SPSR()
		Expect(ok).To(BeTrue())
		Expect(spsr.Z).To(BeTrue())

		_, ok = regs.SPSRFor(emu.ModeUndefined)
		Expect(ok).To(BeTrue())
		other, _ := regs.SPSRFor(emu.ModeUndefined)
		Expect(other.Z).To(BeFalse())
	})
})

var _ = Describe("Mode", func() {
	It("should know the defined modes", func() {
		for _, m := range []emu.Mode{
			emu.ModeUser, emu.ModeFIQ, emu.ModeIRQ, emu.ModeSupervisor,
			emu.ModeAbort, emu.ModeUndefined, emu.ModeSystem,
		} {
			Expect(m.Valid()).To(BeTrue(), m.String())
		}
		Expect(emu.Mode(0x14).Valid()).To(BeFalse())
		Expect(emu.Mode(0x00).Valid()).To(BeFalse())
	})

	It("should name modes", func() {
		Expect(emu.ModeSupervisor.String()).To(Equal("svc"))
		Expect(emu.Mode(0x14).String()).To(Equal("mode(0x14)"))
	})
})

var _ = Describe("PSR", func() {
	It("should pack and unpack every bit", func() {
		p := emu.PSR{N: true, C: true, Q: true, I: true, T: true, Mode: emu.ModeIRQ}
		Expect(p.Pack()).To(Equal(uint32(0xA80000B2)))
		Expect(emu.UnpackPSR(0xA80000B2)).To(Equal(p))
	})

	It("should render flags and mode", func() {
		p := emu.PSR{Z: true, I: true, F: true, Mode: emu.ModeSupervisor}
		Expect(p.String()).To(Equal("-Z---IF- svc"))
	})

	DescribeTable("ConditionPassed",
		func(cond insts.Cond, p emu.PSR, want bool) {
			Expect(p.ConditionPassed(cond)).To(Equal(want))
		},
		Entry("EQ with Z", insts.CondEQ, emu.PSR{Z: true}, true),
		Entry("EQ without Z", insts.CondEQ, emu.PSR{}, false),
		Entry("NE without Z", insts.CondNE, emu.PSR{}, true),
		Entry("NE with Z", insts.CondNE, emu.PSR{Z: true}, false),
		Entry("CS with C", insts.CondCS, emu.PSR{C: true}, true),
		Entry("CS without C", insts.CondCS, emu.PSR{}, false),
		Entry("CC without C", insts.CondCC, emu.PSR{}, true),
		Entry("CC with C", insts.CondCC, emu.PSR{C: true}, false),
		Entry("MI with N", insts.CondMI, emu.PSR{N: true}, true),
		Entry("MI without N", insts.CondMI, emu.PSR{}, false),
		Entry("PL without N", insts.CondPL, emu.PSR{}, true),
		Entry("PL with N", insts.CondPL, emu.PSR{N: true}, false),
		Entry("VS with V", insts.CondVS, emu.PSR{V: true}, true),
		Entry("VS without V", insts.CondVS, emu.PSR{}, false),
		Entry("VC without V", insts.CondVC, emu.PSR{}, true),
		Entry("VC with V", insts.CondVC, emu.PSR{V: true}, false),
		Entry("HI with C and not Z", insts.CondHI, emu.PSR{C: true}, true),
		Entry("HI with C and Z", insts.CondHI, emu.PSR{C: true, Z: true}, false),
		Entry("LS without C", insts.CondLS, emu.PSR{}, true),
		Entry("LS with C and not Z", insts.CondLS, emu.PSR{C: true}, false),
		Entry("GE with N == V", insts.CondGE, emu.PSR{N: true, V: true}, true),
		Entry("GE with N != V", insts.CondGE, emu.PSR{N: true}, false),
		Entry("LT with N != V", insts.CondLT, emu.PSR{V: true}, true),
		Entry("LT with N == V", insts.CondLT, emu.PSR{}, false),
		Entry("GT with N == V and not Z", insts.CondGT, emu.PSR{}, true),
		Entry("GT with Z", insts.CondGT, emu.PSR{Z: true}, false),
		Entry("LE with Z", insts.CondLE, emu.PSR{Z: true}, true),
		Entry("LE with N == V and not Z", insts.CondLE, emu.PSR{}, false),
		Entry("AL", insts.CondAL, emu.PSR{}, true),
		Entry("NV", insts.CondNV, emu.PSR{}, false),
	)
})
