package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a32sim/emu"
)

var _ = Describe("Load and store", func() {
	var (
		e    *emu.Emulator
		regs *emu.RegFile
		mem  *emu.Memory
	)

	BeforeEach(func() {
		e = emu.NewEmulator()
		regs = e.RegFile()
		mem = e.Memory()
		mem.Write32(0x9000, 0x44332211)
		mem.Write32(0x9004, 0x88776655)
	})

	Describe("single transfers", func() {
		It("should store with pre-indexed writeback", func() {
			loadWords(e, 0x8000, 0xE5A10004) // str r0, [r1, #4]!
			regs.Write(0, 0xAB)
			regs.Write(1, 0x9000)

			e.Step()

			Expect(mem.Read32(0x9004)).To(Equal(uint32(0xAB)))
			Expect(regs.Read(1)).To(Equal(uint32(0x9004)))
		})

		It("should load with post-indexed writeback", func() {
			loadWords(e, 0x8000, 0xE4912004) // ldr r2, [r1], #4
			regs.Write(1, 0x9000)

			e.Step()

			Expect(regs.Read(2)).To(Equal(uint32(0x44332211)))
			Expect(regs.Read(1)).To(Equal(uint32(0x9004)))
		})

		It("should scale a register offset", func() {
			loadWords(e, 0x8000, 0xE7910102) // ldr r0, [r1, r2, lsl #2]
			regs.Write(1, 0x9000)
			regs.Write(2, 1)

			e.Step()

			Expect(regs.Read(0)).To(Equal(uint32(0x88776655)))
		})

		It("should load bytes", func() {
			loadWords(e, 0x8000, 0xE5D10001) // ldrb r0, [r1, #1]
			regs.Write(1, 0x9000)

			e.Step()

			Expect(regs.Read(0)).To(Equal(uint32(0x22)))
		})

		It("should rotate unaligned word loads", func() {
			loadWords(e, 0x8000, 0xE5910000) // ldr r0, [r1]
			regs.Write(1, 0x9001)

			e.Step()

			Expect(regs.Read(0)).To(Equal(uint32(0x11443322)))
		})

		It("should address literals relative to the PC", func() {
			loadWords(e, 0x8000,
				0xE51F0004, // ldr r0, [pc, #-4]
				0xCAFEBABE,
			)

			e.Step()

			Expect(regs.Read(0)).To(Equal(uint32(0xCAFEBABE)))
		})

		It("should branch when loading the PC", func() {
			loadWords(e, 0x8000, 0xE591F000) // ldr pc, [r1]
			mem.Write32(0x9100, 0xA000)
			regs.Write(1, 0x9100)

			e.Step()

			Expect(regs.PC()).To(Equal(uint32(0xA000)))
			Expect(regs.CPSR.T).To(BeFalse())
		})

		It("should interwork when loading an odd address into the PC", func() {
			loadWords(e, 0x8000, 0xE591F000) // ldr pc, [r1]
			mem.Write32(0x9100, 0xA001)
			regs.Write(1, 0x9100)

			e.Step()

			Expect(regs.PC()).To(Equal(uint32(0xA000)))
			Expect(regs.CPSR.T).To(BeTrue())
		})

		It("should refuse writeback into the loaded register", func() {
			loadWords(e, 0x8000, 0xE5B11004) // ldr r1, [r1, #4]!
			regs.Write(1, 0x9000)

			result := e.Step()

			Expect(result.Unpredictable).To(MatchError(emu.ErrUnpredictable))
			Expect(regs.Read(1)).To(Equal(uint32(0x9000)))
		})
	})

	Describe("halfword, signed and doubleword transfers", func() {
		It("should load and store halfwords", func() {
			loadWords(e, 0x8000,
				0xE1D100B2, // ldrh r0, [r1, #2]
				0xE1C100B0, // strh r0, [r1]
			)
			regs.Write(1, 0x9000)

			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0x4433)))

			e.Step()
			Expect(mem.Read32(0x9000)).To(Equal(uint32(0x44334433)))
		})

		It("should sign-extend loads", func() {
			loadWords(e, 0x8000,
				0xE1D100D0, // ldrsb r0, [r1]
				0xE1D100F0, // ldrsh r0, [r1]
			)
			mem.Write16(0x9100, 0x8081)
			regs.Write(1, 0x9100)

			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0xFFFFFF81)))

			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0xFFFF8081)))
		})

		It("should transfer doublewords", func() {
			loadWords(e, 0x8000,
				0xE1C120D0, // ldrd r2, [r1]
				0xE1C120F8, // strd r2, [r1, #8]
			)
			regs.Write(1, 0x9000)

			e.Step()
			Expect(regs.Read(2)).To(Equal(uint32(0x44332211)))
			Expect(regs.Read(3)).To(Equal(uint32(0x88776655)))

			e.Step()
			Expect(mem.Read32(0x9008)).To(Equal(uint32(0x44332211)))
			Expect(mem.Read32(0x900C)).To(Equal(uint32(0x88776655)))
		})

		It("should make an odd first register undefined", func() {
			loadWords(e, 0x8000, 0xE1C010D0) // ldrd r1, [r0]
			regs.Write(0, 0x9000)

			Expect(e.Step().Exception).To(Equal(emu.ExceptionUndefined))
		})

		It("should abort on a misaligned doubleword", func() {
			loadWords(e, 0x8000, 0xE1C120D0) // ldrd r2, [r1]
			regs.Write(1, 0x9004)

			result := e.Step()

			Expect(result.Exception).To(Equal(emu.ExceptionDataAbort))
			Expect(regs.ReadMode(emu.ModeSupervisor, 2)).To(BeZero())
		})
	})

	Describe("swap and exclusive access", func() {
		It("should swap words and bytes", func() {
			loadWords(e, 0x8000,
				0xE1020091, // swp r0, r1, [r2]
				0xE1420091, // swpb r0, r1, [r2]
			)
			regs.Write(1, 0xDEADBEEF)
			regs.Write(2, 0x9000)

			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0x44332211)))
			Expect(mem.Read32(0x9000)).To(Equal(uint32(0xDEADBEEF)))

			regs.Write(1, 0x42)
			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0xEF)))
			Expect(mem.Read32(0x9000)).To(Equal(uint32(0xDEADBE42)))
		})

		It("should refuse a swap whose base aliases a data register", func() {
			loadWords(e, 0x8000, 0xE1000091) // swp r0, r1, [r0]
			regs.Write(0, 0x9000)

			Expect(e.Step().Unpredictable).To(MatchError(emu.ErrUnpredictable))
			Expect(mem.Read32(0x9000)).To(Equal(uint32(0x44332211)))
		})

		It("should succeed once after LDREX", func() {
			loadWords(e, 0x8000,
				0xE1910F9F, // ldrex r0, [r1]
				0xE1812F93, // strex r2, r3, [r1]
				0xE1812F93, // strex r2, r3, [r1]
			)
			regs.Write(1, 0x9000)
			regs.Write(3, 0x77)

			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0x44332211)))

			e.Step()
			Expect(regs.Read(2)).To(BeZero())
			Expect(mem.Read32(0x9000)).To(Equal(uint32(0x77)))

			regs.Write(3, 0x99)
			e.Step()
			Expect(regs.Read(2)).To(Equal(uint32(1)))
			Expect(mem.Read32(0x9000)).To(Equal(uint32(0x77)))
		})

		It("should abort on unaligned exclusive access", func() {
			loadWords(e, 0x8000, 0xE1910F9F) // ldrex r0, [r1]
			regs.Write(1, 0x9002)

			Expect(e.Step().Exception).To(Equal(emu.ExceptionDataAbort))
		})

		It("should transfer exclusive bytes", func() {
			loadWords(e, 0x8000,
				0xE1D10F9F, // ldrexb r0, [r1]
				0xE1C12F93, // strexb r2, r3, [r1]
			)
			regs.Write(1, 0x9001)
			regs.Write(3, 0x1AB)

			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0x22)))

			e.Step()
			Expect(regs.Read(2)).To(BeZero())
			Expect(mem.Read32(0x9000)).To(Equal(uint32(0x4433AB11)))
		})

		It("should transfer exclusive halfwords", func() {
			loadWords(e, 0x8000,
				0xE1F10F9F, // ldrexh r0, [r1]
				0xE1E12F93, // strexh r2, r3, [r1]
			)
			regs.Write(1, 0x9002)
			regs.Write(3, 0xBEEF)

			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0x4433)))

			e.Step()
			Expect(regs.Read(2)).To(BeZero())
			Expect(mem.Read32(0x9000)).To(Equal(uint32(0xBEEF2211)))
		})

		It("should abort on an odd exclusive halfword address", func() {
			loadWords(e, 0x8000, 0xE1F10F9F) // ldrexh r0, [r1]
			regs.Write(1, 0x9001)

			Expect(e.Step().Exception).To(Equal(emu.ExceptionDataAbort))
		})

		It("should transfer exclusive doublewords", func() {
			loadWords(e, 0x8000,
				0xE1B40F9F, // ldrexd r0, r1, [r4]
				0xE1A45F92, // strexd r5, r2, r3, [r4]
			)
			regs.Write(2, 1)
			regs.Write(3, 2)
			regs.Write(4, 0x9000)

			e.Step()
			Expect(regs.Read(0)).To(Equal(uint32(0x44332211)))
			Expect(regs.Read(1)).To(Equal(uint32(0x88776655)))

			e.Step()
			Expect(regs.Read(5)).To(BeZero())
			Expect(mem.Read32(0x9000)).To(Equal(uint32(1)))
			Expect(mem.Read32(0x9004)).To(Equal(uint32(2)))
		})

		It("should refuse an exclusive doubleword into an odd register pair", func() {
			loadWords(e, 0x8000, 0xE1B41F9F) // ldrexd r1, r2, [r4]
			regs.Write(4, 0x9000)

			Expect(e.Step().Unpredictable).To(MatchError(emu.ErrUnpredictable))
			Expect(regs.Read(1)).To(BeZero())
		})

		It("should abort on a doubleword exclusive that is not 8-byte aligned", func() {
			loadWords(e, 0x8000, 0xE1B40F9F) // ldrexd r0, r1, [r4]
			regs.Write(4, 0x9004)

			Expect(e.Step().Exception).To(Equal(emu.ExceptionDataAbort))
		})
	})

	Describe("block transfers", func() {
		It("should push and pop a register range", func() {
			loadWords(e, 0x8000,
				0xE92D000F, // stmdb sp!, {r0-r3}
				0xE8BD00F0, // ldmia sp!, {r4-r7}
			)
			regs.Write(13, 0xA010)
			for r := uint8(0); r < 4; r++ {
				regs.Write(r, 0x100+uint32(r))
			}

			e.Step()
			Expect(regs.Read(13)).To(Equal(uint32(0xA000)))
			Expect(mem.Read32(0xA000)).To(Equal(uint32(0x100)))
			Expect(mem.Read32(0xA00C)).To(Equal(uint32(0x103)))

			e.Step()
			Expect(regs.Read(13)).To(Equal(uint32(0xA010)))
			Expect(regs.Read(4)).To(Equal(uint32(0x100)))
			Expect(regs.Read(7)).To(Equal(uint32(0x103)))
		})

		It("should address increment-before and decrement-after", func() {
			loadWords(e, 0x8000,
				0xE9800002, // stmib r0, {r1}
				0xE8100006, // ldmda r0, {r1, r2}
			)
			regs.Write(0, 0x9000)
			regs.Write(1, 0x5A)

			e.Step()
			Expect(mem.Read32(0x9004)).To(Equal(uint32(0x5A)))

			regs.Write(0, 0x9004)
			e.Step()
			Expect(regs.Read(1)).To(Equal(uint32(0x44332211)))
			Expect(regs.Read(2)).To(Equal(uint32(0x5A)))
		})

		DescribeTable("unpredictable forms",
			func(word uint32, mode emu.Mode) {
				loadWords(e, 0x8000, word)
				enterMode(e, mode)
				regs.Write(0, 0x9000)

				result := e.Step()

				Expect(result.Unpredictable).To(MatchError(emu.ErrUnpredictable))
				Expect(regs.PC()).To(Equal(uint32(0x8004)))
			},
			Entry("empty list", uint32(0xE8900000), emu.ModeSupervisor),
			Entry("writeback with the base in the list", uint32(0xE8B00003), emu.ModeSupervisor),
			Entry("exception return in User mode", uint32(0xE8D08002), emu.ModeUser),
		)

		It("should store the User bank", func() {
			loadWords(e, 0x8000, 0xE8C06000) // stmia r0, {r13, r14}^
			regs.WriteMode(emu.ModeUser, 13, 0x1313)
			regs.WriteMode(emu.ModeUser, 14, 0x1414)
			regs.Write(13, 0xAAAA)
			regs.Write(0, 0x9100)

			e.Step()

			Expect(mem.Read32(0x9100)).To(Equal(uint32(0x1313)))
			Expect(mem.Read32(0x9104)).To(Equal(uint32(0x1414)))
		})

		It("should return from an exception with LDM", func() {
			loadWords(e, 0x8000, 0xE8D08001) // ldmia r0, {r0, pc}^
			mem.Write32(0x9100, 0x42)
			mem.Write32(0x9104, 0xB000)
			regs.Write(0, 0x9100)
			regs.SetSPSR(emu.PSR{Z: true, Mode: emu.ModeUser})

			e.Step()

			Expect(regs.CPSR.Mode).To(Equal(emu.ModeUser))
			Expect(regs.CPSR.Z).To(BeTrue())
			Expect(regs.Read(0)).To(Equal(uint32(0x42)))
			Expect(regs.PC()).To(Equal(uint32(0xB000)))
		})
	})
})
