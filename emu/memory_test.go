package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a32sim/emu"
)

var _ = Describe("Memory", func() {
	var mem *emu.Memory

	BeforeEach(func() {
		mem = emu.NewMemory()
	})

	It("should read unwritten memory as zero without allocating", func() {
		Expect(mem.Read32(0x12345678)).To(BeZero())
		Expect(mem.Pages()).To(BeZero())
	})

	It("should allocate pages on write", func() {
		mem.Write8(0x1000, 1)
		mem.Write8(0x1FFF, 2)
		mem.Write8(0xFFFFF000, 3)

		Expect(mem.Pages()).To(Equal(2))
		Expect(mem.Read8(0xFFFFF000)).To(Equal(uint8(3)))
	})

	It("should store little-endian by default", func() {
		mem.Write32(0x100, 0x11223344)

		Expect(mem.ReadBytes(0x100, 4)).To(Equal([]byte{0x44, 0x33, 0x22, 0x11}))
		Expect(mem.Read16(0x102)).To(Equal(uint16(0x1122)))
	})

	It("should store big-endian when asked", func() {
		mem = emu.NewMemory(emu.WithBigEndian(true))
		mem.Write32(0x100, 0x11223344)

		Expect(mem.ReadBytes(0x100, 4)).To(Equal([]byte{0x11, 0x22, 0x33, 0x44}))
		Expect(mem.Read16(0x100)).To(Equal(uint16(0x1122)))
	})

	It("should span page boundaries", func() {
		mem.Write32(0x1FFE, 0xAABBCCDD)

		Expect(mem.Read32(0x1FFE)).To(Equal(uint32(0xAABBCCDD)))
		Expect(mem.Pages()).To(Equal(2))
	})

	It("should ignore accesses beyond its size", func() {
		mem = emu.NewMemory(emu.WithMemorySize(0x10000))
		mem.Write32(0x10000, 0xFFFFFFFF)

		Expect(mem.Read32(0x10000)).To(BeZero())
		Expect(mem.Pages()).To(BeZero())
	})

	It("should load a program image", func() {
		mem.LoadProgram(0x8000, []byte{1, 2, 3})

		Expect(mem.ReadBytes(0x8000, 4)).To(Equal([]byte{1, 2, 3, 0}))
	})
})
