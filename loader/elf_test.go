package loader_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/sarchlab/a32sim/loader"
)

const (
	machineARM = 40
	machineX86 = 3

	pfX = 0x1
	pfW = 0x2
	pfR = 0x4
)

type segmentDef struct {
	addr    uint32
	data    []byte
	memSize uint32
	flags   uint32
}

// buildELF32 assembles an executable with one program header per segment
// and no sections.
func buildELF32(order binary.ByteOrder, machine uint16, entry uint32, segs ...segmentDef) []byte {
	const (
		ehsize    = 52
		phentsize = 32
	)

	header := make([]byte, ehsize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 1 // ELFCLASS32
	header[5] = 1 // ELFDATA2LSB
	if order == binary.BigEndian {
		header[5] = 2
	}
	header[6] = 1
	order.PutUint16(header[16:18], 2) // ET_EXEC
	order.PutUint16(header[18:20], machine)
	order.PutUint32(header[20:24], 1)
	order.PutUint32(header[24:28], entry)
	order.PutUint32(header[28:32], ehsize)
	order.PutUint16(header[40:42], ehsize)
	order.PutUint16(header[42:44], phentsize)
	order.PutUint16(header[44:46], uint16(len(segs)))
	order.PutUint16(header[46:48], 40)

	offset := uint32(ehsize + phentsize*len(segs))
	phdrs := make([]byte, 0, phentsize*len(segs))
	var payload []byte

	for _, s := range segs {
		ph := make([]byte, phentsize)
		order.PutUint32(ph[0:4], 1) // PT_LOAD
		order.PutUint32(ph[4:8], offset)
		order.PutUint32(ph[8:12], s.addr)
		order.PutUint32(ph[12:16], s.addr)
		order.PutUint32(ph[16:20], uint32(len(s.data)))
		order.PutUint32(ph[20:24], s.memSize)
		order.PutUint32(ph[24:28], s.flags)
		order.PutUint32(ph[28:32], 4)

		phdrs = append(phdrs, ph...)
		payload = append(payload, s.data...)
		offset += uint32(len(s.data))
	}

	out := append(header, phdrs...)
	return append(out, payload...)
}

func buildELF64Header() []byte {
	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2)
	binary.LittleEndian.PutUint16(header[18:20], 183)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint16(header[52:54], 64)
	binary.LittleEndian.PutUint16(header[54:56], 56)
	binary.LittleEndian.PutUint16(header[58:60], 64)
	return header
}

type byteMap map[uint32]uint8

func (m byteMap) Write8(addr uint32, value uint8) {
	m[addr] = value
}

var _ = Describe("ELF Loader", func() {
	var fs afero.Fs

	code := []byte{
		0x05, 0x00, 0xA0, 0xE3, // mov r0, #5
		0xFE, 0xFF, 0xFF, 0xEA, // b .
	}

	write := func(path string, data []byte) {
		Expect(afero.WriteFile(fs, path, data, 0o644)).To(Succeed())
	}

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
	})

	Describe("Load", func() {
		It("should read the entry point and segments", func() {
			write("/prog.elf", buildELF32(binary.LittleEndian, machineARM, 0x8004,
				segmentDef{addr: 0x8000, data: code, memSize: uint32(len(code)), flags: pfR | pfX}))

			prog, err := loader.Load(fs, "/prog.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Entry).To(Equal(uint32(0x8004)))
			Expect(prog.BigEndian).To(BeFalse())
			Expect(prog.Segments).To(HaveLen(1))
			Expect(prog.Segments[0].Addr).To(Equal(uint32(0x8000)))
			Expect(prog.Segments[0].Data).To(Equal(code))
			Expect(prog.Segments[0].Flags).To(Equal(loader.SegmentFlagRead | loader.SegmentFlagExecute))
		})

		It("should load every PT_LOAD segment", func() {
			data := []byte{1, 2, 3, 4}
			write("/multi.elf", buildELF32(binary.LittleEndian, machineARM, 0x8000,
				segmentDef{addr: 0x8000, data: code, memSize: uint32(len(code)), flags: pfR | pfX},
				segmentDef{addr: 0x10000, data: data, memSize: 16, flags: pfR | pfW},
			))

			prog, err := loader.Load(fs, "/multi.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(2))
			Expect(prog.Segments[1].Addr).To(Equal(uint32(0x10000)))
			Expect(prog.Segments[1].MemSize).To(Equal(uint32(16)))
			Expect(prog.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())
			Expect(prog.Size()).To(Equal(uint64(len(code) + 16)))
		})

		It("should mark big-endian files", func() {
			write("/be.elf", buildELF32(binary.BigEndian, machineARM, 0x8000,
				segmentDef{addr: 0x8000, data: code, memSize: uint32(len(code)), flags: pfR | pfX}))

			prog, err := loader.Load(fs, "/be.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.BigEndian).To(BeTrue())
			Expect(prog.Entry).To(Equal(uint32(0x8000)))
		})

		It("should accept segments with no file data", func() {
			write("/bss.elf", buildELF32(binary.LittleEndian, machineARM, 0x8000,
				segmentDef{addr: 0x20000, memSize: 0x100, flags: pfR | pfW}))

			prog, err := loader.Load(fs, "/bss.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments[0].Data).To(BeEmpty())
			Expect(prog.Segments[0].MemSize).To(Equal(uint32(0x100)))
		})

		It("should return no segments when nothing is loadable", func() {
			write("/empty.elf", buildELF32(binary.LittleEndian, machineARM, 0x8000))

			prog, err := loader.Load(fs, "/empty.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
		})

		It("should reject files built for another machine", func() {
			write("/x86.elf", buildELF32(binary.LittleEndian, machineX86, 0x8000))

			_, err := loader.Load(fs, "/x86.elf")

			Expect(err).To(MatchError(loader.ErrNotARM))
		})

		It("should reject 64-bit files", func() {
			write("/a64.elf", buildELF64Header())

			_, err := loader.Load(fs, "/a64.elf")

			Expect(err).To(MatchError(loader.ErrNotELF32))
		})

		It("should reject files that are not ELF", func() {
			write("/text", []byte("not an executable"))

			_, err := loader.Load(fs, "/text")

			Expect(err).To(HaveOccurred())
		})

		It("should report missing files", func() {
			_, err := loader.Load(fs, "/missing.elf")

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("LoadBinary", func() {
		It("should place the image at the load address", func() {
			write("/prog.bin", code)

			prog, err := loader.LoadBinary(fs, "/prog.bin", 0x8000)

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Entry).To(Equal(uint32(0x8000)))
			Expect(prog.Segments).To(HaveLen(1))
			Expect(prog.Segments[0].Data).To(Equal(code))
		})

		It("should reject images that wrap the address space", func() {
			write("/prog.bin", code)

			_, err := loader.LoadBinary(fs, "/prog.bin", 0xFFFFFFFC)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("LoadFile", func() {
		It("should detect ELF files", func() {
			write("/prog", buildELF32(binary.LittleEndian, machineARM, 0x8004,
				segmentDef{addr: 0x8000, data: code, memSize: uint32(len(code)), flags: pfR | pfX}))

			prog, err := loader.LoadFile(fs, "/prog", 0x0)

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Entry).To(Equal(uint32(0x8004)))
		})

		It("should fall back to raw images", func() {
			write("/tiny", []byte{0xAA, 0xBB})

			prog, err := loader.LoadFile(fs, "/tiny", 0x1000)

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Entry).To(Equal(uint32(0x1000)))
			Expect(prog.Segments[0].Data).To(Equal([]byte{0xAA, 0xBB}))
		})
	})

	Describe("Install", func() {
		It("should copy data and zero-fill the rest of each segment", func() {
			prog := &loader.Program{
				Segments: []loader.Segment{
					{Addr: 0x100, Data: []byte{1, 2}, MemSize: 4},
				},
			}
			mem := byteMap{0x102: 0xFF, 0x103: 0xFF}

			prog.Install(mem)

			Expect(mem).To(Equal(byteMap{0x100: 1, 0x101: 2, 0x102: 0, 0x103: 0}))
		})
	})
})
