package insts_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a32sim/insts"
)

var _ = Describe("Extract", func() {
	Context("little endian", func() {
		It("should read a field inside one word", func() {
			w := insts.NewStaticWindow(insts.LittleEndian, 0xE3A00005)

			v, err := insts.Extract(w, 31, 4, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xE)))

			v, err = insts.Extract(w, 7, 8, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(5)))
		})

		It("should sign-extend signed fields", func() {
			w := insts.NewStaticWindow(insts.LittleEndian, 0xEAFFFFFE)

			v, err := insts.Extract(w, 23, 24, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(int64(v)).To(Equal(int64(-2)))

			v, err = insts.Extract(w, 23, 24, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xFFFFFE)))
		})

		It("should join a field spanning two words", func() {
			w := insts.NewStaticWindow(insts.LittleEndian, 0xA0000000, 0x0000000B)

			v, err := insts.Extract(w, 35, 8, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xBA)))
		})

		It("should read a 64-bit field spanning three words", func() {
			w := insts.NewStaticWindow(insts.LittleEndian, 0x89ABCDEF, 0x01234567, 0xFFFFFFFF)

			v, err := insts.Extract(w, 71, 64, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xFF01234567_89ABCD)))
		})
	})

	Context("big endian", func() {
		It("should number bits from the most significant end", func() {
			w := insts.NewStaticWindow(insts.BigEndian, 0xE3A00005)

			// Bits 0-3 are the top nibble, lastBit names the low end.
			v, err := insts.Extract(w, 3, 4, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xE)))

			v, err = insts.Extract(w, 31, 8, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(5)))
		})

		It("should join a field spanning two words", func() {
			w := insts.NewStaticWindow(insts.BigEndian, 0x000000AB, 0xCD000000)

			v, err := insts.Extract(w, 39, 16, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xABCD)))
		})
	})

	Context("fetch window", func() {
		It("should fetch words only when a field needs them", func() {
			fetched := []uint32{}
			mem := map[uint32]uint32{0x100: 0x11111111, 0x104: 0x22222222}
			w := insts.NewFetchWindow(0x100, insts.LittleEndian, func(addr uint32) (uint32, error) {
				fetched = append(fetched, addr)
				return mem[addr], nil
			})

			_, err := insts.Extract(w, 31, 32, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched).To(Equal([]uint32{0x100}))

			v, err := insts.Extract(w, 63, 32, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0x22222222)))
			Expect(fetched).To(Equal([]uint32{0x100, 0x104}))
			Expect(w.Count()).To(Equal(2))
		})

		It("should report an exhausted static window", func() {
			w := insts.NewStaticWindow(insts.LittleEndian, 0)

			_, err := insts.Extract(w, 40, 4, false)
			Expect(errors.Is(err, insts.ErrWindowExhausted)).To(BeTrue())
		})

		It("should pass fetch errors through", func() {
			boom := errors.New("boom")
			w := insts.NewFetchWindow(0, insts.LittleEndian, func(uint32) (uint32, error) {
				return 0, boom
			})

			_, err := insts.Extract(w, 3, 4, false)
			Expect(err).To(MatchError(boom))
		})
	})

	Describe("Deposit", func() {
		It("should be undone by Extract", func() {
			for _, endian := range []insts.Endianness{insts.LittleEndian, insts.BigEndian} {
				for _, c := range []struct{ last, width int }{
					{3, 4}, {31, 32}, {35, 8}, {47, 40}, {70, 64},
				} {
					value := uint64(0xDEADBEEFCAFEF00D)
					if c.width < 64 {
						value &= (uint64(1) << c.width) - 1
					}

					words := insts.Deposit(nil, endian, c.last, c.width, value)
					got, err := insts.Extract(insts.NewStaticWindow(endian, words...), c.last, c.width, false)

					Expect(err).NotTo(HaveOccurred())
					Expect(got).To(Equal(value), "endian %s last %d width %d", endian, c.last, c.width)
				}
			}
		})

		It("should leave bits outside the field alone", func() {
			words := insts.Deposit([]uint32{0xFFFFFFFF}, insts.LittleEndian, 7, 4, 0)
			Expect(words).To(Equal([]uint32{0xFFFFFF0F}))
		})
	})
})
