package insts

import (
	"errors"
	"fmt"
)

// ErrWindowExhausted is returned when a static fetch window is asked for a
// word it does not hold.
var ErrWindowExhausted = errors.New("fetch window exhausted")

// FetchFunc reads one 32-bit instruction word at the given address.
type FetchFunc func(addr uint32) (uint32, error)

// FetchWindow holds the instruction words fetched so far for one decode.
// It grows on demand so that formats wider than the initial fetch can be
// decoded without knowing their width in advance.
type FetchWindow struct {
	addr   uint32
	endian Endianness
	words  []uint32
	fetch  FetchFunc
}

// NewFetchWindow creates an empty window starting at addr.
func NewFetchWindow(addr uint32, endian Endianness, fetch FetchFunc) *FetchWindow {
	return &FetchWindow{
		addr:   addr,
		endian: endian,
		words:  make([]uint32, 0, 2),
		fetch:  fetch,
	}
}

// NewStaticWindow creates a window over a fixed set of words. Reading past
// the last word fails with ErrWindowExhausted.
func NewStaticWindow(endian Endianness, words ...uint32) *FetchWindow {
	w := &FetchWindow{endian: endian}
	w.words = append(w.words, words...)
	return w
}

// Addr returns the address of the first word of the window.
func (w *FetchWindow) Addr() uint32 {
	return w.addr
}

// Endian returns the word order of the window.
func (w *FetchWindow) Endian() Endianness {
	return w.endian
}

// Count returns the number of words fetched so far.
func (w *FetchWindow) Count() int {
	return len(w.words)
}

// Words returns the words fetched so far.
func (w *FetchWindow) Words() []uint32 {
	return w.words
}

// ensure grows the window until it holds at least n words.
func (w *FetchWindow) ensure(n int) error {
	for len(w.words) < n {
		if w.fetch == nil {
			return fmt.Errorf("%w: need word %d, have %d", ErrWindowExhausted, n-1, len(w.words))
		}

		word, err := w.fetch(w.addr + uint32(len(w.words))*4)
		if err != nil {
			return err
		}
		w.words = append(w.words, word)
	}
	return nil
}

// Extract returns the value of the bit range ending at lastBit and width bits
// wide. Words are fetched into the window as needed.
//
// With LittleEndian, bit 0 is the least significant bit of word 0 and lastBit
// is the most significant bit of the field. With BigEndian, bit 0 is the most
// significant bit of word 0 and lastBit is the least significant bit of the
// field.
func Extract(w *FetchWindow, lastBit, width int, signed bool) (uint64, error) {
	first := lastBit - width + 1
	firstWord := first / 32
	lastWord := lastBit / 32

	if err := w.ensure(lastWord + 1); err != nil {
		return 0, err
	}

	// 128-bit accumulator, enough for a 64-bit field spanning three words.
	var hi, lo uint64
	push := func(word uint32) {
		hi = hi<<32 | lo>>32
		lo = lo<<32 | uint64(word)
	}

	var shift int
	if w.endian == BigEndian {
		for i := firstWord; i <= lastWord; i++ {
			push(w.words[i])
		}
		shift = 31 - lastBit%32
	} else {
		for i := lastWord; i >= firstWord; i-- {
			push(w.words[i])
		}
		shift = first % 32
	}

	value := lo >> shift
	if shift > 0 {
		value |= hi << (64 - shift)
	}

	if width < 64 {
		mask := (uint64(1) << width) - 1
		value &= mask
		if signed && value>>(width-1)&1 == 1 {
			value |= ^mask
		}
	}

	return value, nil
}

// Deposit writes the low width bits of value into the bit range ending at
// lastBit, growing words as needed. It is the inverse of Extract.
func Deposit(words []uint32, endian Endianness, lastBit, width int, value uint64) []uint32 {
	for k := 0; k < width; k++ {
		var word, bit int
		if endian == BigEndian {
			pos := lastBit - k
			word = pos / 32
			bit = 31 - pos%32
		} else {
			pos := lastBit - width + 1 + k
			word = pos / 32
			bit = pos % 32
		}

		for len(words) <= word {
			words = append(words, 0)
		}

		if value>>k&1 == 1 {
			words[word] |= 1 << bit
		} else {
			words[word] &^= 1 << bit
		}
	}
	return words
}
