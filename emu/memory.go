package emu

import (
	"fmt"

	"github.com/go-logr/logr"
)

// Bus is the physical memory seen by the core. Accesses always succeed;
// faults are raised by translation, never by the bus.
type Bus interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write8(addr uint32, value uint8)
	Write16(addr uint32, value uint16)
	Write32(addr uint32, value uint32)
}

const (
	pageBits = 12
	pageSize = 1 << pageBits
)

// Memory is a sparse physical memory allocated in 4KB pages on first
// write.
type Memory struct {
	pages     map[uint32]*[pageSize]byte
	size      uint64
	bigEndian bool
	log       logr.Logger
}

// MemoryOption configures a Memory.
type MemoryOption func(*Memory)

// WithMemorySize limits the memory to size bytes. Accesses beyond it are
// reported and read as zero.
func WithMemorySize(size uint64) MemoryOption {
	return func(m *Memory) {
		m.size = size
	}
}

// WithBigEndian makes multi-byte accesses big-endian.
func WithBigEndian(big bool) MemoryOption {
	return func(m *Memory) {
		m.bigEndian = big
	}
}

// WithMemoryLogger sets the logger for out-of-range accesses.
func WithMemoryLogger(log logr.Logger) MemoryOption {
	return func(m *Memory) {
		m.log = log
	}
}

// NewMemory creates an empty memory covering the 32-bit address space.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		pages: make(map[uint32]*[pageSize]byte),
		log:   logr.Discard(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Memory) inRange(addr uint32, write bool) bool {
	if m.size == 0 || uint64(addr) < m.size {
		return true
	}

	m.log.Info("physical access outside memory",
		"addr", fmt.Sprintf("0x%08X", addr), "write", write)
	return false
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint32) uint8 {
	if !m.inRange(addr, false) {
		return 0
	}

	page, ok := m.pages[addr>>pageBits]
	if !ok {
		return 0
	}
	return page[addr&(pageSize-1)]
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint32, value uint8) {
	if !m.inRange(addr, true) {
		return
	}

	page, ok := m.pages[addr>>pageBits]
	if !ok {
		page = new([pageSize]byte)
		m.pages[addr>>pageBits] = page
	}
	page[addr&(pageSize-1)] = value
}

func (m *Memory) read(addr uint32, n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		b := uint32(m.Read8(addr + uint32(i)))
		if m.bigEndian {
			v = v<<8 | b
		} else {
			v |= b << (8 * i)
		}
	}
	return v
}

func (m *Memory) write(addr uint32, n int, v uint32) {
	for i := 0; i < n; i++ {
		shift := 8 * i
		if m.bigEndian {
			shift = 8 * (n - 1 - i)
		}
		m.Write8(addr+uint32(i), uint8(v>>shift))
	}
}

// Read16 reads a halfword.
func (m *Memory) Read16(addr uint32) uint16 {
	return uint16(m.read(addr, 2))
}

// Read32 reads a word.
func (m *Memory) Read32(addr uint32) uint32 {
	return m.read(addr, 4)
}

// Write16 writes a halfword.
func (m *Memory) Write16(addr uint32, value uint16) {
	m.write(addr, 2, uint32(value))
}

// Write32 writes a word.
func (m *Memory) Write32(addr uint32, value uint32) {
	m.write(addr, 4, value)
}

// LoadProgram copies data into memory starting at addr.
func (m *Memory) LoadProgram(addr uint32, data []byte) {
	for i, b := range data {
		m.Write8(addr+uint32(i), b)
	}
}

// ReadBytes copies n bytes starting at addr.
func (m *Memory) ReadBytes(addr uint32, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = m.Read8(addr + uint32(i))
	}
	return buf
}

// Pages returns the number of allocated pages.
func (m *Memory) Pages() int {
	return len(m.pages)
}
