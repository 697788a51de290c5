// Package loader reads ARM (A32) program images: ELF32 executables and raw
// binaries.
package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

var (
	// ErrNotELF32 is returned for ELF files that are not 32-bit.
	ErrNotELF32 = errors.New("not a 32-bit ELF file")

	// ErrNotARM is returned for ELF files built for another machine.
	ErrNotARM = errors.New("not an ARM ELF file")
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment of a program image.
type Segment struct {
	// Addr is the address where this segment should be loaded.
	Addr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded image ready for execution.
type Program struct {
	// Entry is the address where execution should begin.
	Entry uint32
	// BigEndian is set for big-endian ELF files.
	BigEndian bool
	// Segments contains all loadable segments.
	Segments []Segment
}

// Writer is the memory a program is installed into.
type Writer interface {
	Write8(addr uint32, value uint8)
}

// Size returns the number of bytes the program occupies in memory.
func (p *Program) Size() uint64 {
	var n uint64
	for _, seg := range p.Segments {
		n += uint64(seg.MemSize)
	}
	return n
}

// Install copies every segment into mem and zero-fills the part of each
// segment not backed by file data.
func (p *Program) Install(mem Writer) {
	for _, seg := range p.Segments {
		for i, b := range seg.Data {
			mem.Write8(seg.Addr+uint32(i), b)
		}
		for i := uint32(len(seg.Data)); i < seg.MemSize; i++ {
			mem.Write8(seg.Addr+i, 0)
		}
	}
}

// Load parses an ARM ELF32 executable.
func Load(fs afero.Fs, path string) (*Program, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parseELF(f)
}

// LoadBinary reads a raw image that is loaded at addr and entered at its
// first byte.
func LoadBinary(fs afero.Fs, path string, addr uint32) (*Program, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}

	if uint64(addr)+uint64(len(data)) > 1<<32 {
		return nil, fmt.Errorf("binary of %d bytes does not fit at 0x%08X", len(data), addr)
	}

	return &Program{
		Entry: addr,
		Segments: []Segment{{
			Addr:    addr,
			Data:    data,
			MemSize: uint32(len(data)),
			Flags:   SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}, nil
}

// LoadFile loads path as an ELF file when it starts with the ELF magic and
// as a raw binary at addr otherwise.
func LoadFile(fs afero.Fs, path string, addr uint32) (*Program, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	magic := make([]byte, len(elfMagic))
	n, err := io.ReadFull(f, magic)
	_ = f.Close()
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if n == len(elfMagic) && bytes.Equal(magic, elfMagic) {
		return Load(fs, path)
	}

	return LoadBinary(fs, path, addr)
}

func parseELF(r io.ReaderAt) (*Program, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}

	if f.Class != elf.ELFCLASS32 {
		return nil, ErrNotELF32
	}

	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("%w (machine type: %v)", ErrNotARM, f.Machine)
	}

	prog := &Program{
		Entry:     uint32(f.Entry),
		BigEndian: f.Data == elf.ELFDATA2MSB,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		if phdr.Filesz > phdr.Memsz {
			return nil, fmt.Errorf("segment at 0x%x: file size %d exceeds memory size %d",
				phdr.Vaddr, phdr.Filesz, phdr.Memsz)
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			Addr:    uint32(phdr.Vaddr),
			Data:    data,
			MemSize: uint32(phdr.Memsz),
			Flags:   flags,
		})
	}

	return prog, nil
}
