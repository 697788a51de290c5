package insts

import (
	"fmt"

	"github.com/go-logr/logr"
)

// Decoder turns instruction words into Instructions by walking the decode
// tree of a Table.
type Decoder struct {
	table  *Table
	endian Endianness
	cache  *DecodeCache
	log    logr.Logger
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithEndianness sets the word order used for field extraction.
func WithEndianness(e Endianness) DecoderOption {
	return func(d *Decoder) {
		d.endian = e
	}
}

// WithDecodeCache puts a decode cache in front of the tree walk.
func WithDecodeCache(c *DecodeCache) DecoderOption {
	return func(d *Decoder) {
		d.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) DecoderOption {
	return func(d *Decoder) {
		d.log = log
	}
}

// NewDecoder creates a decoder over table.
func NewDecoder(table *Table, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		table:  table,
		endian: LittleEndian,
		log:    logr.Discard(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Table returns the table the decoder walks.
func (d *Decoder) Table() *Table {
	return d.table
}

// Cache returns the decode cache, or nil.
func (d *Decoder) Cache() *DecodeCache {
	return d.cache
}

// Decode decodes the instruction at addr. With a decode cache attached, a
// cached result is returned only if the words at addr are unchanged.
//
// The returned Instruction may be shared with later calls and must not be
// modified.
func (d *Decoder) Decode(addr uint32, fetch FetchFunc) (*Instruction, error) {
	if d.cache != nil {
		if inst, ok := d.cache.Lookup(addr, fetch); ok {
			return inst, nil
		}
	}

	inst, err := d.DecodeWindow(NewFetchWindow(addr, d.endian, fetch))
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		d.cache.Insert(inst)
	}

	return inst, nil
}

// DecodeWord decodes a single 32-bit instruction word found at addr.
func (d *Decoder) DecodeWord(addr, word uint32) (*Instruction, error) {
	w := NewStaticWindow(d.endian, word)
	w.addr = addr
	return d.DecodeWindow(w)
}

// DecodeWindow decodes the instruction at the start of w.
func (d *Decoder) DecodeWindow(w *FetchWindow) (*Instruction, error) {
	desc, err := d.table.Match(w)
	if err != nil {
		d.log.V(1).Info("decode failed", "addr", fmt.Sprintf("0x%08X", w.Addr()), "err", err.Error())
		return nil, err
	}

	f := desc.Format
	if err := w.ensure(f.Words()); err != nil {
		return nil, err
	}

	inst := &Instruction{
		Desc:   desc,
		Addr:   w.Addr(),
		Words:  append([]uint32(nil), w.Words()[:f.Words()]...),
		Values: make([]uint64, len(f.Fields)),
		Cond:   CondAL,
	}

	for i, field := range f.Fields {
		v, err := Extract(w, field.LastBit(w.endian, f.Size), field.Width, field.Signed)
		if err != nil {
			return nil, err
		}
		inst.Values[i] = v
	}

	if cf := f.Field("cond"); cf != nil {
		inst.Cond = Cond(inst.Values[cf.Index])
	}

	if f.bind != nil {
		inst.Operands = f.bind(inst)
	}

	return inst, nil
}
