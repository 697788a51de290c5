package insts

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// DecodeCacheStats holds decode cache statistics.
type DecodeCacheStats struct {
	Hits    uint64
	Misses  uint64
	Stale   uint64 // lookups that found an entry whose words had changed
	Inserts uint64
}

// DecodeCache is a direct-mapped cache of decoded instructions indexed by
// fetch address. Every hit re-reads the instruction words and compares them
// with the words the entry was decoded from, so code that rewrites itself
// never executes a stale decode.
type DecodeCache struct {
	entries   int
	directory *akitacache.DirectoryImpl
	store     []*Instruction
	stats     DecodeCacheStats
}

const decodeBlockSize = 4

// NewDecodeCache creates a decode cache with the given number of entries.
func NewDecodeCache(entries int) *DecodeCache {
	if entries <= 0 {
		entries = 1
	}

	return &DecodeCache{
		entries: entries,
		directory: akitacache.NewDirectory(
			entries,
			1,
			decodeBlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		store: make([]*Instruction, entries),
	}
}

// Entries returns the capacity of the cache.
func (c *DecodeCache) Entries() int {
	return c.entries
}

// Stats returns the cache statistics.
func (c *DecodeCache) Stats() DecodeCacheStats {
	return c.stats
}

// ResetStats clears the cache statistics.
func (c *DecodeCache) ResetStats() {
	c.stats = DecodeCacheStats{}
}

func (c *DecodeCache) blockIndex(block *akitacache.Block) int {
	return block.SetID + block.WayID
}

func blockAddr(addr uint32) uint64 {
	return uint64(addr &^ (decodeBlockSize - 1))
}

// Lookup returns the cached instruction at addr if its words still match
// memory. A stale entry is dropped and reported as a miss.
func (c *DecodeCache) Lookup(addr uint32, fetch FetchFunc) (*Instruction, bool) {
	block := c.directory.Lookup(0, blockAddr(addr))
	if block == nil || !block.IsValid {
		c.stats.Misses++
		return nil, false
	}

	inst := c.store[c.blockIndex(block)]
	if inst == nil || inst.Addr != addr || !c.current(inst, fetch) {
		c.stats.Stale++
		c.stats.Misses++
		block.IsValid = false
		c.store[c.blockIndex(block)] = nil
		return nil, false
	}

	c.stats.Hits++
	c.directory.Visit(block)
	return inst, true
}

// current reports whether memory still holds the words inst was decoded
// from. A failing fetch counts as a change.
func (c *DecodeCache) current(inst *Instruction, fetch FetchFunc) bool {
	for i, want := range inst.Words {
		got, err := fetch(inst.Addr + uint32(i)*4)
		if err != nil || got != want {
			return false
		}
	}
	return true
}

// Insert stores inst, evicting whatever occupied its slot.
func (c *DecodeCache) Insert(inst *Instruction) {
	addr := blockAddr(inst.Addr)

	block := c.directory.Lookup(0, addr)
	if block == nil {
		block = c.directory.FindVictim(addr)
		if block == nil {
			return
		}
	}

	block.Tag = addr
	block.IsValid = true
	block.IsDirty = false
	c.store[c.blockIndex(block)] = inst
	c.directory.Visit(block)
	c.stats.Inserts++
}

// Invalidate drops the entry for addr, if any.
func (c *DecodeCache) Invalidate(addr uint32) {
	block := c.directory.Lookup(0, blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		c.store[c.blockIndex(block)] = nil
	}
}

// Flush drops every entry.
func (c *DecodeCache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			block.IsValid = false
			block.IsDirty = false
		}
	}
	clear(c.store)
}
