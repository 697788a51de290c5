package mmu

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// PageSize is the granularity of translation cache entries.
const PageSize = 4096

const pageMask = PageSize - 1

// TLBStats holds translation cache statistics.
type TLBStats struct {
	Hits          uint64
	Misses        uint64
	Inserts       uint64
	Invalidations uint64
}

// TLB is a direct-mapped translation cache from 4KB virtual pages to
// physical pages. Larger mappings are cached one 4KB page at a time.
type TLB struct {
	entries   int
	directory *akitacache.DirectoryImpl
	phys      []uint32
	stats     TLBStats
}

// NewTLB creates a translation cache with the given number of entries.
func NewTLB(entries int) *TLB {
	if entries <= 0 {
		entries = 1
	}

	return &TLB{
		entries: entries,
		directory: akitacache.NewDirectory(
			entries,
			1,
			PageSize,
			akitacache.NewLRUVictimFinder(),
		),
		phys: make([]uint32, entries),
	}
}

// Entries returns the capacity of the cache.
func (t *TLB) Entries() int {
	return t.entries
}

// Stats returns the cache statistics.
func (t *TLB) Stats() TLBStats {
	return t.stats
}

func (t *TLB) blockIndex(block *akitacache.Block) int {
	return block.SetID + block.WayID
}

// Lookup returns the physical address for va on a hit.
func (t *TLB) Lookup(va uint32) (uint32, bool) {
	block := t.directory.Lookup(0, uint64(va&^pageMask))
	if block == nil || !block.IsValid {
		t.stats.Misses++
		return 0, false
	}

	t.stats.Hits++
	t.directory.Visit(block)
	return t.phys[t.blockIndex(block)] | va&pageMask, true
}

// Insert records that the page of va maps to the page of pa.
func (t *TLB) Insert(va, pa uint32) {
	tag := uint64(va &^ pageMask)

	block := t.directory.Lookup(0, tag)
	if block == nil {
		block = t.directory.FindVictim(tag)
		if block == nil {
			return
		}
	}

	block.Tag = tag
	block.IsValid = true
	t.phys[t.blockIndex(block)] = pa &^ pageMask
	t.directory.Visit(block)
	t.stats.Inserts++
}

// InvalidateEntry drops the entry for the page of va.
func (t *TLB) InvalidateEntry(va uint32) {
	block := t.directory.Lookup(0, uint64(va&^pageMask))
	if block != nil && block.IsValid {
		block.IsValid = false
		t.stats.Invalidations++
	}
}

// InvalidateAll drops every entry.
func (t *TLB) InvalidateAll() {
	t.directory.Reset()
	t.stats.Invalidations++
}
