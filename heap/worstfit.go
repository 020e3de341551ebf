package heap

import (
	"github.com/vkngwrapper/wfheap/memutils/metadata"
)

// worstFitCache tracks the largest free block. When enabled, it also tracks the second largest so
// that the common allocation paths can pick the next candidate without scanning. Whenever the cache
// cannot be updated exactly it falls back to a scan, so primary is always a largest free block.
type worstFitCache struct {
	enabled  bool
	primary  metadata.Offset
	runnerUp metadata.Offset
}

func (c *worstFitCache) reset() {
	c.primary = metadata.NoBlock
	c.runnerUp = metadata.NoBlock
}

// scanWorstFit walks the free list and returns the first block of maximum size, skipping exclude
func (h *Heap) scanWorstFit(exclude metadata.Offset) metadata.Offset {
	target := metadata.NoBlock
	maxSize := -1

	for off := h.freeHead; off != metadata.NoBlock; {
		hdr := h.arena.MustHeader(off)
		if !hdr.Free {
			panic("block in the free list is not marked free")
		}
		if off != exclude && hdr.ChunkSize > maxSize {
			maxSize = hdr.ChunkSize
			target = off
		}
		off = hdr.FreeNext
	}

	return target
}

func (h *Heap) sizeOf(off metadata.Offset) int {
	return h.arena.MustHeader(off).ChunkSize
}

// refreshWorstFit recomputes the cache from scratch
func (h *Heap) refreshWorstFit() {
	h.worstFit.primary = h.scanWorstFit(metadata.NoBlock)
	h.worstFit.runnerUp = metadata.NoBlock
	if h.worstFit.enabled && h.worstFit.primary != metadata.NoBlock {
		h.worstFit.runnerUp = h.scanWorstFit(h.worstFit.primary)
	}
}

// worstFitAfterSplit updates the cache after the primary candidate was split and remainder took its
// place in the free list
func (h *Heap) worstFitAfterSplit(remainder metadata.Offset) {
	c := &h.worstFit
	if !c.enabled {
		h.refreshWorstFit()
		return
	}

	if c.runnerUp == metadata.NoBlock || h.sizeOf(remainder) >= h.sizeOf(c.runnerUp) {
		c.primary = remainder
		return
	}

	c.primary = c.runnerUp
	c.runnerUp = h.scanWorstFit(c.primary)
}

// worstFitAfterConsume updates the cache after the primary candidate was allocated whole
func (h *Heap) worstFitAfterConsume() {
	c := &h.worstFit
	if !c.enabled {
		h.refreshWorstFit()
		return
	}

	c.primary = c.runnerUp
	if c.primary == metadata.NoBlock {
		c.primary = h.scanWorstFit(metadata.NoBlock)
	}
	c.runnerUp = metadata.NoBlock
	if c.primary != metadata.NoBlock {
		c.runnerUp = h.scanWorstFit(c.primary)
	}
}

// worstFitOffer updates the cache after the block at off became free without merging
func (h *Heap) worstFitOffer(off metadata.Offset) {
	c := &h.worstFit
	if !c.enabled {
		h.refreshWorstFit()
		return
	}

	size := h.sizeOf(off)
	if c.primary == metadata.NoBlock || size > h.sizeOf(c.primary) {
		c.runnerUp = c.primary
		c.primary = off
	} else if c.runnerUp == metadata.NoBlock || size > h.sizeOf(c.runnerUp) {
		c.runnerUp = off
	}
}
