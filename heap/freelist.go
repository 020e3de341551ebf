package heap

import (
	"github.com/vkngwrapper/wfheap/memutils/metadata"
)

// The free list is kept in address order. New entries are spliced in behind their nearest free
// predecessor in the region, a split remainder takes over its parent's position, and a merged run
// is replaced by its lowest block, so no operation ever has to sort it.

func (h *Heap) setFreeNext(off, next metadata.Offset) {
	hdr := h.arena.MustHeader(off)
	hdr.FreeNext = next
	h.arena.Store(off, hdr)
}

func (h *Heap) setFreePrev(off, prev metadata.Offset) {
	hdr := h.arena.MustHeader(off)
	hdr.FreePrev = prev
	h.arena.Store(off, hdr)
}

// findFreePredecessor walks the footer chain back from the block at off and returns the nearest block
// that is free, or NoBlock if the start of the region is reached first. Each step is validated, so a
// corrupted footer produces an error before anything has been modified.
func (h *Heap) findFreePredecessor(off metadata.Offset, hdr metadata.Header) (metadata.Offset, error) {
	current, currentHeader := off, hdr
	for {
		prev, prevHeader, err := h.arena.Predecessor(current, currentHeader)
		if err != nil {
			return metadata.NoBlock, err
		}
		if prev == metadata.NoBlock || prevHeader.Free {
			return prev, nil
		}
		current, currentHeader = prev, prevHeader
	}
}

// insertFree links the block at off into the free list immediately after freePredecessor, or at the
// head when freePredecessor is NoBlock. hdr is the block's header and is stored with its new links.
func (h *Heap) insertFree(off metadata.Offset, hdr metadata.Header, freePredecessor metadata.Offset) {
	var next metadata.Offset
	if freePredecessor == metadata.NoBlock {
		next = h.freeHead
		h.freeHead = off
	} else {
		next = h.arena.MustHeader(freePredecessor).FreeNext
		h.setFreeNext(freePredecessor, off)
	}

	if next != metadata.NoBlock {
		h.setFreePrev(next, off)
	}

	hdr.FreePrev = freePredecessor
	hdr.FreeNext = next
	h.arena.Store(off, hdr)
}

// replaceFree points the neighbors of the free-list entry described by oldHeader at replacement. The
// replacement header must already carry oldHeader's links.
func (h *Heap) replaceFree(old metadata.Offset, oldHeader metadata.Header, replacement metadata.Offset) {
	if oldHeader.FreePrev != metadata.NoBlock {
		h.setFreeNext(oldHeader.FreePrev, replacement)
	} else if h.freeHead == old {
		h.freeHead = replacement
	} else {
		panic("free block has no previous entry but is not the head of the free list")
	}

	if oldHeader.FreeNext != metadata.NoBlock {
		h.setFreePrev(oldHeader.FreeNext, replacement)
	}
}

// unlinkFree removes the block at off from the free list in constant time
func (h *Heap) unlinkFree(off metadata.Offset, hdr metadata.Header) {
	if hdr.FreePrev != metadata.NoBlock {
		h.setFreeNext(hdr.FreePrev, hdr.FreeNext)
	} else if h.freeHead == off {
		h.freeHead = hdr.FreeNext
	} else {
		panic("free block has no previous entry but is not the head of the free list")
	}

	if hdr.FreeNext != metadata.NoBlock {
		h.setFreePrev(hdr.FreeNext, hdr.FreePrev)
	}
}
