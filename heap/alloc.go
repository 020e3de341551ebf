package heap

import (
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
	"golang.org/x/exp/slog"
)

// splitThreshold is the largest remainder that is left inside an allocated block rather than being
// split off into a free block of its own
const splitThreshold = int(memutils.WordSize)

// Alloc carves size bytes, rounded up to a multiple of 8, from the largest free block and returns a
// pointer to them. When the remainder of the block is large enough it is split off as a new free
// block; otherwise the whole block is handed out.
func (h *Heap) Alloc(size int) (Pointer, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if size <= 0 {
		return NullPointer, h.fail("Alloc", ErrorBadArguments, nil, "requested allocation size %d is not a positive integer", size)
	}
	if !h.initialized() {
		return NullPointer, h.fail("Alloc", ErrorBadArguments, nil, "heap has not been initialized")
	}
	if size > h.arena.Len() {
		return NullPointer, h.fail("Alloc", ErrorOutOfMemory, nil, "requested %d bytes from a region of %d bytes", size, h.arena.Len())
	}

	requiredSize := memutils.AlignUp(size, memutils.WordSize)

	candidate := h.worstFit.primary
	if candidate == metadata.NoBlock {
		return NullPointer, h.fail("Alloc", ErrorOutOfMemory, nil, "no free blocks remain for a request of %d bytes", requiredSize)
	}

	hdr, err := h.arena.Header(candidate)
	if err != nil {
		return NullPointer, h.fail("Alloc", ErrorOutOfMemory, err, "worst-fit candidate at offset %d failed validation", candidate)
	}
	if hdr.ChunkSize < requiredSize+metadata.HeaderSize {
		return NullPointer, h.fail("Alloc", ErrorOutOfMemory, nil, "largest free block holds %d bytes, a request of %d bytes needs %d", hdr.ChunkSize, requiredSize, requiredSize+metadata.HeaderSize)
	}

	next, _, err := h.arena.Successor(candidate, hdr)
	if err != nil {
		return NullPointer, h.fail("Alloc", ErrorOutOfMemory, err, "worst-fit candidate at offset %d has an invalid successor", candidate)
	}

	remainderSize := hdr.ChunkSize - requiredSize - metadata.HeaderSize
	split := remainderSize > splitThreshold
	remainder := metadata.NoBlock

	if split {
		remainder = candidate + metadata.Offset(metadata.HeaderSize+requiredSize)

		remainderHeader := metadata.NewFreeHeader(requiredSize, remainderSize)
		remainderHeader.FreePrev = hdr.FreePrev
		remainderHeader.FreeNext = hdr.FreeNext
		h.arena.Store(remainder, remainderHeader)
		h.replaceFree(candidate, hdr, remainder)

		hdr.ChunkSize = requiredSize
	} else {
		h.unlinkFree(candidate, hdr)
	}

	hdr.Free = false
	hdr.FreePrev = metadata.NoBlock
	hdr.FreeNext = metadata.NoBlock
	h.arena.Store(candidate, hdr)

	if next != metadata.NoBlock {
		// Splicing may have rewritten next's free-list links, so it is reloaded here. The block now in
		// front of it is either the free remainder or the allocated candidate.
		nextHeader := h.arena.MustHeader(next)
		nextHeader.Merge = split
		if split {
			nextHeader.Footer = remainderSize
		}
		h.arena.Store(next, nextHeader)
	}

	if split {
		h.worstFitAfterSplit(remainder)
	} else {
		h.worstFitAfterConsume()
	}

	p := pointerOf(candidate)
	h.allocCount++
	if h.registry != nil {
		h.registry.Put(p, hdr.ChunkSize)
	}

	h.logger.Debug("Heap::Alloc",
		slog.Int("Requested", size),
		slog.Int("Offset", int(p)),
		slog.Int("Size", hdr.ChunkSize),
		slog.Bool("Split", split),
	)

	memutils.DebugValidate(heapValidator{h})
	return p, nil
}
