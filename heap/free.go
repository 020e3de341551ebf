package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Free returns the allocation at p to the heap and then merges free blocks according to mode.
//
// p must have been returned by Alloc and not freed since. Pointers that do not address a live
// allocation, including a second Free of the same pointer, fail with memutils.ErrBadPointer and leave
// the heap unchanged. Without HeapCreateTrackAllocations this relies on the header canary, so a
// pointer that was never returned from Alloc is rejected with overwhelming, but not absolute,
// probability.
func (h *Heap) Free(p Pointer, mode CoalesceMode) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !mode.valid() {
		return h.fail("Free", ErrorBadArguments, nil, "unknown coalesce mode %d", mode)
	}
	if !h.initialized() {
		return h.fail("Free", ErrorBadArguments, nil, "heap has not been initialized")
	}

	off, hdr, err := h.liveAllocation(p)
	if err != nil {
		return h.fail("Free", ErrorBadPointer, err, "cannot free pointer %d", p)
	}

	// Everything the free will touch is validated before the region is modified
	next, _, err := h.arena.Successor(off, hdr)
	if err != nil {
		return h.fail("Free", ErrorBadPointer, err, "cannot free pointer %d", p)
	}

	freePredecessor, err := h.findFreePredecessor(off, hdr)
	if err != nil {
		return h.fail("Free", ErrorBadPointer, err, "cannot free pointer %d", p)
	}

	switch mode {
	case LocalCoalesce:
		if _, err = h.runEnd(off, hdr); err == nil {
			_, err = h.runStart(off, hdr)
		}
	case GlobalCoalesce:
		err = h.checkBlockChain(nil)
	}
	if err != nil {
		return h.fail("Free", ErrorBadPointer, err, "cannot coalesce after freeing pointer %d", p)
	}

	hdr.Free = true
	memutils.FillFreed(h.arena.Payload(off, hdr))
	h.insertFree(off, hdr, freePredecessor)

	if next != metadata.NoBlock {
		nextHeader := h.arena.MustHeader(next)
		nextHeader.Footer = hdr.ChunkSize
		nextHeader.Merge = true
		h.arena.Store(next, nextHeader)
	}

	h.allocCount--
	if h.registry != nil {
		h.registry.Delete(p)
	}

	switch mode {
	case NoCoalesce:
		h.worstFitOffer(off)
	case LocalCoalesce:
		anchor, err := h.runEnd(off, h.arena.MustHeader(off))
		if err != nil {
			panic(err)
		}
		h.localCoalesce(anchor)
		h.refreshWorstFit()
	case GlobalCoalesce:
		h.globalCoalesce()
		h.refreshWorstFit()
	}

	h.logger.Debug("Heap::Free",
		slog.Int("Offset", int(p)),
		slog.Int("Size", hdr.ChunkSize),
		slog.String("Mode", mode.String()),
	)

	memutils.DebugValidate(heapValidator{h})
	return nil
}

// liveAllocation checks that p addresses a block that is currently allocated and returns its header.
// It never modifies the region.
func (h *Heap) liveAllocation(p Pointer) (metadata.Offset, metadata.Header, error) {
	if p == NullPointer {
		return metadata.NoBlock, metadata.Header{}, errors.New("null pointer")
	}

	off := headerOf(p)
	if !memutils.IsAligned(int(p), memutils.WordSize) || !h.arena.Contains(off, metadata.HeaderSize) {
		return metadata.NoBlock, metadata.Header{}, errors.Newf("pointer %d does not address a block in a region of %d bytes", p, h.arena.Len())
	}

	if h.registry != nil && !h.registry.Has(p) {
		return metadata.NoBlock, metadata.Header{}, errors.Newf("pointer %d is not a live allocation", p)
	}

	hdr, err := h.arena.Header(off)
	if err != nil {
		return metadata.NoBlock, metadata.Header{}, err
	}

	if hdr.Free {
		return metadata.NoBlock, metadata.Header{}, errors.Newf("block at pointer %d is already free", p)
	}

	return off, hdr, nil
}
