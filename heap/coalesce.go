package heap

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CoalesceMode selects how Free merges the freed block with free neighbors
type CoalesceMode uint32

const (
	// NoCoalesce leaves the freed block as it is, even if its neighbors are free
	NoCoalesce CoalesceMode = iota
	// GlobalCoalesce sweeps the whole heap and merges every run of adjacent free blocks
	GlobalCoalesce
	// LocalCoalesce merges the freed block with the run of adjacent free blocks it belongs to
	LocalCoalesce
)

var coalesceModeMapping = map[CoalesceMode]string{
	NoCoalesce:     "NoCoalesce",
	GlobalCoalesce: "GlobalCoalesce",
	LocalCoalesce:  "LocalCoalesce",
}

func (m CoalesceMode) String() string {
	return coalesceModeMapping[m]
}

func (m CoalesceMode) valid() bool {
	_, ok := coalesceModeMapping[m]
	return ok
}

// runEnd follows successors from the block at off for as long as they are free and returns the highest
// block of the run. The block at off itself is not required to be free.
func (h *Heap) runEnd(off metadata.Offset, hdr metadata.Header) (metadata.Offset, error) {
	for {
		next, nextHeader, err := h.arena.Successor(off, hdr)
		if err != nil {
			return metadata.NoBlock, err
		}
		if next == metadata.NoBlock || !nextHeader.Free {
			return off, nil
		}
		off, hdr = next, nextHeader
	}
}

// runStart follows predecessors from the block at off for as long as they are free and returns the
// lowest block of the run
func (h *Heap) runStart(off metadata.Offset, hdr metadata.Header) (metadata.Offset, error) {
	for {
		prev, prevHeader, err := h.arena.Predecessor(off, hdr)
		if err != nil {
			return metadata.NoBlock, err
		}
		if prev == metadata.NoBlock || !prevHeader.Free {
			return off, nil
		}
		off, hdr = prev, prevHeader
	}
}

// localCoalesce merges the free block at anchor with every free block that precedes it without a gap.
// The merged block sits at the lowest address of the run and takes over the run's position in the
// free list. Headers that were absorbed are wiped. It returns the surviving block.
//
// The run must already have been validated: a header that fails validation here is a bug.
func (h *Heap) localCoalesce(anchor metadata.Offset) metadata.Offset {
	anchorHeader := h.arena.MustHeader(anchor)
	if !anchorHeader.Free {
		panic(fmt.Sprintf("cannot coalesce from block at offset %d, which is not free", anchor))
	}

	survivor, survivorHeader := anchor, anchorHeader
	mergedSize := anchorHeader.ChunkSize
	absorbed := 0

	for {
		prev, prevHeader, err := h.arena.Predecessor(survivor, survivorHeader)
		if err != nil {
			panic(fmt.Sprintf("coalescing run ending at offset %d: %+v", anchor, err))
		}
		if prev == metadata.NoBlock || !prevHeader.Free {
			break
		}

		mergedSize += prevHeader.ChunkSize + metadata.HeaderSize
		h.arena.Wipe(survivor)
		absorbed++
		survivor, survivorHeader = prev, prevHeader
	}

	if absorbed == 0 {
		return anchor
	}

	// Adjacent free blocks are adjacent in the address-ordered free list, so the survivor's previous
	// entry is untouched and its next entry is whatever followed the anchor
	survivorHeader.ChunkSize = mergedSize
	survivorHeader.FreeNext = anchorHeader.FreeNext
	h.arena.Store(survivor, survivorHeader)
	if anchorHeader.FreeNext != metadata.NoBlock {
		h.setFreePrev(anchorHeader.FreeNext, survivor)
	}

	next, nextHeader, err := h.arena.Successor(survivor, survivorHeader)
	if err != nil {
		panic(fmt.Sprintf("successor of coalesced block at offset %d: %+v", survivor, err))
	}
	if next != metadata.NoBlock {
		nextHeader.Footer = mergedSize
		nextHeader.Merge = true
		h.arena.Store(next, nextHeader)
	}

	h.logger.Debug("Heap::coalesce",
		slog.Int("Offset", int(survivor)),
		slog.Int("Absorbed", absorbed),
		slog.Int("Size", mergedSize),
	)

	return survivor
}

// globalCoalesce merges every run of adjacent free blocks in the heap. It walks the free list from the
// head and, for each run, coalesces backward from the run's highest block.
func (h *Heap) globalCoalesce() {
	for off := h.freeHead; off != metadata.NoBlock; {
		anchor, err := h.runEnd(off, h.arena.MustHeader(off))
		if err != nil {
			panic(fmt.Sprintf("finding the end of the free run at offset %d: %+v", off, err))
		}

		survivor := h.localCoalesce(anchor)
		off = h.arena.MustHeader(survivor).FreeNext
	}
}

// checkBlockChain walks every block in the region in address order, validating each header and the
// footer link between neighbors
func (h *Heap) checkBlockChain(visit func(off metadata.Offset, hdr metadata.Header) error) error {
	if !h.initialized() {
		return nil
	}

	off := metadata.Offset(0)
	hdr, err := h.arena.Header(off)
	if err != nil {
		return err
	}

	for {
		if visit != nil {
			err = visit(off, hdr)
			if err != nil {
				return err
			}
		}

		next, nextHeader, err := h.arena.Successor(off, hdr)
		if err != nil {
			return err
		}
		if next == metadata.NoBlock {
			return nil
		}

		prev, _, err := h.arena.Predecessor(next, nextHeader)
		if err != nil {
			return err
		}
		if prev != off {
			return errors.Mark(errors.Newf("block at offset %d points back to offset %d instead of %d", next, prev, off), memutils.ErrCorruption)
		}

		off, hdr = next, nextHeader
	}
}
