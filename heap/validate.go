package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
)

func corruptionf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), memutils.ErrCorruption)
}

// Validate checks every piece of heap metadata against every other and returns an error marked with
// memutils.ErrCorruption describing the first inconsistency found. It never modifies the heap.
func (h *Heap) Validate() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.validate()
}

func (h *Heap) validate() error {
	if !h.initialized() {
		if h.freeHead != metadata.NoBlock || h.allocCount != 0 {
			return corruptionf("uninitialized heap has a free list or allocations")
		}
		return nil
	}

	// Blocks, in address order
	freeBlocks := make(map[metadata.Offset]int)
	var freeAddresses []metadata.Offset
	allocations := 0
	covered := 0
	prevFree := false
	prevSize := 0

	err := h.checkBlockChain(func(off metadata.Offset, hdr metadata.Header) error {
		if !memutils.IsAligned(int(off), memutils.WordSize) || !memutils.IsAligned(hdr.ChunkSize, memutils.WordSize) {
			return corruptionf("block at offset %d with size %d is not word aligned", off, hdr.ChunkSize)
		}
		if off != 0 {
			if hdr.Footer != prevSize {
				return corruptionf("block at offset %d has footer %d, preceding block has size %d", off, hdr.Footer, prevSize)
			}
			if hdr.Merge != prevFree {
				return corruptionf("block at offset %d has merge flag %t, preceding block free flag is %t", off, hdr.Merge, prevFree)
			}
		} else if hdr.Merge {
			return corruptionf("first block has its merge flag set")
		}

		if hdr.Free {
			freeBlocks[off] = hdr.ChunkSize
			freeAddresses = append(freeAddresses, off)
		} else {
			if hdr.FreePrev != metadata.NoBlock || hdr.FreeNext != metadata.NoBlock {
				return corruptionf("allocated block at offset %d has free-list links", off)
			}
			allocations++

			if h.registry != nil {
				size, ok := h.registry.Get(pointerOf(off))
				if !ok {
					return corruptionf("allocated block at offset %d is not registered", off)
				}
				if size != hdr.ChunkSize {
					return corruptionf("allocated block at offset %d is registered with size %d, header says %d", off, size, hdr.ChunkSize)
				}
			}
		}

		covered += hdr.BlockSize()
		prevFree = hdr.Free
		prevSize = hdr.ChunkSize
		return nil
	})
	if err != nil {
		return err
	}

	if covered != h.arena.Len() {
		return corruptionf("blocks cover %d bytes of a %d byte region", covered, h.arena.Len())
	}
	if allocations != h.allocCount {
		return corruptionf("found %d allocated blocks, heap counts %d", allocations, h.allocCount)
	}
	if h.registry != nil && h.registry.Count() != allocations {
		return corruptionf("registry holds %d allocations, region holds %d", h.registry.Count(), allocations)
	}

	// Free list, in list order
	index := 0
	prev := metadata.NoBlock
	for off := h.freeHead; off != metadata.NoBlock; index++ {
		if index >= len(freeAddresses) {
			return corruptionf("free list is longer than the %d free blocks in the region", len(freeAddresses))
		}
		if off != freeAddresses[index] {
			return corruptionf("free list entry %d is offset %d, expected free block at offset %d", index, off, freeAddresses[index])
		}

		hdr := h.arena.MustHeader(off)
		if hdr.FreePrev != prev {
			return corruptionf("free block at offset %d points back to %d instead of %d", off, hdr.FreePrev, prev)
		}

		prev = off
		off = hdr.FreeNext
	}
	if index != len(freeAddresses) {
		return corruptionf("free list holds %d entries, region holds %d free blocks", index, len(freeAddresses))
	}

	// Worst-fit cache
	largest := -1
	for _, size := range freeBlocks {
		if size > largest {
			largest = size
		}
	}
	if len(freeBlocks) == 0 {
		if h.worstFit.primary != metadata.NoBlock || h.worstFit.runnerUp != metadata.NoBlock {
			return corruptionf("worst-fit cache points at offset %d with no free blocks", h.worstFit.primary)
		}
		return nil
	}

	primarySize, ok := freeBlocks[h.worstFit.primary]
	if !ok {
		return corruptionf("worst-fit candidate at offset %d is not a free block", h.worstFit.primary)
	}
	if primarySize != largest {
		return corruptionf("worst-fit candidate at offset %d holds %d bytes, largest free block holds %d", h.worstFit.primary, primarySize, largest)
	}

	if !h.worstFit.enabled {
		if h.worstFit.runnerUp != metadata.NoBlock {
			return corruptionf("runner-up cached at offset %d without the runner-up cache", h.worstFit.runnerUp)
		}
		return nil
	}

	if len(freeBlocks) == 1 {
		if h.worstFit.runnerUp != metadata.NoBlock {
			return corruptionf("runner-up cached at offset %d with only one free block", h.worstFit.runnerUp)
		}
		return nil
	}

	secondLargest := -1
	for off, size := range freeBlocks {
		if off != h.worstFit.primary && size > secondLargest {
			secondLargest = size
		}
	}

	runnerUpSize, ok := freeBlocks[h.worstFit.runnerUp]
	if !ok || h.worstFit.runnerUp == h.worstFit.primary {
		return corruptionf("runner-up at offset %d is not a second free block", h.worstFit.runnerUp)
	}
	if runnerUpSize != secondLargest {
		return corruptionf("runner-up at offset %d holds %d bytes, second largest free block holds %d", h.worstFit.runnerUp, runnerUpSize, secondLargest)
	}

	return nil
}
