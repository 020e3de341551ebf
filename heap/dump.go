package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
	"golang.org/x/exp/slog"
)

// BlockInfo describes one block of the heap as it is recorded in its header
type BlockInfo struct {
	// Offset is the position of the block's header in the region
	Offset int
	// Pointer is the position of the block's payload, as returned from Alloc
	Pointer Pointer
	// Footer is the payload size of the preceding block, or 0 for the first block
	Footer int
	// Size is the payload size of the block
	Size int
	// Merge is set when the preceding block is free
	Merge bool
	// Free is set when the block is free
	Free bool
	// Prev and Next are the header offsets of the neighboring free-list entries, or -1
	Prev int
	Next int
	// CanaryValid reports whether the header carried the guard value
	CanaryValid bool
}

func blockInfo(off metadata.Offset, hdr metadata.Header) BlockInfo {
	return BlockInfo{
		Offset:  int(off),
		Pointer: pointerOf(off),
		Footer:  hdr.Footer,
		Size:    hdr.ChunkSize,
		Merge:   hdr.Merge,
		Free:    hdr.Free,
		Prev:    int(hdr.FreePrev),
		Next:    int(hdr.FreeNext),

		CanaryValid: hdr.Valid(),
	}
}

func writeBlockJSON(json *jwriter.ObjectState, off metadata.Offset, hdr metadata.Header) {
	json.Name("Offset").Int(int(off))
	json.Name("Pointer").Int(int(pointerOf(off)))
	hdr.WriteJSON(json)
}

// Dump lists the free list, in list order. It is meant for tests and debugging; formatting the
// listing for people is left to the caller, or to PrintDetailedMap.
func (h *Heap) Dump() ([]BlockInfo, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.dumpFreeList()
}

func (h *Heap) dumpFreeList() ([]BlockInfo, error) {
	var blocks []BlockInfo
	for off := h.freeHead; off != metadata.NoBlock; {
		hdr, err := h.arena.Header(off)
		if err != nil {
			return blocks, errors.Wrapf(err, "free list entry %d", len(blocks))
		}
		if !hdr.Free {
			return blocks, errors.Mark(errors.Newf("free list entry at offset %d is not marked free", off), memutils.ErrCorruption)
		}

		blocks = append(blocks, blockInfo(off, hdr))
		off = hdr.FreeNext
	}

	return blocks, nil
}

// VisitAllRegions will call the provided callback once for each block in the heap, free or allocated,
// in address order. It stops at the first error returned by the callback, or at the first header that
// fails validation.
func (h *Heap) VisitAllRegions(handleBlock func(info BlockInfo) error) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.checkBlockChain(func(off metadata.Offset, hdr metadata.Header) error {
		return handleBlock(blockInfo(off, hdr))
	})
}

// Bytes returns the first size bytes of the live allocation at p. The slice aliases the heap region
// and must not be used after p is freed.
func (h *Heap) Bytes(p Pointer, size int) ([]byte, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initialized() {
		return nil, h.fail("Bytes", ErrorBadArguments, nil, "heap has not been initialized")
	}

	off, hdr, err := h.liveAllocation(p)
	if err != nil {
		return nil, h.fail("Bytes", ErrorBadPointer, err, "cannot access pointer %d", p)
	}

	if size < 0 || size > hdr.ChunkSize {
		return nil, h.fail("Bytes", ErrorBadArguments, nil, "requested %d bytes from an allocation of %d bytes", size, hdr.ChunkSize)
	}

	return h.arena.Payload(off, hdr)[:size:size], nil
}

// PrintDetailedMap writes a json object describing the heap: totals, statistics, the free list and
// every block in address order
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("TotalBytes").Int(h.arena.Len())
	objState.Name("Flags").String(h.flags.String())
	objState.Name("LastError").String(h.lastError.String())

	var stats memutils.DetailedStatistics
	stats.Clear()
	statsErr := h.addDetailedStatistics(&stats)

	statsObj := objState.Name("Statistics").Object()
	stats.WriteJSON(&statsObj)
	statsObj.End()
	if statsErr != nil {
		objState.Name("StatisticsError").String(statsErr.Error())
	}

	freeArray := objState.Name("FreeList").Array()
	var err error
	for off := h.freeHead; off != metadata.NoBlock; {
		var hdr metadata.Header
		hdr, err = h.arena.Header(off)
		if err != nil {
			break
		}

		obj := freeArray.Object()
		writeBlockJSON(&obj, off, hdr)
		obj.End()
		off = hdr.FreeNext
	}
	freeArray.End()
	if err != nil {
		objState.Name("FreeListError").String(err.Error())
	}

	blockArray := objState.Name("Blocks").Array()
	err = h.checkBlockChain(func(off metadata.Offset, hdr metadata.Header) error {
		obj := blockArray.Object()
		defer obj.End()

		writeBlockJSON(&obj, off, hdr)
		return nil
	})
	blockArray.End()
	if err != nil {
		objState.Name("BlocksError").String(err.Error())
	}
}

// DumpJSON returns the output of PrintDetailedMap as a byte slice
func (h *Heap) DumpJSON() []byte {
	writer := jwriter.NewWriter()
	h.PrintDetailedMap(&writer)
	return writer.Bytes()
}

// DebugLogAllAllocations calls logFunc once for every live allocation, in address order
func (h *Heap) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, p Pointer, size int)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	err := h.checkBlockChain(func(off metadata.Offset, hdr metadata.Header) error {
		if !hdr.Free {
			logFunc(logger, pointerOf(off), hdr.ChunkSize)
		}
		return nil
	})
	if err != nil {
		logger.Error("heap metadata failed validation while logging allocations", slog.Any("error", err))
	}
}
