package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
	"github.com/vkngwrapper/wfheap/region"
	"golang.org/x/exp/slog"
)

// Init maps the heap's region and installs a single free block covering all of it. size is the number
// of bytes the caller intends to allocate; the region is enlarged to leave room for block headers and
// rounded up to whole pages. Init may only succeed once per heap.
func (h *Heap) Init(size int) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initialized() {
		return h.fail("Init", ErrorBadArguments, nil, "heap has already been initialized with %d bytes", h.arena.Len())
	}
	if size <= 0 {
		return h.fail("Init", ErrorBadArguments, nil, "requested heap size %d is not a positive integer", size)
	}

	pageSize := h.source.PageSize()
	memutils.DebugCheckPow2(pageSize, "page size")
	mappingSize, err := region.MappingSize(size, metadata.HeaderSize, pageSize)
	if err != nil {
		return h.fail("Init", CodeOf(err), err, "could not size a region for %d bytes", size)
	}

	data, err := h.source.Map(mappingSize)
	if err != nil {
		return h.fail("Init", ErrorOutOfMemory, err, "could not map %d bytes", mappingSize)
	}

	var rejected error
	if len(data) != mappingSize {
		rejected = errors.Newf("requested a region of %d bytes but received %d", mappingSize, len(data))
	} else if !memutils.IsAligned(int(addressOf(data)), memutils.WordSize) {
		rejected = errors.Newf("region at address %#x is not aligned to %d bytes", addressOf(data), memutils.WordSize)
	}
	if rejected != nil {
		// The region was acquired, so it goes back before Init can be retried
		if len(data) > 0 {
			unmapErr := h.source.Unmap(data)
			if unmapErr != nil {
				rejected = errors.WithSecondaryError(rejected, unmapErr)
			}
		}
		return h.fail("Init", ErrorOutOfMemory, rejected, "could not use the mapped region")
	}

	h.arena = metadata.NewArena(data)
	h.arena.Store(0, metadata.NewFreeHeader(0, mappingSize-metadata.HeaderSize))
	h.freeHead = 0
	h.worstFit.reset()
	h.worstFit.primary = 0

	h.logger.Debug("Heap::Init",
		slog.Int("Requested", size),
		slog.Int("PageSize", pageSize),
		slog.Int("MappedBytes", mappingSize),
		slog.String("Flags", h.flags.String()),
	)

	memutils.DebugValidate(heapValidator{h})
	return nil
}
