package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
)

// AddStatistics adds this heap's totals to stats. If a block header fails validation, stats is left
// untouched and the error is returned.
func (h *Heap) AddStatistics(stats *memutils.Statistics) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var detailed memutils.DetailedStatistics
	detailed.Clear()
	err := h.addDetailedStatistics(&detailed)
	if err != nil {
		return err
	}

	stats.AddStatistics(&detailed.Statistics)
	return nil
}

// AddDetailedStatistics adds this heap's totals and size ranges to stats. If a block header fails
// validation, stats is left untouched and the error is returned.
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var detailed memutils.DetailedStatistics
	detailed.Clear()
	err := h.addDetailedStatistics(&detailed)
	if err != nil {
		return err
	}

	stats.AddDetailedStatistics(&detailed)
	return nil
}

func (h *Heap) addDetailedStatistics(stats *memutils.DetailedStatistics) error {
	if !h.initialized() {
		return nil
	}

	stats.RegionBytes += h.arena.Len()
	err := h.checkBlockChain(func(off metadata.Offset, hdr metadata.Header) error {
		stats.BlockCount++
		stats.HeaderBytes += metadata.HeaderSize

		if hdr.Free {
			stats.AddFreeBlock(hdr.ChunkSize)
		} else {
			stats.AddAllocation(hdr.ChunkSize)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "collecting heap statistics")
	}

	return nil
}
