package memutils

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Statistics is a summary of how the bytes of a heap region are divided between block headers,
// live allocations, and free blocks.
type Statistics struct {
	// RegionBytes is the total size of the mapped region
	RegionBytes int
	// BlockCount is the number of blocks, free or allocated, in the region
	BlockCount int
	// HeaderBytes is the number of bytes consumed by block headers
	HeaderBytes int
	// AllocationCount is the number of live allocations
	AllocationCount int
	// AllocationBytes is the sum of the payload sizes of all live allocations
	AllocationBytes int
	// FreeBlockCount is the number of free blocks in the region
	FreeBlockCount int
	// FreeBytes is the sum of the payload sizes of all free blocks
	FreeBytes int
}

func (s *Statistics) Clear() {
	s.RegionBytes = 0
	s.BlockCount = 0
	s.HeaderBytes = 0
	s.AllocationCount = 0
	s.AllocationBytes = 0
	s.FreeBlockCount = 0
	s.FreeBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.RegionBytes += other.RegionBytes
	s.BlockCount += other.BlockCount
	s.HeaderBytes += other.HeaderBytes
	s.AllocationCount += other.AllocationCount
	s.AllocationBytes += other.AllocationBytes
	s.FreeBlockCount += other.FreeBlockCount
	s.FreeBytes += other.FreeBytes
}

// AccountedBytes returns the number of region bytes covered by headers, allocations and free blocks.
// For a consistent heap this is always equal to RegionBytes.
func (s *Statistics) AccountedBytes() int {
	return s.HeaderBytes + s.AllocationBytes + s.FreeBytes
}

// WriteJSON populates a json object with these statistics
func (s *Statistics) WriteJSON(json *jwriter.ObjectState) {
	json.Name("RegionBytes").Int(s.RegionBytes)
	json.Name("BlockCount").Int(s.BlockCount)
	json.Name("HeaderBytes").Int(s.HeaderBytes)
	json.Name("AllocationCount").Int(s.AllocationCount)
	json.Name("AllocationBytes").Int(s.AllocationBytes)
	json.Name("FreeBlockCount").Int(s.FreeBlockCount)
	json.Name("FreeBytes").Int(s.FreeBytes)
}

type DetailedStatistics struct {
	Statistics
	AllocationSizeMin int
	AllocationSizeMax int
	FreeSizeMin       int
	FreeSizeMax       int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.FreeSizeMin = math.MaxInt
	s.FreeSizeMax = 0
}

// AddFreeBlock records a free block with the provided payload size
func (s *DetailedStatistics) AddFreeBlock(size int) {
	s.FreeBlockCount++
	s.FreeBytes += size

	if size < s.FreeSizeMin {
		s.FreeSizeMin = size
	}

	if size > s.FreeSizeMax {
		s.FreeSizeMax = size
	}
}

// AddAllocation records a live allocation with the provided payload size
func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)

	if other.FreeSizeMin < s.FreeSizeMin {
		s.FreeSizeMin = other.FreeSizeMin
	}

	if other.FreeSizeMax > s.FreeSizeMax {
		s.FreeSizeMax = other.FreeSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}

// WriteJSON populates a json object with these statistics. Minimums are omitted when nothing was
// recorded for them.
func (s *DetailedStatistics) WriteJSON(json *jwriter.ObjectState) {
	s.Statistics.WriteJSON(json)

	if s.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(s.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(s.AllocationSizeMax)
	}

	if s.FreeBlockCount > 0 {
		json.Name("FreeSizeMin").Int(s.FreeSizeMin)
		json.Name("FreeSizeMax").Int(s.FreeSizeMax)
	}
}
