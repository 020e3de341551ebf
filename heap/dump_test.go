package heap_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/wfheap/heap"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/region"
	"golang.org/x/exp/slog"
)

func TestDumpJSON(t *testing.T) {
	h := newStaticHeap(t, 100, 0)

	_, err := h.Alloc(8)
	require.NoError(t, err)

	require.JSONEq(t, `{
		"TotalBytes": 520,
		"Flags": "None",
		"LastError": "ErrorNone",
		"Statistics": {
			"RegionBytes": 520,
			"BlockCount": 2,
			"HeaderBytes": 64,
			"AllocationCount": 1,
			"AllocationBytes": 8,
			"FreeBlockCount": 1,
			"FreeBytes": 448,
			"AllocationSizeMin": 8,
			"AllocationSizeMax": 8,
			"FreeSizeMin": 448,
			"FreeSizeMax": 448
		},
		"FreeList": [
			{"Offset": 40, "Pointer": 72, "Footer": 8, "Size": 448, "Merge": false, "Free": true, "Prev": null, "Next": null, "Canary": true}
		],
		"Blocks": [
			{"Offset": 0, "Pointer": 32, "Footer": 0, "Size": 8, "Merge": false, "Free": false, "Prev": null, "Next": null, "Canary": true},
			{"Offset": 40, "Pointer": 72, "Footer": 8, "Size": 448, "Merge": false, "Free": true, "Prev": null, "Next": null, "Canary": true}
		]
	}`, string(h.DumpJSON()))
}

func TestStatistics(t *testing.T) {
	h := newStaticHeap(t, 100, 0)

	var stats memutils.Statistics
	require.NoError(t, h.AddStatistics(&stats))
	require.Equal(t, memutils.Statistics{
		RegionBytes:    520,
		BlockCount:     1,
		HeaderBytes:    32,
		FreeBlockCount: 1,
		FreeBytes:      488,
	}, stats)

	a, err := h.Alloc(16)
	require.NoError(t, err)
	_, err = h.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, h.Free(a, heap.NoCoalesce))

	var detailed memutils.DetailedStatistics
	detailed.Clear()
	require.NoError(t, h.AddDetailedStatistics(&detailed))
	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionBytes:     520,
			BlockCount:      3,
			HeaderBytes:     96,
			AllocationCount: 1,
			AllocationBytes: 64,
			FreeBlockCount:  2,
			FreeBytes:       360,
		},
		AllocationSizeMin: 64,
		AllocationSizeMax: 64,
		FreeSizeMin:       16,
		FreeSizeMax:       344,
	}, detailed)
	require.Equal(t, 520, detailed.AccountedBytes())
	require.Equal(t, 360, h.SumFreeSize())
}

func TestBytes(t *testing.T) {
	h := newStaticHeap(t, 100, heap.HeapCreateTrackAllocations)

	p, err := h.Alloc(20)
	require.NoError(t, err)

	data, err := h.Bytes(p, 24)
	require.NoError(t, err)
	require.Len(t, data, 24)
	require.Equal(t, 24, cap(data))

	_, err = h.Bytes(p, 25)
	require.True(t, errors.Is(err, memutils.ErrBadArguments))

	_, err = h.Bytes(p, -1)
	require.True(t, errors.Is(err, memutils.ErrBadArguments))

	_, err = h.Bytes(p+8, 8)
	require.True(t, errors.Is(err, memutils.ErrBadPointer))

	require.NoError(t, h.Free(p, heap.NoCoalesce))
	_, err = h.Bytes(p, 8)
	require.True(t, errors.Is(err, memutils.ErrBadPointer))
}

func TestDebugLogAllAllocations(t *testing.T) {
	h := newStaticHeap(t, 1000, 0)

	var expected []heap.Pointer
	for _, size := range []int{8, 24, 40} {
		p, err := h.Alloc(size)
		require.NoError(t, err)
		expected = append(expected, p)
	}
	require.NoError(t, h.Free(expected[1], heap.NoCoalesce))
	expected = append(expected[:1], expected[2])

	var logged []heap.Pointer
	var sizes []int
	h.DebugLogAllAllocations(slog.Default(), func(log *slog.Logger, p heap.Pointer, size int) {
		logged = append(logged, p)
		sizes = append(sizes, size)
	})

	require.Equal(t, expected, logged)
	require.Equal(t, []int{8, 40}, sizes)
}

func TestVisitAllRegionsStops(t *testing.T) {
	h := newStaticHeap(t, 100, 0)

	_, err := h.Alloc(8)
	require.NoError(t, err)

	stop := errors.New("stop")
	visited := 0
	err = h.VisitAllRegions(func(info heap.BlockInfo) error {
		visited++
		return stop
	})
	require.True(t, errors.Is(err, stop))
	require.Equal(t, 1, visited)
}

func TestCorruptNeighborFailsWithoutMutation(t *testing.T) {
	buffer := make([]byte, 4096)
	h := heap.New(nil, heap.CreateOptions{Source: &region.Static{Data: buffer, Page: 8}})
	require.NoError(t, h.Init(100))

	a, err := h.Alloc(40)
	require.NoError(t, err)
	_, err = h.Alloc(40)
	require.NoError(t, err)

	before := allBlocks(t, h)

	// Clear the canary of the second block
	saved := buffer[77]
	buffer[77] = 0
	require.True(t, errors.Is(h.Validate(), memutils.ErrCorruption))

	for _, mode := range []heap.CoalesceMode{heap.NoCoalesce, heap.LocalCoalesce, heap.GlobalCoalesce} {
		err = h.Free(a, mode)
		require.True(t, errors.Is(err, memutils.ErrBadPointer))
		require.True(t, errors.Is(err, memutils.ErrCorruption))
		require.Equal(t, heap.ErrorBadPointer, h.LastError())
	}
	require.Equal(t, 2, h.AllocationCount())

	buffer[77] = saved
	require.NoError(t, h.Validate())
	require.Equal(t, before, allBlocks(t, h))

	require.NoError(t, h.Free(a, heap.GlobalCoalesce))
	require.NoError(t, h.Validate())
}

func TestCorruptCandidateFailsAlloc(t *testing.T) {
	buffer := make([]byte, 4096)
	h := heap.New(nil, heap.CreateOptions{Source: &region.Static{Data: buffer, Page: 8}})
	require.NoError(t, h.Init(100))

	_, err := h.Alloc(40)
	require.NoError(t, err)

	// The free remainder at offset 72 is the worst-fit candidate
	buffer[76] ^= 0xFF
	_, err = h.Alloc(8)
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
	require.True(t, errors.Is(err, memutils.ErrCorruption))
	require.Equal(t, heap.ErrorOutOfMemory, h.LastError())
}

func TestStatisticsReportCorruption(t *testing.T) {
	buffer := make([]byte, 4096)
	h := heap.New(nil, heap.CreateOptions{Source: &region.Static{Data: buffer, Page: 8}})
	require.NoError(t, h.Init(100))

	_, err := h.Alloc(40)
	require.NoError(t, err)

	// Break the canary of the free block that follows the allocation
	buffer[77] = 0

	var stats memutils.Statistics
	err = h.AddStatistics(&stats)
	require.True(t, errors.Is(err, memutils.ErrCorruption))
	require.Equal(t, memutils.Statistics{}, stats)

	var detailed memutils.DetailedStatistics
	detailed.Clear()
	err = h.AddDetailedStatistics(&detailed)
	require.True(t, errors.Is(err, memutils.ErrCorruption))
	require.Zero(t, detailed.BlockCount)
	require.Zero(t, detailed.RegionBytes)

	require.Contains(t, string(h.DumpJSON()), `"StatisticsError"`)
}
