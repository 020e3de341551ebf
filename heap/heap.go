// Package heap is a worst-fit, boundary-tag heap allocator that manages a single fixed-size region
// obtained once from a region.Source.
//
// Every block in the region is prefixed with a metadata.Header. Free blocks are kept in a doubly linked
// free list ordered by address, allocations are carved from the largest free block, and freed blocks
// are optionally merged with their free neighbors. A Heap is not safe for concurrent use unless it was
// created with HeapCreateInternallySynchronized.
package heap

import (
	"io"
	"strings"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/wfheap/internal/utils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
	"github.com/vkngwrapper/wfheap/region"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

const (
	// HeapCreateInternallySynchronized wraps every public method in a mutex. By default the heap
	// assumes a single caller and performs no locking.
	HeapCreateInternallySynchronized CreateFlags = 1 << iota
	// HeapCreateRunnerUpCache keeps the second-largest free block cached alongside the largest, so
	// that most allocations do not need to rescan the free list to find the next worst fit.
	HeapCreateRunnerUpCache
	// HeapCreateTrackAllocations keeps a registry of live allocations. Free and Bytes consult it
	// before trusting the region, so a pointer that was never returned from Alloc is rejected even
	// if the bytes in front of it happen to look like a valid header.
	HeapCreateTrackAllocations
)

var createFlagsMapping = map[CreateFlags]string{
	HeapCreateInternallySynchronized: "HeapCreateInternallySynchronized",
	HeapCreateRunnerUpCache:          "HeapCreateRunnerUpCache",
	HeapCreateTrackAllocations:       "HeapCreateTrackAllocations",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for flag := HeapCreateInternallySynchronized; flag <= HeapCreateTrackAllocations; flag <<= 1 {
		if f&flag != 0 {
			names = append(names, createFlagsMapping[flag])
		}
	}
	return strings.Join(names, "|")
}

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags
	// Source provides the backing region. If it is nil, region.Anonymous is used.
	Source region.Source
}

// Pointer is the byte offset of an allocation's payload from the start of the heap region
type Pointer int

// NullPointer is never returned by a successful Alloc. Offset 0 always holds the first block header.
const NullPointer Pointer = 0

func headerOf(p Pointer) metadata.Offset {
	return metadata.Offset(p) - metadata.Offset(metadata.HeaderSize)
}

func pointerOf(off metadata.Offset) Pointer {
	return Pointer(off) + Pointer(metadata.HeaderSize)
}

// Heap is an allocator context. It owns the region, the free list, the worst-fit cache and the last
// error. The zero value is not usable; create one with New.
type Heap struct {
	logger *slog.Logger
	mutex  utils.OptionalMutex
	flags  CreateFlags
	source region.Source

	arena      metadata.Arena
	freeHead   metadata.Offset
	worstFit   worstFitCache
	allocCount int
	lastError  ErrorCode

	registry *swiss.Map[Pointer, int]
}

// New creates a heap context. The heap has no region until Init is called.
func New(logger *slog.Logger, options CreateOptions) *Heap {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	source := options.Source
	if source == nil {
		source = region.Anonymous{}
	}

	h := &Heap{
		logger:   logger,
		flags:    options.Flags,
		source:   source,
		freeHead: metadata.NoBlock,
		worstFit: worstFitCache{
			enabled:  options.Flags&HeapCreateRunnerUpCache != 0,
			primary:  metadata.NoBlock,
			runnerUp: metadata.NoBlock,
		},
	}
	h.mutex.UseMutex = options.Flags&HeapCreateInternallySynchronized != 0

	if options.Flags&HeapCreateTrackAllocations != 0 {
		h.registry = swiss.NewMap[Pointer, int](42)
	}

	return h
}

// Flags returns the flags the heap was created with
func (h *Heap) Flags() CreateFlags { return h.flags }

// Initialized reports whether Init has succeeded on this heap
func (h *Heap) Initialized() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.initialized()
}

func (h *Heap) initialized() bool {
	return h.arena.Len() > 0
}

// Size returns the size in bytes of the mapped region, or 0 before Init
func (h *Heap) Size() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.arena.Len()
}

// AllocationCount returns the number of live allocations
func (h *Heap) AllocationCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.allocCount
}

// IsEmpty will return true if this heap has no live allocations
func (h *Heap) IsEmpty() bool {
	return h.AllocationCount() == 0
}

// FreeRegionsCount returns the number of entries in the free list
func (h *Heap) FreeRegionsCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var count int
	for off := h.freeHead; off != metadata.NoBlock; off = h.arena.MustHeader(off).FreeNext {
		count++
	}
	return count
}

// SumFreeSize returns the sum of the payload sizes of every free block
func (h *Heap) SumFreeSize() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var size int
	for off := h.freeHead; off != metadata.NoBlock; {
		hdr := h.arena.MustHeader(off)
		size += hdr.ChunkSize
		off = hdr.FreeNext
	}
	return size
}

// LargestFreeSize returns the payload size of the current worst-fit candidate, or 0 if no block is free
func (h *Heap) LargestFreeSize() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.worstFit.primary == metadata.NoBlock {
		return 0
	}
	return h.arena.MustHeader(h.worstFit.primary).ChunkSize
}

// Address returns the absolute address of p within the mapped region, or 0 if the heap has not been
// initialized. The address is only meaningful while the heap is reachable.
func (h *Heap) Address(p Pointer) uintptr {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initialized() {
		return 0
	}
	return addressOf(h.arena.Bytes()) + uintptr(p)
}

func addressOf(data []byte) uintptr {
	if len(data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&data[0]))
}

type heapValidator struct {
	h *Heap
}

func (v heapValidator) Validate() error {
	return v.h.validate()
}
