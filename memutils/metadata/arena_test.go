package metadata_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
)

// threeBlocks lays out allocated(16) free(24) allocated(8) across 144 bytes
func threeBlocks() metadata.Arena {
	arena := metadata.NewArena(make([]byte, 144))

	first := metadata.NewFreeHeader(0, 16)
	first.Free = false
	arena.Store(0, first)

	arena.Store(48, metadata.NewFreeHeader(16, 24))

	last := metadata.NewFreeHeader(24, 8)
	last.Free = false
	last.Merge = true
	arena.Store(104, last)

	return arena
}

func TestArenaContains(t *testing.T) {
	arena := metadata.NewArena(make([]byte, 64))

	require.True(t, arena.Contains(0, 64))
	require.True(t, arena.Contains(32, 32))
	require.False(t, arena.Contains(33, 32))
	require.False(t, arena.Contains(-1, 1))
	require.False(t, arena.Contains(0, -1))
	require.True(t, arena.Contains(64, 0))
}

func TestArenaHeaderValidation(t *testing.T) {
	arena := threeBlocks()

	_, err := arena.Header(48)
	require.NoError(t, err)

	_, err = arena.Header(128)
	require.True(t, errors.Is(err, memutils.ErrCorruption))

	_, err = arena.Header(8)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrCorruption))

	_, err = arena.Header(120)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrCorruption))

	// A header whose payload runs past the end of the region is rejected
	huge := metadata.NewFreeHeader(16, 4096)
	arena.Store(48, huge)
	_, err = arena.Header(48)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrCorruption))

	require.Panics(t, func() {
		arena.MustHeader(48)
	})
}

func TestArenaNeighbors(t *testing.T) {
	arena := threeBlocks()

	first := arena.MustHeader(0)
	next, nextHeader, err := arena.Successor(0, first)
	require.NoError(t, err)
	require.Equal(t, metadata.Offset(48), next)
	require.True(t, nextHeader.Free)
	require.Equal(t, metadata.Offset(48), metadata.SuccessorOffset(0, first))

	last := arena.MustHeader(104)
	next, _, err = arena.Successor(104, last)
	require.NoError(t, err)
	require.Equal(t, metadata.NoBlock, next)

	prev, prevHeader, err := arena.Predecessor(104, last)
	require.NoError(t, err)
	require.Equal(t, metadata.Offset(48), prev)
	require.Equal(t, 24, prevHeader.ChunkSize)

	prev, _, err = arena.Predecessor(0, first)
	require.NoError(t, err)
	require.Equal(t, metadata.NoBlock, prev)
}

func TestArenaNeighborCorruption(t *testing.T) {
	arena := threeBlocks()

	// Footer that disagrees with the preceding block's size
	last := arena.MustHeader(104)
	last.Footer = 16
	_, _, err := arena.Predecessor(104, last)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrCorruption))

	// A zero footer is only legal on the first block
	last.Footer = 0
	_, _, err = arena.Predecessor(104, last)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrCorruption))

	// Successor header wiped
	arena.Wipe(48)
	_, err = arena.Header(48)
	require.True(t, errors.Is(err, memutils.ErrCorruption))
	_, _, err = arena.Successor(0, arena.MustHeader(0))
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrCorruption))
}

func TestArenaPayload(t *testing.T) {
	arena := threeBlocks()

	hdr := arena.MustHeader(48)
	payload := arena.Payload(48, hdr)
	require.Len(t, payload, 24)
	require.Equal(t, 24, cap(payload))

	payload[0] = 0x7F
	require.Equal(t, byte(0x7F), arena.Bytes()[80])
}
