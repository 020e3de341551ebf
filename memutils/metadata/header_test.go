package metadata_test

import (
	"encoding/binary"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
)

func TestHeaderLayout(t *testing.T) {
	data := make([]byte, 128)
	arena := metadata.NewArena(data)

	hdr := metadata.NewFreeHeader(24, 56)
	hdr.Merge = true
	hdr.FreePrev = metadata.NoBlock
	hdr.FreeNext = 0x40
	arena.Store(8, hdr)

	raw := data[8:40]
	require.Equal(t, uint32(24), binary.LittleEndian.Uint32(raw[0:]))
	require.Equal(t, metadata.Canary, binary.LittleEndian.Uint32(raw[4:]))
	require.Equal(t, uint32(56), binary.LittleEndian.Uint32(raw[8:]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[12:]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[14:]))
	require.Equal(t, ^uint64(0), binary.LittleEndian.Uint64(raw[16:]))
	require.Equal(t, uint64(0x40), binary.LittleEndian.Uint64(raw[24:]))

	// Nothing outside the header is touched
	require.Equal(t, make([]byte, 8), data[:8])
	require.Equal(t, make([]byte, 88), data[40:])
}

func TestHeaderDecode(t *testing.T) {
	arena := metadata.NewArena(make([]byte, 96))

	hdr := metadata.NewFreeHeader(0, 64)
	require.True(t, hdr.Valid())
	require.True(t, hdr.First())
	require.Equal(t, 96, hdr.BlockSize())

	hdr.Free = false
	arena.Store(0, hdr)

	decoded, err := arena.Header(0)
	require.NoError(t, err)
	require.Equal(t, hdr, decoded)
	require.Equal(t, metadata.NoBlock, decoded.FreePrev)
	require.Equal(t, metadata.NoBlock, decoded.FreeNext)
}

func TestHeaderJSON(t *testing.T) {
	hdr := metadata.NewFreeHeader(16, 40)
	hdr.FreeNext = 128

	writer := jwriter.NewWriter()
	obj := writer.Object()
	hdr.WriteJSON(&obj)
	obj.End()

	require.JSONEq(t, `{
		"Footer": 16,
		"Size": 40,
		"Merge": false,
		"Free": true,
		"Prev": null,
		"Next": 128,
		"Canary": true
	}`, string(writer.Bytes()))
}
