// Package metadata describes the boundary tags that divide a heap region into blocks, and provides
// bounds-checked access to them.
package metadata

import (
	"encoding/binary"
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Offset is the byte position of a block header within an Arena
type Offset int

// NoBlock is the Offset used in free-list links to mean that there is no neighbor
const NoBlock Offset = -1

const (
	// HeaderSize is the size in bytes of the boundary tag that precedes every block's payload
	HeaderSize int = 32
	// Canary is the guard value carried by every valid header. Any bytes that do not carry it at
	// the canary position are not a header.
	Canary uint32 = 0xABCDEF00
	// MaxChunkSize bounds every block, and so every region, to what both the 32-bit size fields and a
	// 32-bit int can hold
	MaxChunkSize int = math.MaxInt32

	footerField    = 0
	canaryField    = 4
	chunkSizeField = 8
	mergeField     = 12
	freeField      = 14
	freePrevField  = 16
	freeNextField  = 24
)

// Header is the decoded form of a block's boundary tag.
//
// The on-region layout is little-endian:
//
//	 0 footer     uint32  payload size of the preceding block, 0 for the first block
//	 4 canary     uint32
//	 8 chunk_size uint32  payload size of this block, excluding the header
//	12 merge      uint16  1 when the preceding block is free
//	14 free       uint16  1 when this block is free
//	16 free_prev  uint64  offset of the previous free-list entry, all ones for none
//	24 free_next  uint64  offset of the next free-list entry, all ones for none
type Header struct {
	Footer    int
	Canary    uint32
	ChunkSize int
	Merge     bool
	Free      bool
	FreePrev  Offset
	FreeNext  Offset
}

// NewFreeHeader returns a valid header for a free block that has not yet been linked into a free list
func NewFreeHeader(footer, chunkSize int) Header {
	return Header{
		Footer:    footer,
		Canary:    Canary,
		ChunkSize: chunkSize,
		Free:      true,
		FreePrev:  NoBlock,
		FreeNext:  NoBlock,
	}
}

// Valid reports whether the header carries the guard value
func (h Header) Valid() bool {
	return h.Canary == Canary
}

// First reports whether the header belongs to the first block in the region
func (h Header) First() bool {
	return h.Footer == 0
}

// BlockSize is the number of region bytes covered by the block, header included
func (h Header) BlockSize() int {
	return h.ChunkSize + HeaderSize
}

// WriteJSON populates a json object with the fields of this header
func (h Header) WriteJSON(json *jwriter.ObjectState) {
	json.Name("Footer").Int(h.Footer)
	json.Name("Size").Int(h.ChunkSize)
	json.Name("Merge").Bool(h.Merge)
	json.Name("Free").Bool(h.Free)
	writeLink(json, "Prev", h.FreePrev)
	writeLink(json, "Next", h.FreeNext)
	json.Name("Canary").Bool(h.Valid())
}

func writeLink(json *jwriter.ObjectState, name string, link Offset) {
	if link == NoBlock {
		json.Name(name).Null()
		return
	}
	json.Name(name).Int(int(link))
}

func decodeHeader(b []byte) Header {
	return Header{
		Footer:    int(binary.LittleEndian.Uint32(b[footerField:])),
		Canary:    binary.LittleEndian.Uint32(b[canaryField:]),
		ChunkSize: int(binary.LittleEndian.Uint32(b[chunkSizeField:])),
		Merge:     binary.LittleEndian.Uint16(b[mergeField:]) != 0,
		Free:      binary.LittleEndian.Uint16(b[freeField:]) != 0,
		FreePrev:  decodeLink(b[freePrevField:]),
		FreeNext:  decodeLink(b[freeNextField:]),
	}
}

func encodeHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint32(b[footerField:], uint32(h.Footer))
	binary.LittleEndian.PutUint32(b[canaryField:], h.Canary)
	binary.LittleEndian.PutUint32(b[chunkSizeField:], uint32(h.ChunkSize))
	binary.LittleEndian.PutUint16(b[mergeField:], encodeFlag(h.Merge))
	binary.LittleEndian.PutUint16(b[freeField:], encodeFlag(h.Free))
	encodeLink(b[freePrevField:], h.FreePrev)
	encodeLink(b[freeNextField:], h.FreeNext)
}

func decodeLink(b []byte) Offset {
	raw := binary.LittleEndian.Uint64(b)
	if raw == math.MaxUint64 {
		return NoBlock
	}
	return Offset(raw)
}

func encodeLink(b []byte, link Offset) {
	if link == NoBlock {
		binary.LittleEndian.PutUint64(b, math.MaxUint64)
		return
	}
	binary.LittleEndian.PutUint64(b, uint64(link))
}

func encodeFlag(flag bool) uint16 {
	if flag {
		return 1
	}
	return 0
}
