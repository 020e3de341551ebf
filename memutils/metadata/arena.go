package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
)

// Arena is a bounds-checked view of a heap region. Every header access goes through an Arena so that
// an offset outside the region, or bytes that do not carry the canary, can never be interpreted as a
// block.
type Arena struct {
	data []byte
}

// NewArena wraps the provided region bytes
func NewArena(data []byte) Arena {
	return Arena{data: data}
}

// Len is the size of the region in bytes
func (a Arena) Len() int { return len(a.data) }

// Bytes returns the whole region
func (a Arena) Bytes() []byte { return a.data }

// Contains reports whether the n bytes starting at off lie entirely within the region
func (a Arena) Contains(off Offset, n int) bool {
	if off < 0 || n < 0 {
		return false
	}
	return int(off) <= len(a.data)-n
}

// Header decodes the header at off after checking that it is in bounds, carries the canary, and
// describes a payload that ends inside the region. The returned error is marked with
// memutils.ErrCorruption.
func (a Arena) Header(off Offset) (Header, error) {
	if !a.Contains(off, HeaderSize) {
		return Header{}, errors.Mark(errors.Newf("offset %d does not leave room for a header in a region of %d bytes", off, len(a.data)), memutils.ErrCorruption)
	}

	h := decodeHeader(a.data[off:])
	if !h.Valid() {
		return Header{}, errors.Mark(errors.Newf("header at offset %d has canary %#x", off, h.Canary), memutils.ErrCorruption)
	}

	if !a.Contains(off+Offset(HeaderSize), h.ChunkSize) {
		return Header{}, errors.Mark(errors.Newf("block at offset %d claims %d payload bytes, past the end of the region", off, h.ChunkSize), memutils.ErrCorruption)
	}

	return h, nil
}

// MustHeader decodes the header at off and panics if it fails validation. It is used on offsets the
// allocator has already established as blocks, where a failure indicates a bug in the allocator.
func (a Arena) MustHeader(off Offset) Header {
	h, err := a.Header(off)
	if err != nil {
		panic(errors.Wrap(err, "allocator metadata is inconsistent"))
	}
	return h
}

// Store encodes h at off
func (a Arena) Store(off Offset, h Header) {
	encodeHeader(a.data[off:int(off)+HeaderSize], h)
}

// Wipe zeroes the header at off so that it no longer validates
func (a Arena) Wipe(off Offset) {
	b := a.data[off : int(off)+HeaderSize]
	for i := range b {
		b[i] = 0
	}
}

// Payload returns the payload bytes of the block whose header is h at off
func (a Arena) Payload(off Offset, h Header) []byte {
	start := int(off) + HeaderSize
	return a.data[start : start+h.ChunkSize : start+h.ChunkSize]
}

// SuccessorOffset is where the header following the block described by h at off begins
func SuccessorOffset(off Offset, h Header) Offset {
	return off + Offset(h.BlockSize())
}

// Successor returns the block that begins immediately after the payload of the block described by h.
// It returns NoBlock when the block ends exactly at the end of the region. Any other position must hold
// a valid header, otherwise an error marked with memutils.ErrCorruption is returned.
func (a Arena) Successor(off Offset, h Header) (Offset, Header, error) {
	next := SuccessorOffset(off, h)
	if int(next) == len(a.data) {
		return NoBlock, Header{}, nil
	}

	nextHeader, err := a.Header(next)
	if err != nil {
		return NoBlock, Header{}, errors.Wrapf(err, "successor of block at offset %d", off)
	}

	return next, nextHeader, nil
}

// Predecessor follows the footer of h back to the block that ends where h begins. It returns NoBlock
// for the first block in the region. A footer that does not lead to a valid header of matching size
// produces an error marked with memutils.ErrCorruption.
func (a Arena) Predecessor(off Offset, h Header) (Offset, Header, error) {
	if h.First() {
		if off != 0 {
			return NoBlock, Header{}, errors.Mark(errors.Newf("block at offset %d has no predecessor footer but is not the first block", off), memutils.ErrCorruption)
		}
		return NoBlock, Header{}, nil
	}

	prev := off - Offset(h.Footer+HeaderSize)
	prevHeader, err := a.Header(prev)
	if err != nil {
		return NoBlock, Header{}, errors.Wrapf(err, "predecessor of block at offset %d", off)
	}
	if prevHeader.ChunkSize != h.Footer {
		return NoBlock, Header{}, errors.Mark(errors.Newf("block at offset %d has footer %d but its predecessor at offset %d has size %d", off, h.Footer, prev, prevHeader.ChunkSize), memutils.ErrCorruption)
	}

	return prev, prevHeader, nil
}
