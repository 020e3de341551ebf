package region

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
	"github.com/vkngwrapper/wfheap/memutils/metadata"
)

const maxMapping = metadata.MaxChunkSize

// MappingSize computes how many bytes to map for a heap that should be able to hand out requested
// bytes. Every 8-byte unit of the request is assumed to need its own header in the worst case, the
// total is aligned to 8 bytes, and then rounded up to whole pages.
func MappingSize(requested, headerSize, pageSize int) (int, error) {
	if requested <= 0 {
		return 0, errors.Wrapf(memutils.ErrBadArguments, "requested region size %d is not a positive integer", requested)
	}
	if headerSize <= 0 || pageSize <= 0 {
		return 0, errors.Wrapf(memutils.ErrBadArguments, "invalid header size %d or page size %d", headerSize, pageSize)
	}

	units := requested/int(memutils.WordSize) + 1
	if units > (maxMapping-requested)/headerSize {
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "a region for %d bytes cannot be represented", requested)
	}

	total := memutils.AlignUp(requested+units*headerSize, memutils.WordSize)
	if total > maxMapping-pageSize {
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "a region for %d bytes would need %d bytes, more than the maximum of %d", requested, total, maxMapping)
	}
	total = memutils.RoundUpToMultiple(total, pageSize)

	return total, nil
}
