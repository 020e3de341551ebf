//go:build !unix

package region

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
)

func (Anonymous) PageSize() int {
	return os.Getpagesize()
}

// Map allocates the region from the Go heap when anonymous mappings are not available
func (Anonymous) Map(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Wrapf(memutils.ErrBadArguments, "cannot map a region of %d bytes", size)
	}
	return make([]byte, size), nil
}

// Unmap drops the region; the garbage collector reclaims it
func (Anonymous) Unmap(data []byte) error {
	return nil
}
