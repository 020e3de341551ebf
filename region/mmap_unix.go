//go:build unix

package region

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
	"golang.org/x/sys/unix"
)

func (Anonymous) PageSize() int {
	return unix.Getpagesize()
}

// Map maps size bytes of private anonymous memory. The pages are zero-filled by the kernel.
func (Anonymous) Map(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Wrapf(memutils.ErrBadArguments, "cannot map a region of %d bytes", size)
	}

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "mmap: failed to map %d bytes", size), memutils.ErrOutOfMemory)
	}
	return mem, nil
}

// Unmap releases a region returned by Map. It must be passed the same slice Map returned.
func (Anonymous) Unmap(data []byte) error {
	err := unix.Munmap(data)
	if err != nil {
		return errors.Wrapf(err, "munmap: failed to release %d bytes", len(data))
	}
	return nil
}
