// Package region supplies the backing memory for a heap: one zero-initialized, read/write,
// page-granular region obtained once and never returned.
package region

//go:generate mockgen -destination=mocks/source.go -package=mocks . Source

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
)

// Source is the virtual-memory facility a heap maps its region from
type Source interface {
	// PageSize returns the granularity, in bytes, of regions returned by Map
	PageSize() int
	// Map returns a zero-initialized read/write region of exactly size bytes. size is always a
	// positive multiple of PageSize.
	Map(size int) ([]byte, error)
	// Unmap returns a region obtained from Map. A heap only calls it when it rejects the region
	// during Init; a region that backs a heap is never returned.
	Unmap(data []byte) error
}

// Anonymous maps private anonymous memory from the operating system
type Anonymous struct{}

var _ Source = Anonymous{}

// Static hands out a caller-provided buffer as the region. It is useful in environments that manage
// their own memory, and in tests. The buffer may only be mapped once.
type Static struct {
	Data []byte
	// Page is the page size to report. If it is 0, 4096 is used.
	Page int

	mapped bool
}

var _ Source = &Static{}

const defaultStaticPageSize = 4096

func (s *Static) PageSize() int {
	if s.Page <= 0 {
		return defaultStaticPageSize
	}
	return s.Page
}

func (s *Static) Map(size int) ([]byte, error) {
	if s.mapped {
		return nil, errors.Wrap(memutils.ErrOutOfMemory, "static region has already been mapped")
	}
	if size <= 0 {
		return nil, errors.Wrapf(memutils.ErrBadArguments, "cannot map a region of %d bytes", size)
	}
	if size > len(s.Data) {
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "static region holds %d bytes but %d were requested", len(s.Data), size)
	}

	data := s.Data[:size:size]
	for i := range data {
		data[i] = 0
	}
	s.mapped = true
	return data, nil
}

func (s *Static) Unmap(data []byte) error {
	if !s.mapped {
		return errors.Wrap(memutils.ErrBadArguments, "static region is not mapped")
	}
	if len(data) == 0 || len(s.Data) == 0 || &data[0] != &s.Data[0] {
		return errors.Wrap(memutils.ErrBadArguments, "slice was not mapped from this static region")
	}

	s.mapped = false
	return nil
}
