package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrBadArguments is returned when a size is not a positive integer or when a call is made out of
	// sequence, such as initializing a heap that has already been initialized
	ErrBadArguments = errors.New("bad arguments")
	// ErrOutOfMemory is returned when no free block is large enough for a request, or when the backing
	// region could not be obtained from the operating system
	ErrOutOfMemory = errors.New("out of memory")
	// ErrBadPointer is returned when a pointer does not address a live allocation: it fails header
	// validation, or the block it addresses has already been freed
	ErrBadPointer = errors.New("bad pointer")
	// ErrCorruption marks errors caused by a block header that failed validation while the allocator
	// was inspecting a neighbor it needed to trust
	ErrCorruption = errors.New("heap corruption detected")
)
