package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/wfheap/memutils"
	"golang.org/x/exp/slog"
)

// ErrorCode is the last-error value recorded by a heap after a failed operation
type ErrorCode uint32

const (
	// ErrorNone indicates that no operation on the heap has failed
	ErrorNone ErrorCode = iota
	// ErrorBadArguments indicates an invalid size or an operation made out of sequence
	ErrorBadArguments
	// ErrorOutOfMemory indicates that no free block was large enough, or that the region could not be mapped
	ErrorOutOfMemory
	// ErrorBadPointer indicates a pointer that failed header validation or was already free
	ErrorBadPointer
)

var errorCodeMapping = map[ErrorCode]string{
	ErrorNone:         "ErrorNone",
	ErrorBadArguments: "ErrorBadArguments",
	ErrorOutOfMemory:  "ErrorOutOfMemory",
	ErrorBadPointer:   "ErrorBadPointer",
}

func (c ErrorCode) String() string {
	return errorCodeMapping[c]
}

// Sentinel returns the memutils error that errors carrying this code wrap
func (c ErrorCode) Sentinel() error {
	switch c {
	case ErrorBadArguments:
		return memutils.ErrBadArguments
	case ErrorOutOfMemory:
		return memutils.ErrOutOfMemory
	case ErrorBadPointer:
		return memutils.ErrBadPointer
	}
	return nil
}

// CodeOf classifies an error returned by a heap operation
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrorNone
	case errors.Is(err, memutils.ErrBadPointer):
		return ErrorBadPointer
	case errors.Is(err, memutils.ErrOutOfMemory):
		return ErrorOutOfMemory
	case errors.Is(err, memutils.ErrBadArguments):
		return ErrorBadArguments
	}
	return ErrorNone
}

// LastError returns the code of the most recent failed operation on this heap. Successful operations
// do not reset it.
func (h *Heap) LastError() ErrorCode {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.lastError
}

// fail records code as the last error and returns an error that wraps the code's sentinel. cause may be
// nil; when it is present it is kept as a secondary error so that it shows up in formatted output
// without changing how the error classifies.
func (h *Heap) fail(op string, code ErrorCode, cause error, format string, args ...any) error {
	h.lastError = code

	err := errors.Wrapf(code.Sentinel(), format, args...)
	if cause != nil {
		err = errors.WithSecondaryError(err, cause)
		if errors.Is(cause, memutils.ErrCorruption) {
			err = errors.Mark(err, memutils.ErrCorruption)
		}
	}

	h.logger.Warn("Heap::"+op+" failed", slog.String("Code", code.String()), slog.Any("error", err))
	return err
}
