package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

// WordSize is the granularity, in bytes, of every size and offset managed by the heap
const WordSize uint = 8

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// IsAligned reports whether value is a multiple of alignment, which must be a power of two
func IsAligned(value int, alignment uint) bool {
	return value&int(alignment-1) == 0
}

// RoundUpToMultiple rounds value up to a whole number of units. Unlike AlignUp, unit does not need to
// be a power of two.
func RoundUpToMultiple(value, unit int) int {
	if unit <= 0 {
		return value
	}
	return ((value + unit - 1) / unit) * unit
}
