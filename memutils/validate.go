package memutils

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method
type Validatable interface {
	Validate() error
}

// FreedFillPattern is the byte written across the payload of a block when it is freed in
// builds with the debug_mem_utils tag. Reading it back from a live allocation is a strong
// sign of use-after-free.
const FreedFillPattern byte = 0xDD
