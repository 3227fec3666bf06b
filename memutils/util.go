package memutils

import "unsafe"

type Number interface {
	~int | ~uint
}

// WordSize is the alignment Tracker applies to reported block sizes
const WordSize uint = uint(unsafe.Sizeof(uintptr(0)))

func AlignUp[T Number](value T, alignment uint) T {
	return T((uint(value) + alignment - 1) & ^(alignment - 1))
}

// SizeOf returns the number of bytes a value of type T occupies in place, not counting anything
// it references
func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}
