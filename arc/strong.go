package arc

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arc/memutils"
)

// Strong is an owning handle to a shared value. The value stays alive as long as at least one
// Strong handle to it has not been dropped.
type Strong[T any] struct {
	noCopy noCopy
	b      *block[T]
}

// New moves value into a new shared block and returns the first Strong handle to it
func New[T any](value T) *Strong[T] {
	return NewWithOptions(value, CreateOptions[T]{})
}

// NewWithOptions moves value into a new shared block and returns the first Strong handle to it
//
// value - The value to share
//
// options - Optional parameters: it is valid to leave all the fields blank
func NewWithOptions[T any](value T, options CreateOptions[T]) *Strong[T] {
	return &Strong[T]{b: newBlock(value, &options)}
}

func (s *Strong[T]) block() *block[T] {
	if s == nil || s.b == nil {
		panic(errors.Wrap(memutils.HandleReleasedError, "arc.Strong"))
	}

	return s.b
}

// Clone returns a new Strong handle to the same value
func (s *Strong[T]) Clone() *Strong[T] {
	b := s.block()
	b.incStrong()
	memutils.DebugValidate(b)

	return &Strong[T]{b: b}
}

// Get returns a pointer to the shared value. The value must not be modified through it: other
// goroutines may be reading it. The pointer must not be used after the handle is dropped.
func (s *Strong[T]) Get() *T {
	return &s.block().payload
}

// Value returns a copy of the shared value
func (s *Strong[T]) Value() T {
	return s.block().payload
}

// Downgrade returns a new Weak handle to the same value
func (s *Strong[T]) Downgrade() *Weak[T] {
	b := s.block()
	b.incAllocFromStrong()
	memutils.DebugValidate(b)

	return &Weak[T]{b: b}
}

// GetMut returns a pointer through which the shared value can be modified, if this is the only
// handle, Strong or Weak, to the value. The pointer must not be used after a new handle is
// derived from this one or after this one is dropped.
//
// GetMut must not be called concurrently with other methods of the same handle.
func (s *Strong[T]) GetMut() (*T, bool) {
	b := s.block()
	if !b.isExclusive() {
		return nil, false
	}

	return &b.payload, true
}

// TryUnwrap moves the value out of the block if this is the only Strong handle to it. This
// handle is dropped when it succeeds, and the value's destructor does not run. Weak handles
// to the value may remain, but they can no longer be upgraded.
func (s *Strong[T]) TryUnwrap() (T, bool) {
	b := s.block()
	if !b.takeLastStrong() {
		var zero T
		return zero, false
	}

	s.b = nil
	value := b.take()
	b.releaseAlloc()
	memutils.DebugValidate(b)

	return value, true
}

// Drop releases this handle. If it was the last Strong handle, the value is destroyed, and if
// no Weak handles remain, the block is freed as well. The handle cannot be used afterwards.
func (s *Strong[T]) Drop() {
	b := s.block()
	s.b = nil

	if !b.decStrong() {
		memutils.DebugValidate(b)
		return
	}

	// All Strong handles share one alloc unit, released by whichever handle destroys the value
	b.destroyAndRelease()
	memutils.DebugValidate(b)
}

// Released returns true if this handle has been dropped
func (s *Strong[T]) Released() bool {
	return s == nil || s.b == nil
}

// StrongCount returns the number of Strong handles to the value. Other goroutines may change it
// at any time.
func (s *Strong[T]) StrongCount() int {
	return int(s.block().strongCount())
}

// WeakCount returns the number of Weak handles to the value. Other goroutines may change it at
// any time.
func (s *Strong[T]) WeakCount() int {
	return int(s.block().weakCount())
}

// PtrEq returns true if both handles refer to the same block
func (s *Strong[T]) PtrEq(other *Strong[T]) bool {
	return s.block() == other.block()
}
