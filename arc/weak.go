package arc

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arc/memutils"
)

// Weak is a non-owning handle to a shared value. It keeps the block alive but not the value,
// and can be upgraded to a Strong handle as long as the value has not been destroyed.
type Weak[T any] struct {
	noCopy noCopy
	b      *block[T]
}

func (w *Weak[T]) block() *block[T] {
	if w == nil || w.b == nil {
		panic(errors.Wrap(memutils.HandleReleasedError, "arc.Weak"))
	}

	return w.b
}

// Clone returns a new Weak handle to the same value
func (w *Weak[T]) Clone() *Weak[T] {
	b := w.block()
	b.incAlloc()
	memutils.DebugValidate(b)

	return &Weak[T]{b: b}
}

// Upgrade returns a new Strong handle to the value, or false if every Strong handle has
// already been dropped and the value destroyed
func (w *Weak[T]) Upgrade() (*Strong[T], bool) {
	b := w.block()
	if !b.tryIncStrong() {
		return nil, false
	}
	memutils.DebugValidate(b)

	return &Strong[T]{b: b}, true
}

// Drop releases this handle, and frees the block if it was the last handle of any kind. The
// handle cannot be used afterwards.
func (w *Weak[T]) Drop() {
	b := w.block()
	w.b = nil

	b.releaseAlloc()
	memutils.DebugValidate(b)
}

// Released returns true if this handle has been dropped
func (w *Weak[T]) Released() bool {
	return w == nil || w.b == nil
}

// StrongCount returns the number of Strong handles to the value. Other goroutines may change it
// at any time.
func (w *Weak[T]) StrongCount() int {
	return int(w.block().strongCount())
}

// PtrEq returns true if both handles refer to the same block
func (w *Weak[T]) PtrEq(other *Weak[T]) bool {
	return w.block() == other.block()
}
