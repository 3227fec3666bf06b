package arc

import (
	"context"
	"io"
	"math"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arc/memutils"
	"go.uber.org/atomic"
	"golang.org/x/exp/slog"
)

const (
	// maxRefCount is the highest count an increment may start from. It is far below the
	// representable maximum so that even many goroutines racing past it cannot wrap the counter.
	maxRefCount uint64 = math.MaxUint64 / 2
	// maxValidCount is the highest count an increment that did not abort can leave behind
	maxValidCount uint64 = maxRefCount + 1
	// exclusiveSentinel is stored in alloc while GetMut checks whether its handle is the only one
	exclusiveSentinel uint64 = math.MaxUint64
)

var (
	discardLogger = slog.New(slog.NewTextHandler(io.Discard))
	// untrackedIDs issues ids to blocks that have no tracker
	untrackedIDs atomic.Uint64
)

// block is the allocation shared by every handle to a value.
//
// The Go memory model makes every sync/atomic operation sequentially consistent, which is
// stronger than each release decrement, acquire increment and acquire fence the protocol
// below requires. The comments mark where the protocol depends on that ordering.
type block[T any] struct {
	// strong is the number of live Strong handles
	strong atomic.Uint64
	// alloc is the number of live Weak handles, plus one shared by all Strong handles while any
	// of them are alive
	alloc atomic.Uint64

	payload T

	id         uint64
	name       string
	destructor func(value *T)
	tracker    memutils.BlockTracker
	logger     *slog.Logger

	destroyed atomic.Bool
	freed     atomic.Bool
}

func newBlock[T any](value T, options *CreateOptions[T]) *block[T] {
	b := &block[T]{
		payload:    value,
		name:       options.Name,
		destructor: options.Destructor,
		tracker:    options.Tracker,
		logger:     options.Logger,
	}
	b.strong.Store(1)
	b.alloc.Store(1)

	if b.logger == nil {
		b.logger = discardLogger
	}

	if b.tracker != nil {
		b.id = b.tracker.Allocate(b.name, memutils.SizeOf[block[T]]())
	} else {
		b.id = untrackedIDs.Inc()
	}

	return b
}

func (b *block[T]) overflow(counter string, previous uint64) {
	abort(errors.Wrapf(memutils.CounterOverflowError, "%s count of block %d was %d, above the limit of %d",
		counter, b.id, previous, maxRefCount))
}

// incStrong adds a Strong handle. The caller already holds one, so the block cannot be
// destroyed underneath it and no ordering is needed.
func (b *block[T]) incStrong() {
	if previous := b.strong.Inc() - 1; previous > maxRefCount {
		b.overflow("strong", previous)
	}
}

// tryIncStrong adds a Strong handle unless the strong count has already reached zero.
func (b *block[T]) tryIncStrong() bool {
	n := b.strong.Load()
	for {
		if n == 0 {
			return false
		}
		if n > maxRefCount {
			b.overflow("strong", n)
		}

		if b.strong.CompareAndSwap(n, n+1) {
			return true
		}
		n = b.strong.Load()
	}
}

// decStrong removes a Strong handle and returns true if it was the last one.
func (b *block[T]) decStrong() bool {
	// Release: everything done through the departing handle happens before the destruction
	// performed by whichever goroutine observes zero.
	return b.strong.Dec() == 0
}

// takeLastStrong moves the strong count from exactly one to zero.
func (b *block[T]) takeLastStrong() bool {
	// Acquire on success: pairs with the release decrements of the Strong handles that
	// preceded this one.
	return b.strong.CompareAndSwap(1, 0)
}

// incAlloc adds a Weak handle on behalf of a caller that already holds one. While a Weak handle
// exists alloc is at least two, so the exclusive sentinel cannot be present.
func (b *block[T]) incAlloc() {
	if previous := b.alloc.Inc() - 1; previous > maxRefCount {
		b.overflow("alloc", previous)
	}
}

// incAllocFromStrong adds a Weak handle on behalf of a Strong handle. All Strong handles share a
// single alloc unit, so alloc may be 1 and another Strong handle may be in the middle of GetMut;
// while it holds the sentinel, alloc is not a handle count and the increment has to wait.
func (b *block[T]) incAllocFromStrong() {
	n := b.alloc.Load()
	for {
		if n == exclusiveSentinel {
			runtime.Gosched()
			n = b.alloc.Load()
			continue
		}
		if n > maxRefCount {
			b.overflow("alloc", n)
		}

		// Acquire: pairs with the release store that ends an exclusivity check.
		if b.alloc.CompareAndSwap(n, n+1) {
			return
		}
		n = b.alloc.Load()
	}
}

// decAlloc removes a handle unit and returns true if it was the last one.
func (b *block[T]) decAlloc() bool {
	// Release: pairs with the acquire fence taken before the block is freed.
	return b.alloc.Dec() == 0
}

// isExclusive returns true if the calling Strong handle is the only handle of any kind.
func (b *block[T]) isExclusive() bool {
	// Acquire: pairs with the release decrement in a Weak drop, so a Strong handle upgraded
	// from that Weak is visible in the strong load below.
	if !b.alloc.CompareAndSwap(1, exclusiveSentinel) {
		return false
	}

	unique := b.strong.Load() == 1

	// Release: pairs with the acquire increment in incAllocFromStrong, so a Downgrade
	// that completes after this store cannot have changed the result above.
	b.alloc.Store(1)

	// Acquire fence: pairs with the release decrement of any Strong handle that was dropped
	// just before the check, so nothing else is still touching the payload.
	return unique
}

func (b *block[T]) strongCount() uint64 {
	return b.strong.Load()
}

// weakCount is only meaningful to a caller holding a Strong handle.
func (b *block[T]) weakCount() uint64 {
	alloc := b.alloc.Load()
	if alloc == exclusiveSentinel {
		// An exclusivity check only succeeds when there are no Weak handles
		return 0
	}
	return alloc - 1
}

// destroy runs when the strong count reaches zero.
func (b *block[T]) destroy() {
	// Acquire fence: the decrement that reached zero synchronized with every earlier release
	// decrement, so all use of the payload has finished.
	if !b.destroyed.CompareAndSwap(false, true) {
		panic(errors.AssertionFailedf("payload of block %d destroyed twice", b.id))
	}

	// The payload is cleared and reported even if the destructor panics
	defer b.clearPayload()

	if b.destructor != nil {
		b.destructor(&b.payload)
	} else if dropper, isDropper := any(&b.payload).(Dropper); isDropper {
		dropper.Drop()
	} else if dropper, isDropper := any(b.payload).(Dropper); isDropper {
		dropper.Drop()
	}
}

// destroyAndRelease destroys the payload and gives up the handle unit shared by all Strong
// handles. The block is released even if the destructor panics.
func (b *block[T]) destroyAndRelease() {
	defer b.releaseAlloc()
	b.destroy()
}

// take moves the payload out of the block once the strong count has reached zero.
func (b *block[T]) take() T {
	if !b.destroyed.CompareAndSwap(false, true) {
		panic(errors.AssertionFailedf("payload of block %d taken after it was destroyed", b.id))
	}

	value := b.payload
	b.clearPayload()
	return value
}

func (b *block[T]) clearPayload() {
	var zero T
	b.payload = zero
	b.destructor = nil

	if b.tracker != nil {
		if err := b.tracker.Destroy(b.id); err != nil {
			b.logger.LogAttrs(context.Background(), slog.LevelError, "tracker rejected payload destruction",
				slog.Uint64("block", b.id),
				slog.Any("error", err))
		}
	}

	b.logger.Debug("block payload destroyed", slog.Uint64("block", b.id), slog.String("name", b.name))
}

// releaseAlloc gives up one handle unit and frees the block if it was the last.
func (b *block[T]) releaseAlloc() {
	if !b.decAlloc() {
		return
	}

	// Acquire fence: pairs with the release decrements of every other handle unit.
	if !b.freed.CompareAndSwap(false, true) {
		panic(errors.AssertionFailedf("block %d freed twice", b.id))
	}

	if b.tracker != nil {
		if err := b.tracker.Free(b.id); err != nil {
			b.logger.LogAttrs(context.Background(), slog.LevelError, "tracker rejected block release",
				slog.Uint64("block", b.id),
				slog.Any("error", err))
		}
	}

	b.logger.Debug("block freed", slog.Uint64("block", b.id), slog.String("name", b.name))
}

// Validate checks the invariants that hold at any instant, even while other goroutines are
// operating on the block.
func (b *block[T]) Validate() error {
	// The terminal flags are loaded first: once set they are never cleared, and the counters
	// they imply are already final by then
	freed := b.freed.Load()
	destroyed := b.destroyed.Load()
	strong := b.strong.Load()
	alloc := b.alloc.Load()

	if strong > maxValidCount {
		return errors.Errorf("block %d has strong count %d above the limit of %d", b.id, strong, maxValidCount)
	}
	if alloc > maxValidCount && alloc != exclusiveSentinel {
		return errors.Errorf("block %d has alloc count %d above the limit of %d", b.id, alloc, maxValidCount)
	}

	if destroyed && strong != 0 {
		return errors.Errorf("block %d was destroyed but has strong count %d", b.id, strong)
	}
	if freed && alloc != 0 {
		return errors.Errorf("block %d was freed but has alloc count %d", b.id, alloc)
	}
	if freed && !destroyed {
		return errors.Errorf("block %d was freed before its payload was destroyed", b.id)
	}

	return nil
}
