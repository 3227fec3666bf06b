package memutils

import "github.com/pkg/errors"

var (
	// CounterOverflowError is reported through the abort hook when a reference counter passes the
	// overflow threshold
	CounterOverflowError error = errors.New("reference counter overflow")
	// HandleReleasedError is the panic value when a handle is used or dropped after it has already
	// been dropped
	HandleReleasedError error = errors.New("handle has already been dropped")
	// DoubleDestroyError is returned from Tracker.Destroy when a block's payload is destroyed more than once
	DoubleDestroyError error = errors.New("block payload was destroyed more than once")
	// DoubleFreeError is returned from Tracker.Free when a block is freed more than once
	DoubleFreeError error = errors.New("block was freed more than once")
	// UseAfterFreeError is returned from Tracker.Destroy when the block has already been freed
	UseAfterFreeError error = errors.New("block was used after it was freed")
	// UnknownBlockError is returned from Tracker methods when a block id was never issued by the tracker
	UnknownBlockError error = errors.New("block is not known to this tracker")
	// LeakedBlocksError is returned from Tracker.CheckLeaks when blocks remain unfreed
	LeakedBlocksError error = errors.New("some blocks were not freed")
)
