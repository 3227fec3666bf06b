package memutils

//go:generate mockgen -source block_tracker.go -destination ./mocks/block_tracker.go

// BlockTracker receives the lifecycle events of shared-ownership blocks. Tracker is the
// implementation used outside of tests.
type BlockTracker interface {
	// Allocate registers a new block and returns the id it will be reported under
	Allocate(name string, size int) uint64
	// Destroy records that the payload of the block has been destroyed or moved out
	Destroy(id uint64) error
	// Free records that the block has been released
	Free(id uint64) error
}

var _ BlockTracker = &Tracker{}
