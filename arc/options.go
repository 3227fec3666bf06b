package arc

import (
	"github.com/vkngwrapper/arc/memutils"
	"golang.org/x/exp/slog"
)

// Dropper is implemented by values that hold resources which must be released when the last
// Strong handle to them is dropped
type Dropper interface {
	Drop()
}

// CreateOptions contains optional settings when creating a Strong handle
type CreateOptions[T any] struct {
	// Name identifies the block in logs and tracker statistics
	Name string
	// Destructor is called with the value when the last Strong handle is dropped. If it is nil
	// and the value implements Dropper, its Drop method is called instead.
	Destructor func(value *T)
	// Tracker is an optional tracker that the block's allocation, destruction and release will
	// be reported to, usually a *memutils.Tracker
	Tracker memutils.BlockTracker
	// Logger receives debug output when the value is destroyed and the block is freed, and
	// errors reported by Tracker. If it is nil, nothing is logged.
	Logger *slog.Logger
}
