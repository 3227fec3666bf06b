// Package arc provides Strong, an atomically reference-counted shared pointer, and Weak, a
// non-owning observer of the same value.
//
// Every Strong and Weak handle points at a shared block that holds the value and two counters:
// the number of live Strong handles, and the number of live Weak handles plus one held by all
// of the Strong handles together. When the last Strong handle is dropped the value is destroyed:
// its destructor runs (CreateOptions.Destructor, or the value's own Drop method if it implements
// Dropper) and the value is cleared from the block. When the last handle of any kind is dropped
// the block is freed and reported to its tracker, if it has one. Both steps happen exactly once,
// on whichever goroutine drops the final handle.
//
// Handle operations never take a lock. Clone, Get, Drop and Weak.Clone complete in a bounded
// number of steps, and Strong.GetMut makes a single attempt. Downgrade and Weak.Upgrade retry
// compare-and-swap loops only while another goroutine is in the middle of a short operation on
// the same counter.
//
// Handles must be dropped explicitly, exactly once. They are not copied by value: a copy would
// share a handle's single unit of ownership. A handle must not be dropped while another
// goroutine is still using that same handle.
//
// Strong handles that refer to each other in a cycle keep each other alive forever. Use Weak
// handles for back-references.
//
//	shared := arc.New(config)
//	observer := shared.Downgrade()
//	go func(local *arc.Strong[Config]) {
//	  defer local.Drop()
//	  use(local.Get())
//	}(shared.Clone())
//
//	if current, ok := observer.Upgrade(); ok {
//	  use(current.Get())
//	  current.Drop()
//	}
package arc
