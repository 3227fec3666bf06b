package memutils

// Validatable is implemented by blocks and trackers that can check their own invariants.
// DebugValidate accepts anything that implements it.
type Validatable interface {
	Validate() error
}
