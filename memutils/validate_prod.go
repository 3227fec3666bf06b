//go:build !debug_arc

package memutils

// DebugEnabled is true when the debug_arc build tag is present
const DebugEnabled bool = false

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_arc build tag is present
func DebugValidate(validatable Validatable) {
}
