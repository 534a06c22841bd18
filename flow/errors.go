package flow

import "fmt"

// newTypeMismatchError reports an input that did not satisfy the type a
// stage expected. Kept as a constructor so every mismatch in the package
// renders identically.
func newTypeMismatchError(want, got any) error {
	return fmt.Errorf("flow: expected input of type %T, got %T (%v)", want, got, got)
}
