// Package stdx holds small generic helpers.
package stdx

// Must returns v, or panics when err is not nil. It backs the Must* constructors
// used for literals known at compile time.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
