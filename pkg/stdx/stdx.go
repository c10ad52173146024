// Package stdx holds small generic helpers missing from the standard library.
package stdx

// Must0 panics when err is set. Use it where a failure is a programming
// error, such as registering a tool at init time.
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 returns v, or panics when err is set.
func Must1[T any](v T, err error) T {
	Must0(err)
	return v
}

// Zero returns the zero value of T, for early returns from generic functions.
func Zero[T any]() T {
	var zero T
	return zero
}
