//go:build !tinygo

package core

// critical runs fn as one step with respect to interrupt context. Off
// target there is no interrupt to mask; shared state uses atomics instead.
func critical(fn func()) {
	fn()
}
