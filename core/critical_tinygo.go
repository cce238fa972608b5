//go:build tinygo

package core

import "runtime/interrupt"

// critical runs fn with interrupts disabled.
func critical(fn func()) {
	state := interrupt.Disable()
	fn()
	interrupt.Restore(state)
}
