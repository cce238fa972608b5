//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040/RP2350 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// GetHardwareTime reads the low 32 bits of the 1MHz microsecond counter
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// motionTicks converts the microsecond counter into motion ticks of
// tickMicros each. Wraparound is handled by the scheduler's signed
// comparison as long as ticks advance by less than half the range.
func motionTicks(start uint32, tickMicros uint32) uint32 {
	return (GetHardwareTime() - start) / tickMicros
}
