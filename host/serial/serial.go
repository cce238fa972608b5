// Package serial opens the host link and moves its bytes to the main loop.
package serial

import (
	"io"
	"time"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - Standard input for piping G-code files
// - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout, 0 blocks
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration of a typical printer board link
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50 * time.Millisecond,
	}
}
