// Package gpio provides GPIO output lines with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Output drives a single binary GPIO line.
type Output interface {
	// Set drives the line to its logical state (true = active).
	// Active-low wiring is handled by the implementation.
	Set(on bool) error

	// Close drives the line inactive and releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering)
const (
	DefaultPinRelay = 17 // Pump relay / valve
	DefaultPinLED   = 27 // Status LED
)
