// Package adc reads the soil-moisture probe through an analog-to-digital converter.
// Readings are normalised to a 12-bit dryness scale: 0 is saturated soil,
// MaxReading is bone dry.
package adc

// MaxReading is the top of the normalised dryness scale.
const MaxReading = 4095

// Reader returns raw dryness readings.
type Reader interface {
	// Read returns the current dryness in the range 0..MaxReading.
	Read() (uint16, error)

	// Close releases the converter.
	Close() error
}

// Normalize converts a signed 16-bit single-ended conversion into the
// 12-bit dryness scale. Negative codes (noise around ground) clamp to 0.
// With invert set, a high voltage means wet soil and the scale is flipped.
func Normalize(raw int16, invert bool) uint16 {
	if raw < 0 {
		raw = 0
	}
	v := uint16(raw) >> 3
	if v > MaxReading {
		v = MaxReading
	}
	if invert {
		return MaxReading - v
	}
	return v
}
