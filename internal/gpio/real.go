//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives an output line on actual hardware using Linux GPIO character device.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	pin  int
}

// NewRealOutput requests pin as an output, driven inactive at request time so the
// line never floats or glitches active before the first Set.
func NewRealOutput(pin int, activeLow bool) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}

	return &RealOutput{
		chip: chip,
		line: line,
		pin:  pin,
	}, nil
}

// Set drives the logical line state. With active-low wiring gpiocdev
// inverts the physical level for us.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.pin, err)
	}
	return nil
}

// Close drives the line inactive before releasing it, so a relay is never
// left energised by a process exit.
func (o *RealOutput) Close() error {
	var errs []error

	if o.line != nil {
		if err := o.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive pin %d inactive: %w", o.pin, err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", o.pin, err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
