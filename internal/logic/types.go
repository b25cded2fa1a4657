// Package logic contains the pure watering policy: the dryness decision and the
// rolling daily window that caps and guarantees doses.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"context"
	"errors"
	"time"
)

// EventType identifies a policy outcome.
type EventType string

const (
	// EventWatered means one request delivered its doses.
	EventWatered EventType = "WATERED"
	// EventSkipped means the window maximum was already reached.
	EventSkipped EventType = "SKIPPED"
	// EventActuatorFault means the actuator could not open the water path.
	EventActuatorFault EventType = "ACTUATOR_FAULT"
	// EventCompensating precedes the forced request issued at window end.
	EventCompensating EventType = "COMPENSATING"
	// EventWindowEnd reports the delivered count of a window that just closed.
	EventWindowEnd EventType = "WINDOW_END"
)

// Event is a policy outcome to be logged and published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	// Doses requested (WATERED, SKIPPED, ACTUATOR_FAULT, COMPENSATING)
	// or delivered during the ended window (WINDOW_END).
	Doses      int
	CheckTime  int
	CheckCount int
	Forced     bool   // request issued by the window-end minimum
	Err        string // ACTUATOR_FAULT only
}

// Actuator delivers water. It is the only side effect the policy performs.
type Actuator interface {
	// DeliverDose opens the water path for doses units and closes it before
	// returning. delivered is true iff water flowed; err may be non-nil even
	// when delivered (e.g. the status indicator failed).
	DeliverDose(ctx context.Context, doses int) (delivered bool, err error)
}

// Config holds the static policy parameters.
type Config struct {
	// DryThreshold is the reading above which soil is too dry (exclusive).
	DryThreshold uint16
	// Period is the window length in loop iterations.
	Period int
	// Min is the number of requests guaranteed per window.
	Min int
	// Max is the cap on delivered requests per window.
	Max int
}

// DefaultConfig matches the reference hardware: 12-bit sensor, hourly loop,
// at least one and at most five waterings a day.
var DefaultConfig = Config{
	DryThreshold: 2400,
	Period:       24,
	Min:          1,
	Max:          5,
}

// Validate checks the configuration invariants the policy relies on.
func (c Config) Validate() error {
	switch {
	case c.Period < 1:
		return errors.New("period must be at least 1")
	case c.Max < 1:
		return errors.New("max must be at least 1")
	case c.Min < 0:
		return errors.New("min must not be negative")
	case c.Min > c.Max:
		return errors.New("min must not exceed max")
	}
	return nil
}

// Counts tracks policy outcomes since startup.
type Counts struct {
	Watered     int // organic requests delivered
	Compensated int // forced requests delivered
	Skipped     int
	Faults      int
	Windows     int
}
