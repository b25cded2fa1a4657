package logic

import (
	"context"
	"time"
)

// Policy is the rolling-window safety net. It owns the window position and the
// number of doses delivered in the current window; nothing else mutates them.
// Not safe for concurrent use: the control loop is its only caller.
type Policy struct {
	cfg        Config
	actuator   Actuator
	checkTime  int
	checkCount int
	counts     Counts
}

// NewPolicy creates a policy with both counters at zero.
// cfg must already satisfy Validate.
func NewPolicy(cfg Config, actuator Actuator) *Policy {
	return &Policy{
		cfg:      cfg,
		actuator: actuator,
	}
}

// Dry reports whether a reading calls for water. The threshold itself is moist enough.
func (p *Policy) Dry(reading uint16) bool {
	return reading > p.cfg.DryThreshold
}

// RequestWatering asks for doses units of water. Once the window maximum is
// reached the request is refused with a SKIPPED event; that is expected
// behaviour during a dry spell, not an error.
func (p *Policy) RequestWatering(ctx context.Context, t time.Time, doses int) []Event {
	return p.request(ctx, t, doses, false)
}

func (p *Policy) request(ctx context.Context, t time.Time, doses int, forced bool) []Event {
	if doses <= 0 {
		return nil
	}

	if p.checkCount >= p.cfg.Max {
		p.counts.Skipped++
		return []Event{p.event(t, EventSkipped, doses, forced, "")}
	}

	// Never let a single request overshoot the cap.
	if room := p.cfg.Max - p.checkCount; doses > room {
		doses = room
	}

	delivered, err := p.actuator.DeliverDose(ctx, doses)
	if !delivered {
		p.counts.Faults++
		msg := "water path did not open"
		if err != nil {
			msg = err.Error()
		}
		return []Event{p.event(t, EventActuatorFault, doses, forced, msg)}
	}

	p.checkCount += doses
	if forced {
		p.counts.Compensated++
	} else {
		p.counts.Watered++
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return []Event{p.event(t, EventWatered, doses, forced, msg)}
}

// AdvanceTick moves the window forward by one loop iteration. When the window
// wraps, any shortfall below the minimum is force-requested through the normal
// capped path, then the delivered count is reset to zero unconditionally.
func (p *Policy) AdvanceTick(ctx context.Context, t time.Time) []Event {
	p.checkTime = (p.checkTime + 1) % p.cfg.Period
	if p.checkTime != 0 {
		return nil
	}

	var events []Event
	if short := p.cfg.Min - p.checkCount; short > 0 {
		events = append(events, p.event(t, EventCompensating, short, true, ""))
		events = append(events, p.request(ctx, t, short, true)...)
	}

	delivered := p.checkCount
	p.checkCount = 0
	p.counts.Windows++

	end := p.event(t, EventWindowEnd, delivered, false, "")
	return append(events, end)
}

// State returns the window position and the doses delivered in the current window.
func (p *Policy) State() (checkTime, checkCount int) {
	return p.checkTime, p.checkCount
}

// Counts returns a copy of the lifetime outcome counts.
func (p *Policy) Counts() Counts {
	return p.counts
}

// Config returns the policy parameters.
func (p *Policy) Config() Config {
	return p.cfg
}

func (p *Policy) event(t time.Time, typ EventType, doses int, forced bool, errMsg string) Event {
	return Event{
		Timestamp:  t,
		Type:       typ,
		Doses:      doses,
		CheckTime:  p.checkTime,
		CheckCount: p.checkCount,
		Forced:     forced,
		Err:        errMsg,
	}
}
