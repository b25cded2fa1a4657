// Package pump delivers doses of water through a relay-driven pump or valve
// and drives the status LED while it does.
package pump

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/plant-waterer/internal/gpio"
)

// DefaultBlink is the LED half-period while watering (2 Hz).
const DefaultBlink = 250 * time.Millisecond

// closeAttempts bounds retries when driving the relay closed fails.
const closeAttempts = 3

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config holds pump timing.
type Config struct {
	Dose  time.Duration // how long the relay stays open per dose
	Blink time.Duration // LED half-period while open; 0 means DefaultBlink
	Sleep SleepFunc     // nil means Sleep

	// OnRelay, if set, is called after every successful relay transition.
	OnRelay func(open bool)
}

// Pump is the watering actuator. led may be nil on headless builds.
type Pump struct {
	relay  gpio.Output
	led    gpio.Output
	cfg    Config
	closed bool
}

// New creates a Pump. The relay is assumed closed already; gpio outputs are
// requested inactive.
func New(relay, led gpio.Output, cfg Config) *Pump {
	if cfg.Blink <= 0 {
		cfg.Blink = DefaultBlink
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	return &Pump{relay: relay, led: led, cfg: cfg}
}

// DeliverDose holds the relay open for Dose*doses. The relay is driven closed
// on every return path, including cancellation. delivered reports whether
// the relay opened at all; err may be set alongside delivered=true when the
// hold was cut short or the LED misbehaved.
func (p *Pump) DeliverDose(ctx context.Context, doses int) (delivered bool, err error) {
	if doses <= 0 {
		return false, nil
	}

	if err := p.relay.Set(true); err != nil {
		// The line may have latched despite the error.
		if cerr := p.closeRelay(); cerr != nil {
			return false, errors.Join(fmt.Errorf("open relay: %w", err), cerr)
		}
		return false, fmt.Errorf("open relay: %w", err)
	}
	p.notify(true)

	defer func() {
		if cerr := p.closeRelay(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		// Leave the LED lit: the last reading was dry.
		if p.led != nil {
			if lerr := p.led.Set(true); lerr != nil {
				err = errors.Join(err, fmt.Errorf("set led: %w", lerr))
			}
		}
	}()

	return true, p.hold(ctx, p.cfg.Dose*time.Duration(doses))
}

// hold sleeps for d, toggling the LED every Blink.
func (p *Pump) hold(ctx context.Context, d time.Duration) error {
	if p.led == nil {
		return p.cfg.Sleep(ctx, d)
	}

	var ledErr error
	on := true
	for remaining := d; remaining > 0; {
		step := min(p.cfg.Blink, remaining)
		if err := p.led.Set(on); err != nil && ledErr == nil {
			ledErr = fmt.Errorf("blink led: %w", err)
		}
		if err := p.cfg.Sleep(ctx, step); err != nil {
			return errors.Join(fmt.Errorf("watering interrupted: %w", err), ledErr)
		}
		on = !on
		remaining -= step
	}
	return ledErr
}

func (p *Pump) closeRelay() error {
	var err error
	for i := 0; i < closeAttempts; i++ {
		if err = p.relay.Set(false); err == nil {
			p.notify(false)
			return nil
		}
	}
	return fmt.Errorf("close relay: %w", err)
}

func (p *Pump) notify(open bool) {
	if p.cfg.OnRelay != nil {
		p.cfg.OnRelay(open)
	}
}

// ClearStatus turns the LED off after a reading that needed no water.
func (p *Pump) ClearStatus() error {
	if p.led == nil {
		return nil
	}
	if err := p.led.Set(false); err != nil {
		return fmt.Errorf("clear led: %w", err)
	}
	return nil
}

// Blink flashes the LED n times at the watering rate. Used as a power-on signal.
func (p *Pump) Blink(ctx context.Context, n int) error {
	if p.led == nil {
		return nil
	}
	for i := 0; i < n; i++ {
		for _, on := range []bool{true, false} {
			if err := p.led.Set(on); err != nil {
				return fmt.Errorf("blink led: %w", err)
			}
			if err := p.cfg.Sleep(ctx, p.cfg.Blink); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close drives the relay closed and releases both lines. Calling it again is a no-op.
func (p *Pump) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.closeRelay(); err != nil {
		errs = append(errs, err)
	}
	if err := p.relay.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release relay: %w", err))
	}
	if p.led != nil {
		if err := p.led.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release led: %w", err))
		}
	}
	return errors.Join(errs...)
}
