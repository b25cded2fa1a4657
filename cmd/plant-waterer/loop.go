package main

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/plant-waterer/internal/adc"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/metrics"
	"github.com/sweeney/plant-waterer/internal/mqtt"
	"github.com/sweeney/plant-waterer/internal/pump"
	"github.com/sweeney/plant-waterer/internal/status"
)

// waterer is the part of the pump the loop drives directly; dosing goes
// through the policy.
type waterer interface {
	ClearStatus() error
	Close() error
}

// historySink records readings and events for later analysis.
type historySink interface {
	WriteReading(value uint16, dry bool, at time.Time)
	WriteEvent(e logic.Event)
}

// loop holds everything the control loop touches. tracker, metrics, history
// and mqttStatus may be nil.
type loop struct {
	reader     adc.Reader
	pump       waterer
	policy     *logic.Policy
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	history    historySink
	debug      *log.Logger

	interval  time.Duration
	warmup    time.Duration
	sample    time.Duration
	heartbeat time.Duration
	// diagnostics splits waits into sample-sized steps with a logged
	// reading before each. It never changes a decision.
	diagnostics bool

	now   func() time.Time
	sleep pump.SleepFunc

	nextHeartbeat time.Time
}

// runLoop warms the sensor up, then decides once per interval until ctx is
// cancelled. It returns nil on a signalled shutdown.
func runLoop(ctx context.Context, l *loop) error {
	if l.heartbeat > 0 {
		l.nextHeartbeat = l.now().Add(l.heartbeat)
	}

	l.setPhase(status.PhaseWarming)
	log.Printf("warming up for %v", l.warmup)
	if err := l.wait(ctx, l.warmup); err != nil {
		return l.shutdown(ctx)
	}

	l.setPhase(status.PhaseRunning)
	for {
		if ctx.Err() != nil {
			return l.shutdown(ctx)
		}
		l.decide(ctx)

		if err := l.wait(ctx, l.interval); err != nil {
			return l.shutdown(ctx)
		}
		l.emit(l.policy.AdvanceTick(ctx, l.now()))
		checkTime, checkCount := l.policy.State()
		l.debug.Printf("window: check_time=%d check_count=%d", checkTime, checkCount)
	}
}

// decide reads the sensor once and waters if the soil is dry. A failed read
// waters nothing; the window minimum still covers a dead sensor.
func (l *loop) decide(ctx context.Context) {
	t := l.now()
	value, err := l.reader.Read()
	if err != nil {
		log.Printf("sensor: read failed: %v", err)
		if l.tracker != nil {
			l.tracker.SetReadError(err, t)
		}
		if l.metrics != nil {
			l.metrics.ReadError()
		}
		return
	}

	dry := l.policy.Dry(value)
	l.debug.Printf("reading: dryness=%d dry=%v", value, dry)
	l.observe(value, dry, t)
	if l.history != nil {
		l.history.WriteReading(value, dry, t)
	}

	if dry {
		l.emit(l.policy.RequestWatering(ctx, t, 1))
		return
	}
	if err := l.pump.ClearStatus(); err != nil {
		log.Printf("led: %v", err)
	}
}

// wait sleeps for d. In diagnostic mode it takes d/sample steps, each
// preceded by a logged reading, then sleeps the remainder.
func (l *loop) wait(ctx context.Context, d time.Duration) error {
	if !l.diagnostics || l.sample <= 0 {
		return l.pause(ctx, d)
	}
	steps := int(d / l.sample)
	for i := 0; i < steps; i++ {
		l.diagnosticRead()
		if err := l.pause(ctx, l.sample); err != nil {
			return err
		}
	}
	return l.pause(ctx, d-time.Duration(steps)*l.sample)
}

// pause sleeps for d, stopping early to publish any heartbeat that falls due.
func (l *loop) pause(ctx context.Context, d time.Duration) error {
	for {
		l.checkHeartbeat()
		if d <= 0 {
			return ctx.Err()
		}
		step := d
		if l.heartbeat > 0 {
			if until := l.nextHeartbeat.Sub(l.now()); until > 0 && until < step {
				step = until
			}
		}
		if err := l.sleep(ctx, step); err != nil {
			return err
		}
		d -= step
	}
}

func (l *loop) diagnosticRead() {
	value, err := l.reader.Read()
	if err != nil {
		l.debug.Printf("reading: error: %v", err)
		return
	}
	dry := l.policy.Dry(value)
	l.debug.Printf("reading: dryness=%d dry=%v", value, dry)
	l.observe(value, dry, l.now())
}

func (l *loop) observe(value uint16, dry bool, t time.Time) {
	if l.tracker != nil {
		l.tracker.SetReading(value, dry, t)
	}
	if l.metrics != nil {
		l.metrics.ObserveReading(value)
	}
}

// emit logs each policy event and fans it out to the sinks. Sink failures
// are logged and otherwise ignored.
func (l *loop) emit(events []logic.Event) {
	for _, e := range events {
		switch e.Type {
		case logic.EventSkipped:
			log.Printf("policy: watering skipped, %d of %d doses already given this window", e.CheckCount, l.policy.Config().Max)
		case logic.EventActuatorFault:
			log.Printf("policy: actuator fault: %s", e.Err)
		default:
			log.Printf("policy: %s doses=%d check_time=%d check_count=%d forced=%v", e.Type, e.Doses, e.CheckTime, e.CheckCount, e.Forced)
		}
		if e.Type == logic.EventWatered && e.Err != "" {
			log.Printf("pump: %s", e.Err)
		}

		if l.tracker != nil {
			l.tracker.RecordEvent(e)
		}
		if l.metrics != nil {
			l.metrics.ObserveEvent(e)
		}
		if l.history != nil {
			l.history.WriteEvent(e)
		}
		if err := l.publisher.Publish(e); err != nil {
			log.Printf("mqtt: publish error: %v", err)
		}
	}

	checkTime, checkCount := l.policy.State()
	if l.tracker != nil {
		l.tracker.UpdatePolicy(checkTime, checkCount, l.policy.Counts())
	}
	if l.metrics != nil {
		l.metrics.SetWindow(checkTime, checkCount)
	}
}

func (l *loop) checkHeartbeat() {
	if l.heartbeat <= 0 {
		return
	}
	t := l.now()
	if t.Before(l.nextHeartbeat) {
		return
	}
	l.nextHeartbeat = t.Add(l.heartbeat)

	counts := l.policy.Counts()
	checkTime, checkCount := l.policy.State()
	log.Printf("heartbeat: check_time=%d check_count=%d watered=%d compensated=%d skipped=%d faults=%d",
		checkTime, checkCount, counts.Watered, counts.Compensated, counts.Skipped, counts.Faults)

	hbEvent := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "HEARTBEAT",
	}
	if l.tracker != nil {
		l.refreshConnectivity()
		snap := l.tracker.Snapshot()
		hbEvent.BootID = snap.BootID
		hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
	}
	if err := l.publisher.PublishSystem(hbEvent); err != nil {
		log.Printf("mqtt: heartbeat publish error: %v", err)
	}
}

func (l *loop) refreshConnectivity() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	// Refresh network info for heartbeat
	if net := readNetworkInfo(); net != nil {
		l.tracker.SetNetwork(net)
	}
}

// shutdown closes the water path and announces the stop.
func (l *loop) shutdown(ctx context.Context) error {
	reason := signalName(context.Cause(ctx))
	log.Printf("received %s, shutting down", reason)

	if err := l.pump.Close(); err != nil {
		log.Printf("pump: close: %v", err)
	}

	l.setPhase(status.PhaseStopped)
	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		l.refreshConnectivity()
		snap := l.tracker.Snapshot()
		event.BootID = snap.BootID
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", reason)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("mqtt: failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
	return nil
}

// relayChanged is the pump's OnRelay hook.
func (l *loop) relayChanged(open bool) {
	if open {
		l.debug.Printf("watering: start")
	} else {
		l.debug.Printf("watering: stop")
	}
	if l.tracker != nil {
		l.tracker.SetWatering(open)
	}
	if l.metrics != nil {
		l.metrics.SetWatering(open)
	}
}

func (l *loop) setPhase(p status.Phase) {
	if l.tracker != nil {
		l.tracker.SetPhase(p)
	}
}
