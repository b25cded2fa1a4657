package internal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/plant-waterer/internal/adc"
	"github.com/sweeney/plant-waterer/internal/gpio"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/metrics"
	"github.com/sweeney/plant-waterer/internal/mqtt"
	"github.com/sweeney/plant-waterer/internal/pump"
	"github.com/sweeney/plant-waterer/internal/status"
)

// noSleep completes every pump hold instantly.
func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type rig struct {
	reader    *adc.FakeReader
	relay     *gpio.FakeOutput
	led       *gpio.FakeOutput
	pump      *pump.Pump
	policy    *logic.Policy
	publisher *mqtt.FakePublisher
	tracker   *status.Tracker
	metrics   *metrics.Metrics
}

func newRig(cfg logic.Config, samples ...uint16) *rig {
	r := &rig{
		reader:    adc.NewFakeReader(samples...),
		relay:     gpio.NewFakeOutput(),
		led:       gpio.NewFakeOutput(),
		publisher: mqtt.NewFakePublisher(),
		tracker: status.NewTracker("boot-1", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), status.Config{
			Threshold: cfg.DryThreshold,
			Period:    cfg.Period,
			Min:       cfg.Min,
			Max:       cfg.Max,
		}),
		metrics: metrics.New(),
	}
	r.pump = pump.New(r.relay, r.led, pump.Config{
		Dose:  5 * time.Second,
		Sleep: noSleep,
		OnRelay: func(open bool) {
			r.tracker.SetWatering(open)
			r.metrics.SetWatering(open)
		},
	})
	r.policy = logic.NewPolicy(cfg, r.pump)
	return r
}

// cycle runs one decision and tick the way the daemon does, minus the wait.
func (r *rig) cycle(t *testing.T, at time.Time) {
	t.Helper()
	ctx := context.Background()

	var events []logic.Event
	value, err := r.reader.Read()
	if err != nil {
		r.tracker.SetReadError(err, at)
		r.metrics.ReadError()
	} else {
		dry := r.policy.Dry(value)
		r.tracker.SetReading(value, dry, at)
		r.metrics.ObserveReading(value)
		if dry {
			events = append(events, r.policy.RequestWatering(ctx, at, 1)...)
		} else if err := r.pump.ClearStatus(); err != nil {
			t.Fatalf("clear status: %v", err)
		}
	}
	events = append(events, r.policy.AdvanceTick(ctx, at.Add(time.Hour))...)

	for _, e := range events {
		r.tracker.RecordEvent(e)
		r.metrics.ObserveEvent(e)
		// Publish errors are logged by the daemon, never fatal.
		_ = r.publisher.Publish(e)
	}
	checkTime, checkCount := r.policy.State()
	r.tracker.UpdatePolicy(checkTime, checkCount, r.policy.Counts())
	r.metrics.SetWindow(checkTime, checkCount)
}

func (r *rig) day(t *testing.T) {
	start := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < r.policy.Config().Period; i++ {
		r.cycle(t, start.Add(time.Duration(i)*time.Hour))
	}
}

func TestIntegrationDryDay(t *testing.T) {
	r := newRig(logic.DefaultConfig, 3500)
	r.day(t)

	if got := r.relay.Toggles(); got != 10 {
		t.Errorf("relay toggles: got %d, want 10", got)
	}
	if r.relay.On {
		t.Error("relay left open")
	}

	snap := r.tracker.Snapshot()
	if snap.Counts.Watered != 5 || snap.Counts.Skipped != 19 || snap.Counts.Windows != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}
	if snap.CheckCount != 0 || snap.CheckTime != 0 {
		t.Errorf("window: got (%d, %d), want (0, 0)", snap.CheckTime, snap.CheckCount)
	}
	if snap.Watering {
		t.Error("tracker still reports watering")
	}
	if !r.led.On {
		t.Error("LED should stay lit after a dry reading")
	}
}

func TestIntegrationMoistDayForcesMinimum(t *testing.T) {
	r := newRig(logic.DefaultConfig, 900)
	r.day(t)

	counts := r.tracker.Snapshot().Counts
	if counts.Compensated != 1 || counts.Watered != 0 {
		t.Errorf("counts: got %+v, want one compensated dose only", counts)
	}

	var types []logic.EventType
	for _, e := range r.publisher.Events {
		types = append(types, e.Type)
	}
	want := []logic.EventType{logic.EventCompensating, logic.EventWatered, logic.EventWindowEnd}
	if len(types) != len(want) {
		t.Fatalf("events: got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, types[i], want[i])
		}
	}
	if !r.publisher.Events[1].Forced {
		t.Error("window-end dose should be marked forced")
	}
}

func TestIntegrationMixedDayMeetsMinimumOrganically(t *testing.T) {
	samples := make([]uint16, 24)
	for i := range samples {
		samples[i] = 1000
	}
	samples[10] = 2401
	r := newRig(logic.DefaultConfig, samples...)
	r.day(t)

	if got := r.relay.Toggles(); got != 2 {
		t.Errorf("relay toggles: got %d, want 2", got)
	}
	for _, e := range r.publisher.Events {
		if e.Type == logic.EventCompensating {
			t.Error("unexpected COMPENSATING with an organic dose")
		}
	}
}

func TestIntegrationRelayFaultIsNotCounted(t *testing.T) {
	r := newRig(logic.DefaultConfig, 4000)
	r.relay.SetError = errors.New("line busy")
	r.cycle(t, time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))

	snap := r.tracker.Snapshot()
	if snap.CheckCount != 0 {
		t.Errorf("check_count: got %d, want 0", snap.CheckCount)
	}
	if snap.Counts.Faults != 1 {
		t.Errorf("faults: got %d, want 1", snap.Counts.Faults)
	}
	if snap.LastEvent == nil || snap.LastEvent.Type != logic.EventActuatorFault {
		t.Errorf("last event: got %+v, want ACTUATOR_FAULT", snap.LastEvent)
	}
}

func TestIntegrationReadErrorDoesNotWater(t *testing.T) {
	r := newRig(logic.DefaultConfig, 4000)
	r.reader.ReadError = errors.New("i2c: no ack")
	r.cycle(t, time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))

	if len(r.relay.History) != 0 {
		t.Errorf("relay driven after read error: %v", r.relay.History)
	}
	snap := r.tracker.Snapshot()
	if snap.Reading == nil || snap.Reading.Err != "i2c: no ack" {
		t.Errorf("reading: got %+v", snap.Reading)
	}
}

func TestIntegrationPublishFailureDoesNotStopWatering(t *testing.T) {
	r := newRig(logic.DefaultConfig, 4000)
	r.publisher.PublishError = errors.New("broker down")
	r.cycle(t, time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))

	if r.relay.Toggles() != 2 {
		t.Errorf("relay toggles: got %d, want 2", r.relay.Toggles())
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	r := newRig(logic.DefaultConfig, 4000)
	r.cycle(t, time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))

	if len(r.publisher.Payloads) != 1 {
		t.Fatalf("payloads: got %d, want 1", len(r.publisher.Payloads))
	}
	want := `{"watering":{"timestamp":"2026-06-01T06:00:00Z","event":"WATERED","doses":1,"check_time":0,"check_count":1}}`
	if got := string(r.publisher.Payloads[0]); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestIntegrationStatusEventPayload(t *testing.T) {
	r := newRig(logic.DefaultConfig, 4000)
	r.tracker.SetPhase(status.PhaseRunning)
	r.cycle(t, time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))

	snap := r.tracker.Snapshot()
	err := r.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(r.publisher.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event: got %s/%s, want SHUTDOWN/SIGTERM", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.BootID != "boot-1" {
		t.Errorf("boot_id: got %q, want boot-1", parsed.Status.BootID)
	}
	if parsed.Status.Window.CheckCount != 1 || parsed.Status.Window.Max != 5 {
		t.Errorf("window: got %+v", parsed.Status.Window)
	}
	if parsed.Status.LastEvent == nil || parsed.Status.LastEvent.Type != "WATERED" {
		t.Errorf("last_event: got %+v", parsed.Status.LastEvent)
	}
}
