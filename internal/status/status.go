// Package status provides a thread-safe status tracker for the plant-waterer daemon.
// It is written by the control loop and read by HTTP handlers and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// Phase is the control loop's lifecycle stage.
type Phase string

const (
	PhaseStarting Phase = "STARTING"
	PhaseWarming  Phase = "WARMING"
	PhaseRunning  Phase = "RUNNING"
	PhaseStopped  Phase = "STOPPED"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	IntervalMs  int64
	WarmupMs    int64
	DoseMs      int64
	SampleMs    int64
	HeartbeatMs int64
	Threshold   uint16
	Period      int
	Min         int
	Max         int
	Debug       bool
	Broker      string
	HTTPAddr    string
}

// Reading is the most recent sensor sample.
type Reading struct {
	Value uint16
	Dry   bool
	At    time.Time
	Err   string // last read error, cleared by the next good read
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	Phase         Phase
	Reading       *Reading
	Watering      bool
	CheckTime     int
	CheckCount    int
	Counts        logic.Counts
	LastEvent     *logic.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given boot ID, start time and config.
func NewTracker(bootID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			Phase:     PhaseStarting,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetPhase records the control loop phase.
func (t *Tracker) SetPhase(p Phase) {
	t.mu.Lock()
	t.snap.Phase = p
	t.mu.Unlock()
}

// SetReading records a successful sensor read.
func (t *Tracker) SetReading(value uint16, dry bool, at time.Time) {
	t.mu.Lock()
	t.snap.Reading = &Reading{Value: value, Dry: dry, At: at}
	t.mu.Unlock()
}

// SetReadError records a failed sensor read, keeping the last good value.
func (t *Tracker) SetReadError(err error, at time.Time) {
	t.mu.Lock()
	r := Reading{At: at, Err: err.Error()}
	if t.snap.Reading != nil {
		r.Value = t.snap.Reading.Value
		r.Dry = t.snap.Reading.Dry
	}
	t.snap.Reading = &r
	t.mu.Unlock()
}

// SetWatering records whether the relay is open.
func (t *Tracker) SetWatering(on bool) {
	t.mu.Lock()
	t.snap.Watering = on
	t.mu.Unlock()
}

// UpdatePolicy sets the window position, window count and lifetime counts.
// Called from runLoop after every policy step.
func (t *Tracker) UpdatePolicy(checkTime, checkCount int, counts logic.Counts) {
	t.mu.Lock()
	t.snap.CheckTime = checkTime
	t.snap.CheckCount = checkCount
	t.snap.Counts = counts
	t.mu.Unlock()
}

// RecordEvent keeps the most recent policy event.
func (t *Tracker) RecordEvent(e logic.Event) {
	t.mu.Lock()
	t.snap.LastEvent = &e
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Reading != nil {
		r := *s.Reading
		s.Reading = &r
	}
	if s.LastEvent != nil {
		e := *s.LastEvent
		s.LastEvent = &e
	}
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
