package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Phase         string       `json:"phase"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	Watering      bool         `json:"watering"`
	Window        WindowJSON   `json:"window"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	LastEvent     *EventJSON   `json:"last_event,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is the JSON representation of the last sensor reading.
type ReadingJSON struct {
	Dryness   uint16 `json:"dryness"`
	Dry       bool   `json:"dry"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// WindowJSON reports the safety window position.
type WindowJSON struct {
	CheckTime  int `json:"check_time"`
	CheckCount int `json:"check_count"`
	Period     int `json:"period"`
	Min        int `json:"min"`
	Max        int `json:"max"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of policy outcome counts.
type CountsJSON struct {
	Watered     int `json:"watered"`
	Compensated int `json:"compensated"`
	Skipped     int `json:"skipped"`
	Faults      int `json:"faults"`
	Windows     int `json:"windows"`
}

// EventJSON is the JSON representation of the most recent policy event.
type EventJSON struct {
	Type      string `json:"type"`
	Doses     int    `json:"doses"`
	Forced    bool   `json:"forced,omitempty"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs  int64  `json:"interval_ms"`
	WarmupMs    int64  `json:"warmup_ms"`
	DoseMs      int64  `json:"dose_ms"`
	SampleMs    int64  `json:"sample_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Threshold   uint16 `json:"threshold"`
	Debug       bool   `json:"debug"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	inner := StatusInner{
		BootID:        snap.BootID,
		Phase:         phase,
		Watering:      snap.Watering,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Window: WindowJSON{
			CheckTime:  snap.CheckTime,
			CheckCount: snap.CheckCount,
			Period:     snap.Config.Period,
			Min:        snap.Config.Min,
			Max:        snap.Config.Max,
		},
		Counts: CountsJSON{
			Watered:     snap.Counts.Watered,
			Compensated: snap.Counts.Compensated,
			Skipped:     snap.Counts.Skipped,
			Faults:      snap.Counts.Faults,
			Windows:     snap.Counts.Windows,
		},
		Config: ConfigJSON{
			IntervalMs:  snap.Config.IntervalMs,
			WarmupMs:    snap.Config.WarmupMs,
			DoseMs:      snap.Config.DoseMs,
			SampleMs:    snap.Config.SampleMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Threshold:   snap.Config.Threshold,
			Debug:       snap.Config.Debug,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if r := snap.Reading; r != nil {
		inner.Reading = &ReadingJSON{
			Dryness:   r.Value,
			Dry:       r.Dry,
			Timestamp: r.At.UTC().Format(time.RFC3339),
			Error:     r.Err,
		}
	}
	if e := snap.LastEvent; e != nil {
		inner.LastEvent = &EventJSON{
			Type:      string(e.Type),
			Doses:     e.Doses,
			Forced:    e.Forced,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Error:     e.Err,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
