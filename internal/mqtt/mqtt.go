// Package mqtt publishes watering events and system lifecycle events to an
// MQTT broker, with a fake for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// Topic is the MQTT topic for policy events.
const Topic = "garden/plant-waterer/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "garden/plant-waterer/system"

// Publisher publishes events to MQTT. Publishing is observational only; a
// failed publish must never affect watering.
type Publisher interface {
	// Publish sends a policy event to the broker.
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	BootID     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Watering WateringPayload `json:"watering"`
}

// WateringPayload contains the policy event details.
type WateringPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Doses      int    `json:"doses"`
	CheckTime  int    `json:"check_time"`
	CheckCount int    `json:"check_count"`
	Forced     bool   `json:"forced,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a policy event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Watering: WateringPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      string(event.Type),
			Doses:      event.Doses,
			CheckTime:  event.CheckTime,
			CheckCount: event.CheckCount,
			Forced:     event.Forced,
			Error:      event.Err,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	BootID    string `json:"boot_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
		BootID: event.BootID,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// WillPayload is the retained last-will message the broker publishes if the
// controller disappears without a clean shutdown. It carries no timestamp
// because it is registered at connect time.
func WillPayload(bootID string) []byte {
	payload, _ := FormatSystemPayload(SystemEvent{
		Event:  "OFFLINE",
		Reason: "LWT",
		BootID: bootID,
	})
	return payload
}
