// Package mqtt provides the MQTT telemetry feed and rest cycle publishing,
// with abstractions for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/rest-monitor/internal/logic"
	"github.com/sweeney/rest-monitor/internal/status"
)

// Default topics. The vehicle ID is not part of the topic; it is carried in
// every payload.
const (
	DefaultTelemetryTopic = "vehicle/telemetry"
	DefaultCycleTopic     = "vehicle/rest/cycles"
	DefaultSystemTopic    = "vehicle/rest/system"
)

// Publisher publishes rest cycles and lifecycle events.
type Publisher interface {
	// Publish sends an emitted rest cycle to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(cycle logic.RestCycle) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload for an emitted rest cycle.
type Payload struct {
	RestCycle CyclePayload `json:"rest_cycle"`
}

// CyclePayload contains the cycle details.
type CyclePayload struct {
	VehicleID string `json:"vehicle_id"`
	status.CycleJSON
}

// FormatPayload creates the JSON payload for a rest cycle.
func FormatPayload(vehicleID string, c logic.RestCycle) ([]byte, error) {
	return json.Marshal(Payload{
		RestCycle: CyclePayload{
			VehicleID: vehicleID,
			CycleJSON: status.NewCycleJSON(c),
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
