package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/rest-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	State         string     `json:"state"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	LastSample    string     `json:"last_sample,omitempty"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Open          *CycleJSON `json:"open_cycle,omitempty"`
	Last          *CycleJSON `json:"last_cycle,omitempty"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of state machine counters.
type CountsJSON struct {
	Samples        int `json:"samples"`
	OutOfWindow    int `json:"out_of_window"`
	Started        int `json:"started"`
	Emitted        int `json:"emitted"`
	DiscardedShort int `json:"discarded_short"`
	DiscardedGain  int `json:"discarded_range_gain"`
}

// CycleJSON is the wire form of a rest cycle.
type CycleJSON struct {
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time,omitempty"`
	DurationSeconds int64   `json:"duration_seconds"`
	StartRange      float64 `json:"start_range"`
	EndRange        float64 `json:"end_range"`
	StartSOC        float64 `json:"start_soc"`
	EndSOC          float64 `json:"end_soc"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	VehicleID        string  `json:"vehicle_id"`
	TelemetryTopic   string  `json:"telemetry_topic"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	VoltageThreshold float64 `json:"voltage_threshold"`
	Window           string  `json:"window"`
	History          bool    `json:"history"`
	Dashboard        bool    `json:"dashboard"`
}

// NewCycleJSON converts a cycle to its wire form. An open cycle that has not
// been updated yet has no end time and a zero duration.
func NewCycleJSON(c logic.RestCycle) CycleJSON {
	cj := CycleJSON{
		StartTime:  c.StartTime.UTC().Format(time.RFC3339),
		StartRange: c.StartRange,
		EndRange:   c.EndRange,
		StartSOC:   c.StartSOC,
		EndSOC:     c.EndSOC,
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
	}
	if !c.EndTime.IsZero() {
		cj.EndTime = c.EndTime.UTC().Format(time.RFC3339)
		cj.DurationSeconds = int64(c.Duration().Truncate(time.Second).Seconds())
	}
	return cj
}

func cyclePtr(c *logic.RestCycle) *CycleJSON {
	if c == nil {
		return nil
	}
	cj := NewCycleJSON(*c)
	return &cj
}

func buildInner(snap Snapshot) StatusInner {
	state := "WAITING"
	if snap.Open != nil {
		state = "RESTING"
	}
	inner := StatusInner{
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Samples:        snap.Counts.Samples,
			OutOfWindow:    snap.Counts.OutOfWindow,
			Started:        snap.Counts.Started,
			Emitted:        snap.Counts.Emitted,
			DiscardedShort: snap.Counts.DiscardedShort,
			DiscardedGain:  snap.Counts.DiscardedGain,
		},
		Open: cyclePtr(snap.Open),
		Last: cyclePtr(snap.Last),
		Config: ConfigJSON{
			VehicleID:        snap.Config.VehicleID,
			TelemetryTopic:   snap.Config.TelemetryTopic,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			VoltageThreshold: snap.Config.VoltageThreshold,
			Window:           snap.Config.Window,
			History:          snap.Config.HistoryEnabled,
			Dashboard:        snap.Config.DashboardEnabled,
		},
	}
	if !snap.LastSample.IsZero() {
		inner.LastSample = snap.LastSample.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
