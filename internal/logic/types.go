// Package logic contains pure business logic for rest cycle detection.
// This package has NO external dependencies (no MQTT, database, OS, or time.Now).
// Time is always taken from the samples themselves.
package logic

import "time"

// MinRestPeriod is the minimum duration a rest cycle must exceed to be emitted.
const MinRestPeriod = 60 * time.Minute

// DefaultVoltageThreshold is the voltage below which a stationary vehicle is
// considered idle. The unit is whatever the telemetry feed reports.
const DefaultVoltageThreshold = 100.0

// Sample is a single telemetry reading.
type Sample struct {
	Timestamp time.Time
	Speed     float64
	Voltage   float64
	SOC       float64 // state of charge
	EstRange  float64 // estimated range remaining
	Latitude  float64
	Longitude float64
}

// RestCycle is a period during which the vehicle was idle.
type RestCycle struct {
	StartTime  time.Time
	EndTime    time.Time
	StartRange float64
	EndRange   float64
	StartSOC   float64
	EndSOC     float64
	Latitude   float64
	Longitude  float64
}

// Duration returns EndTime - StartTime.
func (c RestCycle) Duration() time.Duration {
	return c.EndTime.Sub(c.StartTime)
}

// Action describes what a sample did to the state machine.
type Action string

const (
	ActionNone      Action = "NONE"      // not idle, no cycle open
	ActionIgnored   Action = "IGNORED"   // out of window, no cycle open
	ActionStarted   Action = "STARTED"   // cycle opened
	ActionUpdated   Action = "UPDATED"   // open cycle extended
	ActionEmitted   Action = "EMITTED"   // cycle finalized and emitted
	ActionDiscarded Action = "DISCARDED" // cycle finalized and dropped
)

// DiscardReason explains why a finalized cycle was dropped.
type DiscardReason string

const (
	DiscardTooShort  DiscardReason = "too_short"
	DiscardRangeGain DiscardReason = "range_gain"
)

// Result is the outcome of processing one sample.
type Result struct {
	Action Action
	// OutOfWindow is true when the sample fell outside the monitoring window.
	OutOfWindow bool
	// Reason is set when Action is ActionDiscarded.
	Reason DiscardReason
	// Cycle is the finalized cycle for ActionEmitted and ActionDiscarded.
	Cycle *RestCycle
}

// Counts tracks cumulative state machine activity since startup.
type Counts struct {
	Samples        int
	OutOfWindow    int
	Started        int
	Emitted        int
	DiscardedShort int
	DiscardedGain  int
}
