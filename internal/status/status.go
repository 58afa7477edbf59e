// Package status provides thread-safe state shared between the rest monitor
// loop and its readers (HTTP handlers, MQTT system events).
package status

import (
	"sync"
	"time"

	"github.com/sweeney/rest-monitor/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	VehicleID        string
	TelemetryTopic   string
	Broker           string
	HTTPAddr         string
	HeartbeatMs      int64
	VoltageThreshold float64
	Window           string // e.g. "22:00-06:00" or "disabled"
	HistoryEnabled   bool
	DashboardEnabled bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Open          *logic.RestCycle
	Last          *logic.RestCycle
	Counts        logic.Counts
	LastSample    time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
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
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records the state machine's view after a sample.
func (t *Tracker) Update(open *logic.RestCycle, counts logic.Counts, lastSample time.Time) {
	t.mu.Lock()
	t.snap.Open = open
	t.snap.Counts = counts
	t.snap.LastSample = lastSample
	t.mu.Unlock()
}

// SetLast records the most recently emitted cycle.
func (t *Tracker) SetLast(c logic.RestCycle) {
	t.mu.Lock()
	t.snap.Last = &c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
