package restmon

import (
	"time"

	"github.com/sweeney/rest-monitor/internal/logic"
)

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    logic.Counts
}

// Heartbeat decides when a periodic heartbeat is due.
type Heartbeat struct {
	startTime time.Time
	last      time.Time
	interval  time.Duration
}

// NewHeartbeat creates a heartbeat schedule starting at startTime.
// An interval <= 0 disables heartbeats.
func NewHeartbeat(startTime time.Time, interval time.Duration) *Heartbeat {
	return &Heartbeat{startTime: startTime, last: startTime, interval: interval}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup), nil otherwise.
func (h *Heartbeat) Check(now time.Time, counts logic.Counts) *HeartbeatData {
	if h.interval <= 0 {
		return nil
	}
	if now.Sub(h.last) < h.interval {
		return nil
	}

	h.last = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    counts,
	}
}
