package logic

// Monitor is the rest cycle state machine. It is either waiting for an idle
// sample (no open cycle) or tracking an open cycle.
// Not safe for concurrent use; callers must serialize Process.
type Monitor struct {
	window           Window
	voltageThreshold float64
	current          *RestCycle
	counts           Counts
}

// NewMonitor creates a state machine gated by window. Samples with zero speed
// and voltage below voltageThreshold are idle.
func NewMonitor(window Window, voltageThreshold float64) *Monitor {
	return &Monitor{
		window:           window,
		voltageThreshold: voltageThreshold,
	}
}

// Process consumes one sample and reports the resulting transition.
// A finalized cycle is only returned with ActionEmitted or ActionDiscarded.
func (m *Monitor) Process(s Sample) Result {
	m.counts.Samples++

	if m.window.OutOfRange(s.Timestamp) {
		m.counts.OutOfWindow++
		if m.current == nil {
			return Result{Action: ActionIgnored, OutOfWindow: true}
		}
		res := m.complete(s)
		res.OutOfWindow = true
		return res
	}

	idle := s.Speed == 0 && s.Voltage < m.voltageThreshold

	if m.current == nil {
		if !idle {
			return Result{Action: ActionNone}
		}
		m.start(s)
		return Result{Action: ActionStarted}
	}

	if idle {
		m.update(s)
		return Result{Action: ActionUpdated}
	}
	return m.complete(s)
}

func (m *Monitor) start(s Sample) {
	m.current = &RestCycle{
		StartTime:  s.Timestamp,
		StartRange: s.EstRange,
		StartSOC:   s.SOC,
	}
	m.counts.Started++
}

func (m *Monitor) update(s Sample) {
	m.current.EndTime = s.Timestamp
	m.current.EndRange = s.EstRange
	m.current.EndSOC = s.SOC
	m.current.Latitude = s.Latitude
	m.current.Longitude = s.Longitude
}

// complete closes the open cycle using s as the final update. The open cycle
// is always cleared.
func (m *Monitor) complete(s Sample) Result {
	m.update(s)
	c := m.current
	m.current = nil

	if c.Duration() <= MinRestPeriod {
		m.counts.DiscardedShort++
		return Result{Action: ActionDiscarded, Reason: DiscardTooShort, Cycle: c}
	}
	// A gap in telemetry can hide a charge, making the rest look like it
	// gained range. Such cycles would skew the data, as would an unknown
	// (NaN) range.
	if !(c.EndRange <= c.StartRange) {
		m.counts.DiscardedGain++
		return Result{Action: ActionDiscarded, Reason: DiscardRangeGain, Cycle: c}
	}
	m.counts.Emitted++
	return Result{Action: ActionEmitted, Cycle: c}
}

// Open returns a copy of the cycle in progress, or nil.
func (m *Monitor) Open() *RestCycle {
	if m.current == nil {
		return nil
	}
	c := *m.current
	return &c
}

// Counts returns a copy of the cumulative counters.
func (m *Monitor) Counts() Counts {
	return m.counts
}
