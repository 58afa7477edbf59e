package logic

import (
	"math"
	"reflect"
	"testing"
	"time"
)

var base = time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)

func idle(ts time.Time, rng float64) Sample {
	return Sample{Timestamp: ts, Speed: 0, Voltage: 50, SOC: rng / 2, EstRange: rng, Latitude: 51.5, Longitude: -0.12}
}

func driving(ts time.Time, rng float64) Sample {
	return Sample{Timestamp: ts, Speed: 40, Voltage: 50, SOC: rng / 2, EstRange: rng}
}

// run feeds samples through m and returns every emitted cycle.
func run(m *Monitor, samples []Sample) []RestCycle {
	var out []RestCycle
	for _, s := range samples {
		if res := m.Process(s); res.Action == ActionEmitted {
			out = append(out, *res.Cycle)
		}
	}
	return out
}

// idleRun returns idle samples at 1-minute intervals covering [0, minutes]
// with range falling linearly from fromRange to toRange.
func idleRun(start time.Time, minutes int, fromRange, toRange float64) []Sample {
	out := make([]Sample, 0, minutes+1)
	for i := 0; i <= minutes; i++ {
		r := fromRange + (toRange-fromRange)*float64(i)/float64(minutes)
		out = append(out, idle(start.Add(time.Duration(i)*time.Minute), r))
	}
	return out
}

func TestNewMonitor(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	if m == nil {
		t.Fatal("NewMonitor returned nil")
	}
	if m.Open() != nil {
		t.Error("new monitor should have no open cycle")
	}
	if m.Counts() != (Counts{}) {
		t.Errorf("expected zero counts, got %+v", m.Counts())
	}
}

func TestNotIdleWithoutCycleIsNoop(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)

	res := m.Process(driving(base, 100))
	if res.Action != ActionNone {
		t.Errorf("expected NONE, got %s", res.Action)
	}
	if m.Open() != nil {
		t.Error("driving sample should not open a cycle")
	}
}

func TestHighVoltageIsNotIdle(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)

	s := idle(base, 100)
	s.Voltage = 100
	if res := m.Process(s); res.Action != ActionNone {
		t.Errorf("voltage at threshold should not be idle, got %s", res.Action)
	}

	s.Voltage = 99.9
	if res := m.Process(s); res.Action != ActionStarted {
		t.Errorf("voltage below threshold should be idle, got %s", res.Action)
	}
}

func TestCustomVoltageThreshold(t *testing.T) {
	m := NewMonitor(Window{}, 30)

	if res := m.Process(idle(base, 100)); res.Action != ActionNone {
		t.Errorf("voltage 50 should not be idle with threshold 30, got %s", res.Action)
	}
}

func TestStartCycleSetsStartFields(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)

	s := idle(base, 120)
	if res := m.Process(s); res.Action != ActionStarted {
		t.Fatalf("expected STARTED, got %s", res.Action)
	}

	c := m.Open()
	if c == nil {
		t.Fatal("expected open cycle")
	}
	if !c.StartTime.Equal(base) {
		t.Errorf("StartTime: got %v, want %v", c.StartTime, base)
	}
	if c.StartRange != 120 {
		t.Errorf("StartRange: got %v, want 120", c.StartRange)
	}
	if c.StartSOC != 60 {
		t.Errorf("StartSOC: got %v, want 60", c.StartSOC)
	}
	if !c.EndTime.IsZero() {
		t.Errorf("EndTime should be unset on start, got %v", c.EndTime)
	}
}

func TestUpdateCycleSetsEndFields(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	m.Process(idle(base, 120))

	s := idle(base.Add(10*time.Minute), 118)
	s.Latitude, s.Longitude = 40.7, -74.0
	if res := m.Process(s); res.Action != ActionUpdated {
		t.Fatalf("expected UPDATED, got %s", res.Action)
	}

	c := m.Open()
	if !c.EndTime.Equal(s.Timestamp) {
		t.Errorf("EndTime: got %v, want %v", c.EndTime, s.Timestamp)
	}
	if c.EndRange != 118 || c.EndSOC != 59 {
		t.Errorf("End fields: got range=%v soc=%v", c.EndRange, c.EndSOC)
	}
	if c.Latitude != 40.7 || c.Longitude != -74.0 {
		t.Errorf("position: got %v,%v", c.Latitude, c.Longitude)
	}
	if c.StartRange != 120 {
		t.Errorf("StartRange should be unchanged, got %v", c.StartRange)
	}
}

func TestOpenReturnsCopy(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	m.Process(idle(base, 120))

	c := m.Open()
	c.StartRange = 0
	if m.Open().StartRange != 120 {
		t.Error("mutating the result of Open should not affect the monitor")
	}
}

// 90 minutes idle with range falling 100 -> 90.
func TestLongRestEmitsCycle(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)

	samples := append(idleRun(base, 90, 100, 90), driving(base.Add(91*time.Minute), 90))

	var emitted []RestCycle
	for i, s := range samples {
		res := m.Process(s)
		if i < len(samples)-1 && res.Action == ActionEmitted {
			t.Fatalf("sample %d: emitted too early", i)
		}
		if res.Action == ActionEmitted {
			emitted = append(emitted, *res.Cycle)
		}
	}

	if len(emitted) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(emitted))
	}
	c := emitted[0]
	if c.StartRange != 100 {
		t.Errorf("StartRange: got %v, want 100", c.StartRange)
	}
	// The closing sample is applied as the last update.
	if c.EndRange != 90 {
		t.Errorf("EndRange: got %v, want 90", c.EndRange)
	}
	if c.Duration() != 91*time.Minute {
		t.Errorf("Duration: got %v, want 91m", c.Duration())
	}
	if !c.StartTime.Equal(base) {
		t.Errorf("StartTime: got %v, want %v", c.StartTime, base)
	}
	if m.Open() != nil {
		t.Error("cycle should be cleared after emission")
	}
}

func TestEmittedCycleClosedByIdleEndSample(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	for _, s := range idleRun(base, 90, 100, 90) {
		m.Process(s)
	}

	// The sample that ends idleness is the final update.
	end := driving(base.Add(90*time.Minute), 90)
	res := m.Process(end)
	if res.Action != ActionEmitted {
		t.Fatalf("expected EMITTED, got %s", res.Action)
	}
	if res.Cycle.Duration() != 90*time.Minute {
		t.Errorf("Duration: got %v, want 90m", res.Cycle.Duration())
	}
	if res.OutOfWindow {
		t.Error("OutOfWindow should be false for idle-ended cycles")
	}
}

// 30 minutes idle then moving.
func TestShortRestDiscarded(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	for _, s := range idleRun(base, 30, 100, 97) {
		m.Process(s)
	}

	res := m.Process(driving(base.Add(31*time.Minute), 97))
	if res.Action != ActionDiscarded {
		t.Fatalf("expected DISCARDED, got %s", res.Action)
	}
	if res.Reason != DiscardTooShort {
		t.Errorf("expected reason too_short, got %q", res.Reason)
	}
	if m.Open() != nil {
		t.Error("state should return to no cycle")
	}
	if c := m.Counts(); c.DiscardedShort != 1 || c.Emitted != 0 {
		t.Errorf("unexpected counts: %+v", c)
	}
}

func TestExactlyMinRestPeriodDiscarded(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	m.Process(idle(base, 100))

	res := m.Process(driving(base.Add(MinRestPeriod), 99))
	if res.Action != ActionDiscarded || res.Reason != DiscardTooShort {
		t.Errorf("a rest of exactly MinRestPeriod should be discarded, got %s/%s", res.Action, res.Reason)
	}

	m.Process(idle(base.Add(2*time.Hour), 100))
	res = m.Process(driving(base.Add(2*time.Hour+MinRestPeriod+time.Second), 99))
	if res.Action != ActionEmitted {
		t.Errorf("a rest just over MinRestPeriod should be emitted, got %s", res.Action)
	}
}

// 120 minutes idle with range rising 80 -> 85.
func TestRangeGainDiscarded(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	samples := append(idleRun(base, 120, 80, 85), driving(base.Add(121*time.Minute), 85))

	var last Result
	for _, s := range samples {
		last = m.Process(s)
		if last.Action == ActionEmitted {
			t.Fatal("cycle with range gain must not be emitted")
		}
	}
	if last.Action != ActionDiscarded || last.Reason != DiscardRangeGain {
		t.Errorf("expected DISCARDED/range_gain, got %s/%s", last.Action, last.Reason)
	}
	if c := m.Counts(); c.DiscardedGain != 1 {
		t.Errorf("DiscardedGain: got %d, want 1", c.DiscardedGain)
	}
}

func TestEqualRangeEmitted(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	emitted := run(m, append(idleRun(base, 75, 50, 50), driving(base.Add(76*time.Minute), 50)))
	if len(emitted) != 1 {
		t.Fatalf("equal start and end range should be emitted, got %d cycles", len(emitted))
	}
}

func TestUnknownEndRangeDiscarded(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	samples := []Sample{
		idle(base, 100),
		idle(base.Add(2*time.Hour), math.NaN()),
		driving(base.Add(2*time.Hour+time.Minute), math.NaN()),
	}
	if emitted := run(m, samples); len(emitted) != 0 {
		t.Fatalf("a NaN end range must not be emitted, got %+v", emitted)
	}
	if c := m.Counts(); c.DiscardedGain != 1 {
		t.Errorf("DiscardedGain: got %d, want 1", c.DiscardedGain)
	}
}

// Wrapping 22:00-06:00 window, sample at noon closes the cycle,
// a later idle sample at 23:00 opens a fresh one.
func TestOutOfWindowFinalizes(t *testing.T) {
	w := Window{Enabled: true, From: NewTimeOfDay(22, 0, 0), To: NewTimeOfDay(6, 0, 0)}
	m := NewMonitor(w, DefaultVoltageThreshold)

	night := time.Date(2026, 1, 1, 22, 30, 0, 0, time.UTC)
	for _, s := range idleRun(night, 7*60, 200, 190) { // 22:30 -> 05:30
		if res := m.Process(s); res.Action == ActionEmitted || res.Action == ActionDiscarded {
			t.Fatalf("cycle closed early at %v", s.Timestamp)
		}
	}

	noon := idle(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC), 188)
	if !w.OutOfRange(noon.Timestamp) {
		t.Fatal("noon should be out of range")
	}
	res := m.Process(noon)
	if res.Action != ActionEmitted {
		t.Fatalf("expected EMITTED on out-of-window sample, got %s", res.Action)
	}
	if !res.OutOfWindow {
		t.Error("expected OutOfWindow=true")
	}
	if !res.Cycle.EndTime.Equal(noon.Timestamp) {
		t.Errorf("closing sample should be the final update: EndTime=%v", res.Cycle.EndTime)
	}
	if res.Cycle.EndRange != 188 {
		t.Errorf("EndRange: got %v, want 188", res.Cycle.EndRange)
	}
	if m.Open() != nil {
		t.Fatal("expected no open cycle after finalization")
	}

	// Idle samples outside the window never start a cycle.
	if res := m.Process(idle(time.Date(2026, 1, 2, 12, 1, 0, 0, time.UTC), 188)); res.Action != ActionIgnored {
		t.Errorf("expected IGNORED, got %s", res.Action)
	}
	if m.Open() != nil {
		t.Fatal("out-of-window sample must not start a cycle")
	}

	res = m.Process(idle(time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC), 188))
	if res.Action != ActionStarted {
		t.Fatalf("expected STARTED at 23:00, got %s", res.Action)
	}
	if c := m.Open(); c == nil || c.StartRange != 188 {
		t.Errorf("expected fresh cycle starting at range 188, got %+v", c)
	}
}

func TestOutOfWindowShortCycleDiscarded(t *testing.T) {
	w := Window{Enabled: true, From: NewTimeOfDay(8, 0, 0), To: NewTimeOfDay(18, 0, 0)}
	m := NewMonitor(w, DefaultVoltageThreshold)

	m.Process(idle(time.Date(2026, 1, 1, 17, 30, 0, 0, time.UTC), 100))
	res := m.Process(idle(time.Date(2026, 1, 1, 18, 5, 0, 0, time.UTC), 99))
	if res.Action != ActionDiscarded || !res.OutOfWindow {
		t.Errorf("expected out-of-window discard, got %s (out=%v)", res.Action, res.OutOfWindow)
	}
	if c := m.Counts(); c.OutOfWindow != 1 {
		t.Errorf("OutOfWindow count: got %d, want 1", c.OutOfWindow)
	}
}

func TestOpenCycleAbandonedWhenStreamEnds(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)
	emitted := run(m, idleRun(base, 180, 100, 90))
	if len(emitted) != 0 {
		t.Errorf("an open cycle must not be emitted without a closing sample, got %d", len(emitted))
	}
	if m.Open() == nil {
		t.Error("cycle should still be open")
	}
}

func TestBackToBackCycles(t *testing.T) {
	m := NewMonitor(Window{}, DefaultVoltageThreshold)

	var samples []Sample
	samples = append(samples, idleRun(base, 70, 100, 98)...)
	samples = append(samples, driving(base.Add(71*time.Minute), 98))
	second := base.Add(3 * time.Hour)
	samples = append(samples, idleRun(second, 120, 80, 75)...)
	samples = append(samples, driving(second.Add(121*time.Minute), 75))

	emitted := run(m, samples)
	if len(emitted) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(emitted))
	}
	if emitted[0].StartRange != 100 || emitted[1].StartRange != 80 {
		t.Errorf("unexpected start ranges: %v, %v", emitted[0].StartRange, emitted[1].StartRange)
	}
	if c := m.Counts(); c.Started != 2 || c.Emitted != 2 {
		t.Errorf("unexpected counts: %+v", c)
	}
}

func TestEmittedCyclesSatisfyInvariants(t *testing.T) {
	m := NewMonitor(Window{Enabled: true, From: NewTimeOfDay(20, 0, 0), To: NewTimeOfDay(8, 0, 0)}, DefaultVoltageThreshold)
	samples := mixedStream()

	emitted := run(m, samples)
	if len(emitted) == 0 {
		t.Fatal("stream should produce at least one cycle")
	}
	for i, c := range emitted {
		if !c.EndTime.After(c.StartTime) {
			t.Errorf("cycle %d: EndTime %v not after StartTime %v", i, c.EndTime, c.StartTime)
		}
		if c.Duration() <= MinRestPeriod {
			t.Errorf("cycle %d: duration %v not over %v", i, c.Duration(), MinRestPeriod)
		}
		if c.EndRange > c.StartRange {
			t.Errorf("cycle %d: range rose from %v to %v", i, c.StartRange, c.EndRange)
		}
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	w := Window{Enabled: true, From: NewTimeOfDay(20, 0, 0), To: NewTimeOfDay(8, 0, 0)}
	samples := mixedStream()

	first := run(NewMonitor(w, DefaultVoltageThreshold), samples)
	second := run(NewMonitor(w, DefaultVoltageThreshold), samples)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replay produced different cycles:\n%+v\n%+v", first, second)
	}
}

// mixedStream is two days of 10-minute samples in 8-hour blocks: two hours
// driving then six hours parked. Every other block the parked stretch
// includes an hour of charging that raises range.
func mixedStream() []Sample {
	var out []Sample
	rng := 300.0
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2*24*6; i++ {
		ts := start.Add(time.Duration(i) * 10 * time.Minute)
		switch phase := (i / 6) % 8; {
		case phase < 2:
			rng -= 1.5
			out = append(out, driving(ts, rng))
		case phase == 5 && (i/48)%2 == 0:
			rng += 4
			out = append(out, idle(ts, rng))
		default:
			rng -= 0.1
			out = append(out, idle(ts, rng))
		}
	}
	return out
}
