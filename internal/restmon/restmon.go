// Package restmon connects a telemetry source to the rest cycle state machine
// and writes emitted cycles to a single-slot sink.
package restmon

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/rest-monitor/internal/logic"
	"github.com/sweeney/rest-monitor/internal/telemetry"
)

// Sink receives emitted rest cycles. Set overwrites any previous cycle.
type Sink interface {
	Set(logic.RestCycle)
}

// Observer is notified of every processed sample and its outcome.
// Observers are called one sample at a time, in delivery order, and must not
// block.
type Observer interface {
	Observe(logic.Sample, logic.Result)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(logic.Sample, logic.Result)

// Observe calls f.
func (f ObserverFunc) Observe(s logic.Sample, r logic.Result) { f(s, r) }

// Config holds the detector settings. It is read once by New.
type Config struct {
	Window           logic.Window
	VoltageThreshold float64
}

// Detector runs the state machine for the lifetime of its subscription.
type Detector struct {
	deliver    sync.Mutex // serializes handle and orders sink writes
	mu         sync.Mutex // guards the fields below
	monitor    *logic.Monitor
	sink       Sink
	observers  []Observer
	sub        telemetry.Subscription
	lastSample time.Time
	closed     bool
}

// New subscribes to src and starts detecting. Every emitted cycle is written
// to sink with a single Set call.
func New(src telemetry.Source, sink Sink, cfg Config, observers ...Observer) (*Detector, error) {
	if src == nil || sink == nil {
		return nil, errors.New("restmon: source and sink are required")
	}
	d := &Detector{
		monitor:   logic.NewMonitor(cfg.Window, cfg.VoltageThreshold),
		sink:      sink,
		observers: observers,
	}

	sub, err := src.Subscribe(d.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe to telemetry: %w", err)
	}
	d.sub = sub
	return d, nil
}

// handle processes one sample. Deliveries are serialized by d.deliver so a
// misbehaving source cannot corrupt the open cycle. The sink and observers
// run after d.mu is released and may call State.
func (d *Detector) handle(s logic.Sample) {
	d.deliver.Lock()
	defer d.deliver.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	res := d.monitor.Process(s)
	d.lastSample = s.Timestamp
	d.mu.Unlock()

	switch res.Action {
	case logic.ActionStarted:
		log.Printf("restmon: rest started at %s (range=%.1f soc=%.1f)",
			s.Timestamp.UTC().Format(time.RFC3339), s.EstRange, s.SOC)
	case logic.ActionEmitted:
		c := *res.Cycle
		log.Printf("restmon: rest cycle emitted: %v, range %.1f -> %.1f, soc %.1f -> %.1f",
			c.Duration().Truncate(time.Second), c.StartRange, c.EndRange, c.StartSOC, c.EndSOC)
		d.sink.Set(c)
	case logic.ActionDiscarded:
		log.Printf("restmon: rest cycle discarded (%s) after %v", res.Reason, res.Cycle.Duration().Truncate(time.Second))
	}

	for _, o := range d.observers {
		o.Observe(s, res)
	}
}

// Close unsubscribes from the source. It waits for a sample in flight, so
// every cycle emitted before Close returns has reached the sink. A cycle
// still open is dropped, not emitted. Close must not be called from a sink
// or observer.
func (d *Detector) Close() error {
	d.deliver.Lock()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.deliver.Unlock()
		return nil
	}
	d.closed = true
	if open := d.monitor.Open(); open != nil {
		log.Printf("restmon: abandoning open rest cycle started %s", open.StartTime.UTC().Format(time.RFC3339))
	}
	d.mu.Unlock()
	d.deliver.Unlock()

	if err := d.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe from telemetry: %w", err)
	}
	return nil
}

// State is a point-in-time view of the detector.
type State struct {
	Open       *logic.RestCycle
	Counts     logic.Counts
	LastSample time.Time
}

// State returns the open cycle (if any), counters and last sample time.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Open:       d.monitor.Open(),
		Counts:     d.monitor.Counts(),
		LastSample: d.lastSample,
	}
}
