// Command rest-monitor watches vehicle telemetry over MQTT, detects rest
// cycles and publishes them to MQTT, Postgres and Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/rest-monitor/internal/config"
	"github.com/sweeney/rest-monitor/internal/logic"
	"github.com/sweeney/rest-monitor/internal/metrics"
	"github.com/sweeney/rest-monitor/internal/mqtt"
	"github.com/sweeney/rest-monitor/internal/restmon"
	"github.com/sweeney/rest-monitor/internal/status"
	"github.com/sweeney/rest-monitor/internal/store"
	"github.com/sweeney/rest-monitor/internal/web"
)

// writeTimeout bounds each history or dashboard write.
const writeTimeout = 5 * time.Second

func main() {
	def := config.Default()

	configPath := flag.String("config", "", "YAML config file (optional)")
	vehicle := flag.String("vehicle", def.VehicleID, "Vehicle ID carried in every payload")
	broker := flag.String("broker", def.MQTT.Broker, "MQTT broker address")
	topic := flag.String("topic", def.MQTT.TelemetryTopic, "MQTT telemetry topic")
	heartbeat := flag.Duration("heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	threshold := flag.Float64("voltage-threshold", def.VoltageThreshold, "Voltage below which a stationary vehicle is idle")
	windowFrom := flag.String("window-from", "", "Start of monitoring window, HH:MM (enables the window)")
	windowTo := flag.String("window-to", "", "End of monitoring window, HH:MM (enables the window)")
	timezone := flag.String("timezone", def.Window.Timezone, "Timezone for the monitoring window")
	databaseURL := flag.String("database-url", "", "Postgres URL for rest cycle history (empty to disable)")
	redisAddr := flag.String("redis", "", "Redis address for the dashboard cache (empty to disable)")
	printConfig := flag.Bool("print-config", false, "Print effective config and exit")

	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if set["vehicle"] {
			c.VehicleID = *vehicle
		}
		if set["broker"] {
			c.MQTT.Broker = *broker
		}
		if set["topic"] {
			c.MQTT.TelemetryTopic = *topic
		}
		if set["heartbeat"] {
			c.Heartbeat = *heartbeat
		}
		if set["http"] {
			c.HTTP.Addr = *httpAddr
		}
		if set["voltage-threshold"] {
			c.VoltageThreshold = *threshold
		}
		if set["window-from"] {
			c.Window.Enabled = true
			c.Window.From = *windowFrom
		}
		if set["window-to"] {
			c.Window.Enabled = true
			c.Window.To = *windowTo
		}
		if set["timezone"] {
			c.Window.Timezone = *timezone
		}
		if set["database-url"] {
			c.History.DatabaseURL = *databaseURL
		}
		if set["redis"] {
			c.Dashboard.Addr = *redisAddr
		}
	})
	if err != nil {
		log.Fatalf("fatal: config: %v", err)
	}

	if *printConfig {
		out, err := formatConfig(*cfg)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		fmt.Print(string(out))
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// formatConfig renders cfg as YAML with secrets masked.
func formatConfig(cfg config.Config) ([]byte, error) {
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "***"
	}
	if cfg.Dashboard.Password != "" {
		cfg.Dashboard.Password = "***"
	}
	if cfg.History.DatabaseURL != "" {
		cfg.History.DatabaseURL = "***"
	}
	return yaml.Marshal(cfg)
}

func run(cfg *config.Config) error {
	window, err := cfg.MonitorWindow()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		sinks   cycleSinks
		history web.CycleLister
		cached  cachedCycle
	)

	if cfg.History.DatabaseURL != "" {
		h, err := store.NewHistory(ctx, cfg.History.DatabaseURL, cfg.VehicleID)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		defer h.Close()
		sinks.history = h
		history = h
		log.Printf("history store ready")
	}

	if cfg.Dashboard.Addr != "" {
		dashboard, err := store.NewDashboard(ctx, store.DashboardOptions{
			Addr:      cfg.Dashboard.Addr,
			Password:  cfg.Dashboard.Password,
			DB:        cfg.Dashboard.DB,
			VehicleID: cfg.VehicleID,
			TTL:       cfg.Dashboard.TTL,
		})
		if err != nil {
			return fmt.Errorf("init dashboard: %w", err)
		}
		defer dashboard.Close()
		sinks.dashboard = dashboard
		cached = dashboard
		log.Printf("dashboard cache ready at %s", cfg.Dashboard.Addr)
	}

	// Initialize MQTT
	client, err := mqtt.NewRealClient(cfg.MQTTOptions())
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sinks.metrics = metrics.New(reg)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		VehicleID:        cfg.VehicleID,
		TelemetryTopic:   cfg.MQTT.TelemetryTopic,
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTP.Addr,
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		VoltageThreshold: cfg.VoltageThreshold,
		Window:           window.String(),
		HistoryEnabled:   sinks.history != nil,
		DashboardEnabled: sinks.dashboard != nil,
	})
	tracker.SetMQTTConnected(client.IsConnected())
	if cached != nil {
		restoreLast(ctx, cached, tracker)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, history, sinks.metrics.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	// Emitted cycles are handed to runLoop so the detector never waits on I/O.
	last := status.NewLastCycle()
	cycles := make(chan logic.RestCycle, 16)
	unsubscribe := last.Subscribe(forwardCycles(cycles))
	defer unsubscribe()

	detector, err := restmon.New(client, last, restmon.Config{
		Window:           window,
		VoltageThreshold: cfg.VoltageThreshold,
	}, sinks.metrics)
	if err != nil {
		return fmt.Errorf("start detector: %w", err)
	}
	// runLoop closes the detector on shutdown; this covers early returns.
	defer detector.Close()

	log.Printf("started: vehicle=%s broker=%s topic=%s window=%s threshold=%v heartbeat=%v",
		cfg.VehicleID, cfg.MQTT.Broker, cfg.MQTT.TelemetryTopic, window, cfg.VoltageThreshold, cfg.Heartbeat)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(detector, client, client, tracker, sinks, cfg.Heartbeat, time.Now, ticker.C, cycles, sigCh)
}

// cachedCycle is the read side of the dashboard cache.
type cachedCycle interface {
	Last(ctx context.Context) (logic.RestCycle, bool, error)
}

// restoreLast seeds the tracker with the cycle cached before a restart.
func restoreLast(ctx context.Context, src cachedCycle, tracker *status.Tracker) {
	c, ok, err := src.Last(ctx)
	if err != nil {
		log.Printf("failed to restore last rest cycle: %v", err)
		return
	}
	if !ok {
		return
	}
	tracker.SetLast(c)
	log.Printf("restored last rest cycle started %s", c.StartTime.UTC().Format(time.RFC3339))
}

// forwardCycles returns a LastCycle subscriber that queues cycles on ch
// without blocking.
func forwardCycles(ch chan<- logic.RestCycle) func(logic.RestCycle) {
	return func(c logic.RestCycle) {
		select {
		case ch <- c:
		default:
			log.Printf("cycle queue full, dropping rest cycle started %s", c.StartTime.UTC().Format(time.RFC3339))
		}
	}
}

// detector is the part of restmon.Detector the loop drives.
type detector interface {
	State() restmon.State
	Close() error
}

type cycleArchive interface {
	InsertCycle(ctx context.Context, c logic.RestCycle) (bool, error)
}

type cycleCache interface {
	Cache(ctx context.Context, c logic.RestCycle) error
}

// cycleSinks are the optional destinations for emitted cycles besides MQTT.
// A nil field is skipped.
type cycleSinks struct {
	history   cycleArchive
	dashboard cycleCache
	metrics   *metrics.Metrics
}

func runLoop(det detector, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, sinks cycleSinks, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, cycles <-chan logic.RestCycle, sig <-chan os.Signal) error {
	startTime := now()
	hb := restmon.NewHeartbeat(startTime, heartbeat)

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)

			// Stop intake first so every cycle the detector emits is queued
			// before the drain below.
			if err := det.Close(); err != nil {
				log.Printf("failed to close detector: %v", err)
			}
			for drained := false; !drained; {
				select {
				case c := <-cycles:
					writeCycle(c, publisher, tracker, sinks)
				default:
					drained = true
				}
			}

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refreshTracker(tracker, det, mqttStatus)
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case c := <-cycles:
			writeCycle(c, publisher, tracker, sinks)

		case <-tick:
			t := now()
			st := det.State()

			if hbData := hb.Check(t, st.Counts); hbData != nil {
				log.Printf("heartbeat: uptime=%v samples=%d emitted=%d discarded=%d resting=%t",
					hbData.Uptime, hbData.Counts.Samples, hbData.Counts.Emitted,
					hbData.Counts.DiscardedShort+hbData.Counts.DiscardedGain, st.Open != nil)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					refreshTracker(tracker, det, mqttStatus)
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			// Update status tracker for HTTP consumers
			if tracker != nil {
				refreshTracker(tracker, det, mqttStatus)
			}
		}
	}
}

func refreshTracker(tracker *status.Tracker, det detector, mqttStatus mqtt.ConnectionStatus) {
	st := det.State()
	tracker.Update(st.Open, st.Counts, st.LastSample)
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

// writeCycle delivers an emitted cycle to every destination. Failures are
// logged and counted; the cycle is still offered to the remaining ones.
func writeCycle(c logic.RestCycle, publisher mqtt.Publisher, tracker *status.Tracker, sinks cycleSinks) {
	if tracker != nil {
		tracker.SetLast(c)
	}

	if err := publisher.Publish(c); err != nil {
		log.Printf("publish error: %v", err)
		sinks.metrics.WriteError("mqtt")
		// Don't crash on publish failure
	}

	if sinks.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		inserted, err := sinks.history.InsertCycle(ctx, c)
		cancel()
		switch {
		case err != nil:
			log.Printf("history: %v", err)
			sinks.metrics.WriteError("history")
		case !inserted:
			log.Printf("history: rest cycle %s already archived", c.StartTime.UTC().Format(time.RFC3339))
		}
	}

	if sinks.dashboard != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := sinks.dashboard.Cache(ctx, c)
		cancel()
		if err != nil {
			log.Printf("dashboard: %v", err)
			sinks.metrics.WriteError("dashboard")
		}
	}
}
