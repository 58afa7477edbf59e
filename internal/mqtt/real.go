package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/rest-monitor/internal/logic"
	"github.com/sweeney/rest-monitor/internal/telemetry"
)

// Options configures the broker connection.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	VehicleID      string
	TelemetryTopic string
	CycleTopic     string
	SystemTopic    string
	OutboxSize     int // messages kept while disconnected
}

func (o *Options) applyDefaults() {
	if o.ClientID == "" {
		o.ClientID = "rest-monitor"
	}
	if o.TelemetryTopic == "" {
		o.TelemetryTopic = DefaultTelemetryTopic
	}
	if o.CycleTopic == "" {
		o.CycleTopic = DefaultCycleTopic
	}
	if o.SystemTopic == "" {
		o.SystemTopic = DefaultSystemTopic
	}
	if o.OutboxSize == 0 {
		o.OutboxSize = 100
	}
}

// RealClient is connected to an actual MQTT broker. It publishes rest cycles
// and system events, and is the telemetry source for the detector.
type RealClient struct {
	client paho.Client
	opts   Options

	mu      sync.Mutex
	outbox  *outbox
	handler telemetry.Handler
}

// NewRealClient connects to the broker. If the broker is not reachable within
// the connect timeout the client keeps retrying in the background and
// messages are queued until it connects.
func NewRealClient(opts Options) (*RealClient, error) {
	opts.applyDefaults()
	c := &RealClient{
		opts:   opts,
		outbox: newOutbox(opts.OutboxSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(true).
		SetBinaryWill(opts.SystemTopic, will, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})
	if opts.Username != "" {
		po.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", opts.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// onConnect restores the telemetry subscription and flushes queued messages.
func (c *RealClient) onConnect(client paho.Client) {
	log.Printf("mqtt: connected to %s", c.opts.Broker)

	c.mu.Lock()
	h := c.handler
	queued, dropped := c.outbox.drain()
	c.mu.Unlock()

	if h != nil {
		token := client.Subscribe(c.opts.TelemetryTopic, 1, messageHandler(h))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("mqtt: resubscribe %s: %v", c.opts.TelemetryTopic, token.Error())
		}
	}

	if dropped > 0 {
		log.Printf("mqtt: %d queued messages were dropped while disconnected", dropped)
	}
	for _, m := range queued {
		client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if len(queued) > 0 {
		log.Printf("mqtt: replayed %d queued messages", len(queued))
	}
}

// messageHandler decodes telemetry payloads and passes them to h. Malformed
// payloads are logged and dropped.
func messageHandler(h telemetry.Handler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		s, err := ParseSample(m.Payload())
		if err != nil {
			log.Printf("mqtt: dropping sample on %s: %v", m.Topic(), err)
			return
		}
		h(s)
	}
}

// Subscribe starts delivering telemetry samples to h. Only one handler may be
// subscribed at a time. paho delivers messages in order on a single
// goroutine, so h is never invoked concurrently.
func (c *RealClient) Subscribe(h telemetry.Handler) (telemetry.Subscription, error) {
	if h == nil {
		return nil, errors.New("mqtt: nil handler")
	}
	c.mu.Lock()
	if c.handler != nil {
		c.mu.Unlock()
		return nil, errors.New("mqtt: telemetry already subscribed")
	}
	c.handler = h
	c.mu.Unlock()

	// While disconnected, onConnect subscribes once the broker is reachable.
	if c.client.IsConnectionOpen() {
		token := c.client.Subscribe(c.opts.TelemetryTopic, 1, messageHandler(h))
		if !token.WaitTimeout(5 * time.Second) {
			return nil, fmt.Errorf("subscribe %s: timeout", c.opts.TelemetryTopic)
		}
		if err := token.Error(); err != nil {
			c.mu.Lock()
			c.handler = nil
			c.mu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", c.opts.TelemetryTopic, err)
		}
	}

	return telemetry.SubscriptionFunc(c.unsubscribe), nil
}

func (c *RealClient) unsubscribe() error {
	c.mu.Lock()
	had := c.handler != nil
	c.handler = nil
	c.mu.Unlock()

	if !had || !c.client.IsConnectionOpen() {
		return nil
	}
	token := c.client.Unsubscribe(c.opts.TelemetryTopic)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("unsubscribe %s: timeout", c.opts.TelemetryTopic)
	}
	return token.Error()
}

// Publish sends an emitted rest cycle, retained so that late subscribers see
// the latest cycle.
func (c *RealClient) Publish(cycle logic.RestCycle) error {
	payload, err := FormatPayload(c.opts.VehicleID, cycle)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return c.publish(outgoing{topic: c.opts.CycleTopic, payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(outgoing{topic: c.opts.SystemTopic, payload: payload, qos: 1, retained: event.Retained})
}

// publish sends m now, or queues it if the broker is unreachable.
func (c *RealClient) publish(m outgoing) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.outbox.add(m)
		c.mu.Unlock()
		return nil
	}

	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}

var (
	_ Publisher        = (*RealClient)(nil)
	_ ConnectionStatus = (*RealClient)(nil)
	_ telemetry.Source = (*RealClient)(nil)
)
