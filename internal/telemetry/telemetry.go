// Package telemetry defines the push-based source of vehicle samples.
// The real implementation subscribes to an MQTT topic (see internal/mqtt).
// The fake implementation allows testing without a broker.
package telemetry

import "github.com/sweeney/rest-monitor/internal/logic"

// Handler receives one sample per update.
type Handler func(logic.Sample)

// Source delivers samples to subscribed handlers.
type Source interface {
	// Subscribe registers h for every future sample. Implementations must not
	// invoke the same handler concurrently.
	Subscribe(h Handler) (Subscription, error)
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe stops future deliveries. It does not wait for or flush
	// any delivery already in progress.
	Unsubscribe() error
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func() error

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() error { return f() }
