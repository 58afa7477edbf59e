package telemetry

import (
	"errors"
	"sync"

	"github.com/sweeney/rest-monitor/internal/logic"
)

// FakeSource is a test double that delivers samples pushed by the test.
type FakeSource struct {
	mu       sync.Mutex
	handlers map[int]Handler
	next     int

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Unsubscribed counts Unsubscribe calls that removed a handler.
	Unsubscribed int
}

// NewFakeSource creates a FakeSource with no subscribers.
func NewFakeSource() *FakeSource {
	return &FakeSource{handlers: make(map[int]Handler)}
}

// Subscribe records h.
func (f *FakeSource) Subscribe(h Handler) (Subscription, error) {
	if f.SubscribeError != nil {
		return nil, f.SubscribeError
	}
	if h == nil {
		return nil, errors.New("telemetry: nil handler")
	}

	f.mu.Lock()
	id := f.next
	f.next++
	f.handlers[id] = h
	f.mu.Unlock()

	return SubscriptionFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.handlers[id]; ok {
			delete(f.handlers, id)
			f.Unsubscribed++
		}
		return nil
	}), nil
}

// Push delivers s to every current subscriber, one at a time.
func (f *FakeSource) Push(s logic.Sample) {
	f.mu.Lock()
	hs := make([]Handler, 0, len(f.handlers))
	for i := 0; i < f.next; i++ {
		if h, ok := f.handlers[i]; ok {
			hs = append(hs, h)
		}
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(s)
	}
}

// PushAll delivers samples in order.
func (f *FakeSource) PushAll(samples []logic.Sample) {
	for _, s := range samples {
		f.Push(s)
	}
}

// Subscribers returns the number of active handlers.
func (f *FakeSource) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
