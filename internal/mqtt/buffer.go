package mqtt

import "log"

// outgoing is a serialized message waiting for the broker.
type outgoing struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while disconnected, oldest first.
// When full, the oldest message is dropped.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	msgs    []outgoing
	start   int // index of the oldest message
	count   int
	dropped int // messages lost since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{msgs: make([]outgoing, capacity)}
}

func (o *outbox) add(m outgoing) {
	n := len(o.msgs)
	if o.count == n {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", n)
		}
		o.dropped++
		o.msgs[o.start] = m
		o.start = (o.start + 1) % n
		return
	}
	o.msgs[(o.start+o.count)%n] = m
	o.count++
}

// drain removes and returns every queued message, oldest first, along with
// how many were dropped while the outbox was full.
func (o *outbox) drain() ([]outgoing, int) {
	dropped := o.dropped
	o.dropped = 0
	if o.count == 0 {
		return nil, dropped
	}

	n := len(o.msgs)
	out := make([]outgoing, o.count)
	for i := range out {
		out[i] = o.msgs[(o.start+i)%n]
		o.msgs[(o.start+i)%n] = outgoing{}
	}
	o.start, o.count = 0, 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.count
}
