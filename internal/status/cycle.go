package status

import (
	"sync"

	"github.com/sweeney/rest-monitor/internal/logic"
)

// LastCycle holds the most recently emitted rest cycle. Set overwrites the
// previous value and notifies subscribers. Safe for concurrent use.
type LastCycle struct {
	mu     sync.RWMutex
	cycle  *logic.RestCycle
	nextID int
	subs   map[int]func(logic.RestCycle)
	order  []int
}

// NewLastCycle creates an empty cell.
func NewLastCycle() *LastCycle {
	return &LastCycle{subs: make(map[int]func(logic.RestCycle))}
}

// Set stores c and notifies subscribers in registration order.
// Callbacks run on the caller's goroutine, outside the lock.
func (l *LastCycle) Set(c logic.RestCycle) {
	l.mu.Lock()
	l.cycle = &c
	fns := make([]func(logic.RestCycle), 0, len(l.order))
	for _, id := range l.order {
		fns = append(fns, l.subs[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Get returns the current cycle and whether one has been set.
func (l *LastCycle) Get() (logic.RestCycle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cycle == nil {
		return logic.RestCycle{}, false
	}
	return *l.cycle, true
}

// Subscribe registers fn to be called on every Set. The returned function
// removes the subscription; calling it more than once is a no-op.
func (l *LastCycle) Subscribe(fn func(logic.RestCycle)) (cancel func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.order = append(l.order, id)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[id]; !ok {
			return
		}
		delete(l.subs, id)
		for i, v := range l.order {
			if v == id {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}
}
