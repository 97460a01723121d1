package stream

import (
	"sync"
	"time"

	"capstan/internal/api"
)

// Handler receives dispatched events. Handlers run on the read loop
// goroutine and must not block.
type Handler func(api.Event)

// EventAny subscribes a listener to every event type.
const EventAny = "*"

// dispatcher fans events out to registered listeners. Dispatch is always
// invoked from a single goroutine (the read loop), so delivery order matches
// arrival order.
type dispatcher struct {
	mu        sync.Mutex
	nextToken int
	listeners map[string]map[int]Handler
	waiters   map[string][]*waiter
}

// waiter is one armed waitFor call. done has capacity 1 and receives at
// most one event.
type waiter struct {
	pred func(api.Event) bool
	done chan api.Event
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		listeners: make(map[string]map[int]Handler),
		waiters:   make(map[string][]*waiter),
	}
}

// on registers a listener for one event type (or EventAny) and returns a
// cancel function. Cancel is idempotent.
func (d *dispatcher) on(eventType string, fn Handler) func() {
	d.mu.Lock()
	d.nextToken++
	token := d.nextToken
	set, ok := d.listeners[eventType]
	if !ok {
		set = make(map[int]Handler)
		d.listeners[eventType] = set
	}
	set[token] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if set, ok := d.listeners[eventType]; ok {
				delete(set, token)
				if len(set) == 0 {
					delete(d.listeners, eventType)
				}
			}
			d.mu.Unlock()
		})
	}
}

// dispatch delivers an event to its type listeners and the wildcard
// listeners, then resolves at most one pending wait.
func (d *dispatcher) dispatch(event api.Event) {
	for _, fn := range d.snapshot(event.Type) {
		fn(event)
	}
	if event.Type != EventAny {
		for _, fn := range d.snapshot(EventAny) {
			fn(event)
		}
	}
	d.resolveWait(event)
}

// resolveWait pops the oldest pending wait whose predicate matches. Waits
// behind it stay armed for later events.
func (d *dispatcher) resolveWait(event api.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.popWaiterLocked(event.Type, event) {
		return
	}
	if event.Type != EventAny {
		d.popWaiterLocked(EventAny, event)
	}
}

func (d *dispatcher) popWaiterLocked(key string, event api.Event) bool {
	queue := d.waiters[key]
	for i, w := range queue {
		if w.pred != nil && !w.pred(event) {
			continue
		}
		w.done <- event
		queue = append(queue[:i], queue[i+1:]...)
		if len(queue) == 0 {
			delete(d.waiters, key)
		} else {
			d.waiters[key] = queue
		}
		return true
	}
	return false
}

func (d *dispatcher) removeWaiter(key string, target *waiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	queue := d.waiters[key]
	for i, w := range queue {
		if w != target {
			continue
		}
		queue = append(queue[:i], queue[i+1:]...)
		if len(queue) == 0 {
			delete(d.waiters, key)
		} else {
			d.waiters[key] = queue
		}
		return
	}
}

// snapshot copies the listener set so handlers can register or cancel
// listeners while dispatch is in flight.
func (d *dispatcher) snapshot(eventType string) []Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.listeners[eventType]
	if len(set) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}

// waitFor blocks until an event of the given type satisfies pred or the
// timeout elapses. Concurrent waits for the same type queue up in arrival
// order and each matching event resolves only the oldest matching wait; the
// rest stay armed. The timer and queue slot are always released.
func (d *dispatcher) waitFor(eventType string, pred func(api.Event) bool, timeout time.Duration) (api.Event, error) {
	w := &waiter{pred: pred, done: make(chan api.Event, 1)}
	d.mu.Lock()
	d.waiters[eventType] = append(d.waiters[eventType], w)
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event := <-w.done:
		return event, nil
	case <-timer.C:
		d.removeWaiter(eventType, w)
		// A resolve may have won the race with the timer.
		select {
		case event := <-w.done:
			return event, nil
		default:
		}
		return api.Event{}, ErrWaitTimeout
	}
}
