package stream

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"capstan/internal/api"
)

// awaitWaiters polls until count waits are armed for eventType.
func awaitWaiters(t *testing.T, disp *dispatcher, eventType string, count int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		disp.mu.Lock()
		armed := len(disp.waiters[eventType])
		disp.mu.Unlock()
		if armed == count {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d armed waits", count)
}

func TestDispatcherFanOut(t *testing.T) {
	disp := newDispatcher()
	var typed, wildcard int
	disp.on(api.EventTaskCreated, func(api.Event) { typed++ })
	disp.on(EventAny, func(api.Event) { wildcard++ })

	disp.dispatch(api.Event{Type: api.EventTaskCreated})
	disp.dispatch(api.Event{Type: api.EventTaskFailed})

	if typed != 1 {
		t.Fatalf("typed listener called %d times", typed)
	}
	if wildcard != 2 {
		t.Fatalf("wildcard listener called %d times", wildcard)
	}
}

func TestDispatcherCancelIsIdempotent(t *testing.T) {
	disp := newDispatcher()
	var calls int
	cancel := disp.on(api.EventTaskCreated, func(api.Event) { calls++ })

	disp.dispatch(api.Event{Type: api.EventTaskCreated})
	cancel()
	cancel()
	disp.dispatch(api.Event{Type: api.EventTaskCreated})

	if calls != 1 {
		t.Fatalf("listener called %d times after cancel", calls)
	}
}

func TestWaitForResolvesOldestWaitOnly(t *testing.T) {
	disp := newDispatcher()

	type result struct {
		event api.Event
		err   error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		event, err := disp.waitFor(api.EventTaskCompleted, nil, 2*time.Second)
		first <- result{event, err}
	}()
	awaitWaiters(t, disp, api.EventTaskCompleted, 1)
	go func() {
		event, err := disp.waitFor(api.EventTaskCompleted, nil, 2*time.Second)
		second <- result{event, err}
	}()
	awaitWaiters(t, disp, api.EventTaskCompleted, 2)

	disp.dispatch(api.Event{Type: api.EventTaskCompleted, CorrelationID: "c-1"})

	res := <-first
	if res.err != nil {
		t.Fatalf("first wait failed: %v", res.err)
	}
	if res.event.CorrelationID != "c-1" {
		t.Fatalf("first wait got event %+v", res.event)
	}
	select {
	case res := <-second:
		t.Fatalf("second wait resolved on the first event: %+v, %v", res.event, res.err)
	case <-time.After(50 * time.Millisecond):
	}

	disp.dispatch(api.Event{Type: api.EventTaskCompleted, CorrelationID: "c-2"})
	res = <-second
	if res.err != nil {
		t.Fatalf("second wait failed: %v", res.err)
	}
	if res.event.CorrelationID != "c-2" {
		t.Fatalf("second wait got event %+v", res.event)
	}
}

func TestWaitForSkipsNonMatchingOlderWait(t *testing.T) {
	disp := newDispatcher()

	taskPred := func(id string) func(api.Event) bool {
		return func(event api.Event) bool {
			var payload struct {
				TaskID string `json:"taskId"`
			}
			return json.Unmarshal(event.Payload, &payload) == nil && payload.TaskID == id
		}
	}

	older := make(chan api.Event, 1)
	newer := make(chan api.Event, 1)
	go func() {
		event, _ := disp.waitFor(api.EventTaskCompleted, taskPred("t-1"), 2*time.Second)
		older <- event
	}()
	awaitWaiters(t, disp, api.EventTaskCompleted, 1)
	go func() {
		event, _ := disp.waitFor(api.EventTaskCompleted, taskPred("t-2"), 2*time.Second)
		newer <- event
	}()
	awaitWaiters(t, disp, api.EventTaskCompleted, 2)

	disp.dispatch(api.Event{Type: api.EventTaskCompleted, Payload: []byte(`{"taskId":"t-2"}`)})
	event := <-newer
	if !taskPred("t-2")(event) {
		t.Fatalf("newer wait got wrong event %+v", event)
	}
	select {
	case event := <-older:
		t.Fatalf("non-matching older wait resolved: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}

	disp.dispatch(api.Event{Type: api.EventTaskCompleted, Payload: []byte(`{"taskId":"t-1"}`)})
	event = <-older
	if !taskPred("t-1")(event) {
		t.Fatalf("older wait got wrong event %+v", event)
	}
}

func TestWaitForTimeoutReleasesQueueSlot(t *testing.T) {
	disp := newDispatcher()
	if _, err := disp.waitFor(api.EventTaskCompleted, nil, 10*time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	disp.mu.Lock()
	armed := len(disp.waiters[api.EventTaskCompleted])
	disp.mu.Unlock()
	if armed != 0 {
		t.Fatalf("expired wait still armed (%d in queue)", armed)
	}
}

func TestDispatcherListenerMayCancelDuringDispatch(t *testing.T) {
	disp := newDispatcher()
	var calls int
	var cancel func()
	cancel = disp.on(api.EventTaskCreated, func(api.Event) {
		calls++
		cancel()
	})

	disp.dispatch(api.Event{Type: api.EventTaskCreated})
	disp.dispatch(api.Event{Type: api.EventTaskCreated})
	if calls != 1 {
		t.Fatalf("self-cancelling listener called %d times", calls)
	}
}
