package stream

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"capstan/internal/api"
)

// Selector names the event types a subscription covers and an optional
// payload filter. Every filter key must match the corresponding payload
// field for an event to be delivered.
type Selector struct {
	Events []string
	Filter map[string]string
}

type subscription struct {
	id       string
	selector Selector
}

// registry tracks active subscriptions independently of the connection so
// they survive reconnects. Replay order is subscription order.
type registry struct {
	mu   sync.Mutex
	subs []subscription
}

func newRegistry() *registry {
	return &registry{}
}

// add registers a selector and returns its subscription id.
func (r *registry) add(sel Selector) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.subs = append(r.subs, subscription{id: id, selector: sel})
	r.mu.Unlock()
	return id
}

// remove drops a subscription. Unknown ids are a no-op and report false.
func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub.id == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// frames builds the subscribe frames to send on (re)connect, in
// subscription order.
func (r *registry) frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]byte
	for _, sub := range r.subs {
		out = append(out, subscribeFrames(sub.id, sub.selector)...)
	}
	return out
}

// subscribeFrames builds one subscribe frame per event type, each carrying
// the subscription id and filter.
func subscribeFrames(id string, sel Selector) [][]byte {
	var out [][]byte
	for _, event := range sel.Events {
		data, err := json.Marshal(api.SubscribeFrame{
			Type:           api.FrameSubscribe,
			SubscriptionID: id,
			Event:          event,
			Filter:         sel.Filter,
		})
		if err != nil {
			continue
		}
		out = append(out, data)
	}
	return out
}

// unsubscribeFrame builds the frame announcing removal of a subscription.
func unsubscribeFrame(id string) []byte {
	data, _ := json.Marshal(api.UnsubscribeFrame{Type: api.FrameUnsubscribe, SubscriptionID: id})
	return data
}

// admit reports whether an event should reach listeners. Heartbeats always
// pass. When no subscription covers the event type the event passes
// unfiltered; otherwise at least one covering subscription's filter must
// match the payload.
func (r *registry) admit(event api.Event) bool {
	if event.Type == api.EventHeartbeat {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	covered := false
	for _, sub := range r.subs {
		if !containsString(sub.selector.Events, event.Type) {
			continue
		}
		covered = true
		if filterMatches(sub.selector.Filter, event.Payload) {
			return true
		}
	}
	return !covered
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want || v == "*" {
			return true
		}
	}
	return false
}

func filterMatches(filter map[string]string, payload json.RawMessage) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false
	}
	for key, want := range filter {
		got, ok := fields[key].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}
