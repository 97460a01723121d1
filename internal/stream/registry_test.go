package stream

import (
	"encoding/json"
	"testing"

	"capstan/internal/api"
)

func rawPayload(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestRegistryAdmit(t *testing.T) {
	reg := newRegistry()
	reg.add(Selector{Events: []string{api.EventTaskUpdated}, Filter: map[string]string{"taskId": "t-1"}})

	match := api.Event{Type: api.EventTaskUpdated, Payload: rawPayload(t, map[string]string{"taskId": "t-1"})}
	if !reg.admit(match) {
		t.Fatal("matching event rejected")
	}
	mismatch := api.Event{Type: api.EventTaskUpdated, Payload: rawPayload(t, map[string]string{"taskId": "t-2"})}
	if reg.admit(mismatch) {
		t.Fatal("mismatched event admitted")
	}

	// Types nothing subscribes to pass through unfiltered.
	uncovered := api.Event{Type: api.EventLogMessage, Payload: rawPayload(t, map[string]string{"message": "hi"})}
	if !reg.admit(uncovered) {
		t.Fatal("uncovered event rejected")
	}

	// Heartbeats always pass.
	hb := api.Event{Type: api.EventHeartbeat, Payload: rawPayload(t, api.HeartbeatPayload{ConnectionID: "c"})}
	if !reg.admit(hb) {
		t.Fatal("heartbeat rejected")
	}
}

func TestRegistryAdmitAnyMatchingSubscriptionWins(t *testing.T) {
	reg := newRegistry()
	reg.add(Selector{Events: []string{api.EventTaskUpdated}, Filter: map[string]string{"taskId": "t-1"}})
	reg.add(Selector{Events: []string{api.EventTaskUpdated}})

	other := api.Event{Type: api.EventTaskUpdated, Payload: rawPayload(t, map[string]string{"taskId": "t-9"})}
	if !reg.admit(other) {
		t.Fatal("unfiltered subscription should admit the event")
	}
}

func TestRegistryFramesOrderAndRemoval(t *testing.T) {
	reg := newRegistry()
	first := reg.add(Selector{Events: []string{api.EventTaskCreated, api.EventTaskFailed}})
	second := reg.add(Selector{Events: []string{api.EventStatusChanged}})

	frames := reg.frames()
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	var head api.SubscribeFrame
	if err := json.Unmarshal(frames[0], &head); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if head.SubscriptionID != first || head.Event != api.EventTaskCreated {
		t.Fatalf("replay order broken: %+v", head)
	}

	if !reg.remove(first) {
		t.Fatal("remove of known id reported false")
	}
	if reg.remove(first) {
		t.Fatal("second remove must report false")
	}
	frames = reg.frames()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame after removal, got %d", len(frames))
	}
	var rest api.SubscribeFrame
	_ = json.Unmarshal(frames[0], &rest)
	if rest.SubscriptionID != second {
		t.Fatalf("wrong surviving subscription: %+v", rest)
	}
}

func TestWildcardSelectorCoversAllTypes(t *testing.T) {
	reg := newRegistry()
	reg.add(Selector{Events: []string{"*"}, Filter: map[string]string{"agentId": "a-1"}})

	match := api.Event{Type: api.EventTaskFailed, Payload: rawPayload(t, map[string]string{"agentId": "a-1"})}
	if !reg.admit(match) {
		t.Fatal("wildcard subscription should cover every type")
	}
	mismatch := api.Event{Type: api.EventTaskFailed, Payload: rawPayload(t, map[string]string{"agentId": "a-2"})}
	if reg.admit(mismatch) {
		t.Fatal("wildcard filter not applied")
	}
}
