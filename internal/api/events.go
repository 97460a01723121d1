package api

import (
	"encoding/json"
	"time"
)

// Event type catalog for the stream surface. The server only emits types from
// this list; unknown types are still delivered to wildcard listeners so newer
// servers stay compatible with older clients.
const (
	EventTaskCreated      = "task.created"
	EventTaskUpdated      = "task.updated"
	EventTaskCompleted    = "task.completed"
	EventTaskFailed       = "task.failed"
	EventStatusChanged    = "status.changed"
	EventApprovalRequired = "approval.required"
	EventApprovalResolved = "approval.resolved"
	EventLogMessage       = "log.message"
	EventHeartbeat        = "heartbeat"
)

// Event is the envelope around every inbound stream frame.
type Event struct {
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// HeartbeatPayload is the payload of heartbeat events.
type HeartbeatPayload struct {
	ConnectionID string `json:"connectionId"`
}

// Control frame type tags for outbound stream messages.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// SubscribeFrame registers interest in one event type, optionally narrowed by
// a keyed filter. A multi-event subscription sends one frame per event type,
// all carrying the same subscription id.
type SubscribeFrame struct {
	Type           string            `json:"type"`
	SubscriptionID string            `json:"subscriptionId"`
	Event          string            `json:"event"`
	Filter         map[string]string `json:"filter,omitempty"`
}

// UnsubscribeFrame removes every registration made under a subscription id.
type UnsubscribeFrame struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscriptionId"`
}

// PingFrame is the client-initiated liveness probe.
type PingFrame struct {
	Type string `json:"type"`
}
