// Package api defines the wire types shared between the orchestrator's HTTP
// surface and its event stream.
//
// The HTTP side wraps every response in a success/error envelope; the stream
// side frames every inbound message as an Event and every outbound control
// message as a typed frame (subscribe, unsubscribe, ping). Resource payloads
// are intentionally thin: the orchestrator owns their semantics, this layer
// only moves them.
//
// Keep new endpoint DTOs here so the client and the CLI agree on field names
// without importing each other.
package api
