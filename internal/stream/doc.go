// Package stream maintains the realtime event connection to the
// orchestrator.
//
// # Lifecycle
//
// A Conn moves between disconnected, connecting, connected, reconnecting,
// and closing. Connect dials and starts two goroutines per session: a read
// loop that decodes and dispatches frames, and a heartbeat loop that sends
// periodic pings and force-closes the socket after prolonged inbound
// silence. Any inbound frame counts as liveness, not just heartbeats.
//
// # Subscriptions
//
// Subscriptions are registered against the Conn, not the socket. Every
// successful dial replays them, one subscribe frame per event type, before
// the connected state is published, so listeners observing the transition
// can rely on subscriptions being active. Removing an unknown subscription
// id is a no-op.
//
// # Reconnects
//
// Unintentional socket loss triggers the reconnect loop: capped exponential
// backoff with jitter, a bounded attempt budget, and exactly one terminal
// error through the error handler when the budget is spent. Close sets an
// intentional-close flag first, so the read loop settles into disconnected
// instead of reconnecting. A closed Conn can Connect again.
//
// # Delivery
//
// Events are dispatched from the single read loop goroutine, so listener
// invocation order matches arrival order. Heartbeats update the
// server-assigned connection id and still reach listeners. Malformed frames
// go to the decode error handler (default: log and drop). WaitFor blocks for
// one matching event with a timeout; concurrent waits for the same type
// queue in arrival order and each event resolves only the oldest matching
// wait. The timer and queue slot are always released.
//
// # Testing
//
// The dialer is injected, so tests drive the state machine with scripted
// fake sockets and an injectable reconnect sleeper.
package stream
