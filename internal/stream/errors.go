package stream

import (
	"errors"
	"fmt"
)

// ErrWaitTimeout is returned by WaitFor when no matching event arrives
// before the deadline.
var ErrWaitTimeout = errors.New("stream: wait timed out")

// ErrAlreadyConnected is returned by Connect while a session is active.
var ErrAlreadyConnected = errors.New("stream: already connected")

// ErrHeartbeatTimeout marks a forced close after prolonged inbound silence.
var ErrHeartbeatTimeout = errors.New("stream: heartbeat timeout")

// ReconnectsExhaustedError is the terminal failure raised once when the
// reconnect budget runs out. Last carries the final dial error.
type ReconnectsExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ReconnectsExhaustedError) Error() string {
	return fmt.Sprintf("stream: gave up reconnecting after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ReconnectsExhaustedError) Unwrap() error { return e.Last }

// DecodeError wraps an inbound frame that could not be parsed as an event
// envelope. The raw frame is preserved for the decode error handler.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream: decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
