package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"capstan/internal/api"
)

// fakeSocket is a scripted in-memory socket. Tests push inbound frames with
// deliver and inspect outbound frames with writesSnapshot.
type fakeSocket struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte

	// onWrite, when set, runs after each recorded write, outside the
	// socket lock so it may write again.
	onWrite func([]byte)
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case data := <-s.in:
		return data, nil
	case <-s.closed:
		return nil, errors.New("socket closed")
	}
}

func (s *fakeSocket) WriteMessage(data []byte) error {
	select {
	case <-s.closed:
		return errors.New("socket closed")
	default:
	}
	s.mu.Lock()
	s.writes = append(s.writes, append([]byte(nil), data...))
	hook := s.onWrite
	s.mu.Unlock()
	if hook != nil {
		hook(data)
	}
	return nil
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) deliver(t *testing.T, frame []byte) {
	t.Helper()
	select {
	case s.in <- frame:
	case <-time.After(time.Second):
		t.Fatal("deliver blocked")
	}
}

func (s *fakeSocket) writesSnapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

func (s *fakeSocket) subscribeWriteCount() int {
	count := 0
	for _, data := range s.writesSnapshot() {
		var frame api.SubscribeFrame
		if json.Unmarshal(data, &frame) == nil && frame.Type == api.FrameSubscribe {
			count++
		}
	}
	return count
}

// fakeDialer returns scripted sockets in order. A nil entry scripts a dial
// failure. Past the script every dial fails.
type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	calls   int
}

func (d *fakeDialer) DialContext(ctx context.Context, url string, header http.Header) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls > len(d.sockets) || d.sockets[d.calls-1] == nil {
		return nil, errors.New("dial refused")
	}
	return d.sockets[d.calls-1], nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func eventFrame(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(api.Event{
		Type:          eventType,
		Payload:       raw,
		Timestamp:     time.Now().UTC(),
		CorrelationID: "corr-1",
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return data
}

// newTestConn wires a Conn to the fake dialer with fast timings, a no-op
// reconnect sleeper, and zero jitter. The states channel observes every
// transition.
func newTestConn(t *testing.T, dialer Dialer, cfg Config, opts ...Option) (*Conn, chan State) {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "ws://orchestrator.test/stream"
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Minute
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = time.Minute
	}
	base := []Option{
		WithDialer(dialer),
		WithSleeper(func(time.Duration) {}),
		WithJitter(func() time.Duration { return 0 }),
	}
	conn := NewConn(cfg, append(base, opts...)...)
	states := make(chan State, 32)
	conn.OnStateChange(func(s State) { states <- s })
	t.Cleanup(func() { _ = conn.Close() })
	return conn, states
}

func awaitState(t *testing.T, states chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func awaitEvent(t *testing.T, events chan api.Event) api.Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return api.Event{}
	}
}
