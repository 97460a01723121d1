package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"capstan/internal/api"
	"capstan/internal/backoff"
)

const (
	defaultReconnectInterval = time.Second
	defaultMaxReconnects     = 10
	defaultHeartbeatInterval = 30 * time.Second
	defaultHeartbeatTimeout  = 10 * time.Second
	maxReconnectDelay        = 30 * time.Second
)

// Config captures the runtime settings for the event stream connection.
type Config struct {
	URL                  string
	Token                string
	AutoReconnect        bool
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
}

// Conn maintains one logical connection to the orchestrator event stream.
// Subscriptions registered on it outlive the underlying socket: every
// (re)connect replays them before the connected state is published.
type Conn struct {
	cfg     Config
	dialer  Dialer
	logger  *slog.Logger
	sleeper func(time.Duration)

	strategy     backoff.Strategy
	decodeErrFn  func(*DecodeError)
	errHandlerFn func(error)

	reg  *registry
	disp *dispatcher

	mu           sync.Mutex
	state        State
	socket       Socket
	gen          int
	closing      bool
	closeCause   error
	connectionID string

	// per-session channels; replaced on every successful dial
	sessionDone chan struct{}
	activity    chan struct{}

	stateToken     int
	stateListeners map[int]func(State)
}

// Option customizes the connection.
type Option func(*Conn)

// WithDialer overrides the default websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Conn) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger attaches a logger for connection lifecycle visibility.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSleeper overrides how reconnect delays are waited out (useful for
// tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Conn) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithJitter overrides the reconnect backoff jitter source.
func WithJitter(jitter func() time.Duration) Option {
	return func(c *Conn) {
		c.strategy.Jitter = jitter
	}
}

// WithDecodeErrorHandler installs a handler for inbound frames that fail to
// parse. Without one, malformed frames are logged and dropped.
func WithDecodeErrorHandler(fn func(*DecodeError)) Option {
	return func(c *Conn) {
		c.decodeErrFn = fn
	}
}

// WithErrorHandler installs a handler for terminal connection failures,
// such as reconnect exhaustion. Without one, failures are logged.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Conn) {
		c.errHandlerFn = fn
	}
}

// NewConn constructs a stream connection. It does not dial; call Connect.
func NewConn(cfg Config, opts ...Option) *Conn {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnects
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = defaultHeartbeatTimeout
	}

	c := &Conn{
		cfg:            cfg,
		dialer:         NewDialer(),
		logger:         slog.Default(),
		sleeper:        time.Sleep,
		strategy:       backoff.Strategy{Base: cfg.ReconnectInterval, Max: maxReconnectDelay},
		reg:            newRegistry(),
		disp:           newDispatcher(),
		state:          StateDisconnected,
		stateListeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the server-assigned id from the latest heartbeat,
// or empty before the first heartbeat arrives.
func (c *Conn) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// OnStateChange registers a listener for state transitions and returns a
// cancel function.
func (c *Conn) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	c.stateToken++
	token := c.stateToken
	c.stateListeners[token] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.stateListeners, token)
			c.mu.Unlock()
		})
	}
}

// On registers an event listener. EventAny receives every event. The
// returned cancel function is idempotent.
func (c *Conn) On(eventType string, fn Handler) func() {
	return c.disp.on(eventType, fn)
}

// WaitFor blocks until an event of the given type satisfies pred or the
// timeout elapses, returning ErrWaitTimeout in the latter case.
func (c *Conn) WaitFor(eventType string, pred func(api.Event) bool, timeout time.Duration) (api.Event, error) {
	return c.disp.waitFor(eventType, pred, timeout)
}

// Connect dials the stream and starts the read and heartbeat loops.
// Registered subscriptions are replayed before the connected state is
// published. Calling Connect on an active connection fails with
// ErrAlreadyConnected.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.closing = false
	c.mu.Unlock()
	c.setState(StateConnecting)

	sock, err := c.dialer.DialContext(ctx, c.dialURL(), c.dialHeader())
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("stream: connect: %w", err)
	}
	if err := c.startSession(sock); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("stream: connect: %w", err)
	}
	return nil
}

// Close tears the connection down intentionally. No reconnect is attempted
// and a later Connect starts fresh.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closing = true
	sock := c.socket
	c.mu.Unlock()

	if sock == nil {
		c.setState(StateDisconnected)
		return nil
	}
	c.setState(StateClosing)
	return sock.Close()
}

// Subscribe registers a selector and returns its subscription id. When a
// socket is up the subscribe frames are sent immediately; either way the
// subscription is replayed on every future (re)connect.
//
// Registration and the socket read happen in one critical section that
// startSession also serializes with, so a subscription either lands in a
// session's replay snapshot or is written directly. It is never dropped
// into the gap between the two, and never sent twice.
func (c *Conn) Subscribe(sel Selector) (string, error) {
	if len(sel.Events) == 0 {
		return "", errors.New("stream: subscribe: at least one event type required")
	}
	c.mu.Lock()
	id := c.reg.add(sel)
	sock := c.socket
	c.mu.Unlock()

	if sock != nil {
		for _, frame := range subscribeFrames(id, sel) {
			if err := sock.WriteMessage(frame); err != nil {
				// Registration stands; the frames go out on the next replay.
				return id, fmt.Errorf("stream: subscribe: %w", err)
			}
		}
	}
	return id, nil
}

// Unsubscribe removes a subscription. Unknown ids are a no-op.
func (c *Conn) Unsubscribe(id string) error {
	c.mu.Lock()
	removed := c.reg.remove(id)
	sock := c.socket
	c.mu.Unlock()
	if !removed {
		return nil
	}
	if sock != nil {
		if err := sock.WriteMessage(unsubscribeFrame(id)); err != nil {
			return fmt.Errorf("stream: unsubscribe: %w", err)
		}
	}
	return nil
}

// startSession installs a freshly dialed socket, replays subscriptions, and
// launches the read and heartbeat loops. The connected state is published
// only after replay succeeds.
func (c *Conn) startSession(sock Socket) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		sock.Close()
		return errors.New("connection closed")
	}
	c.gen++
	gen := c.gen
	done := make(chan struct{})
	activity := make(chan struct{}, 1)
	c.socket = sock
	c.sessionDone = done
	c.activity = activity
	// Snapshot under the same lock that Subscribe registers under, so no
	// subscription can fall between the snapshot and the socket install.
	frames := c.reg.frames()
	c.mu.Unlock()

	for _, frame := range frames {
		if err := sock.WriteMessage(frame); err != nil {
			sock.Close()
			c.mu.Lock()
			if c.gen == gen {
				c.socket = nil
			}
			c.mu.Unlock()
			return fmt.Errorf("replay subscriptions: %w", err)
		}
	}

	go c.readLoop(gen, sock)
	go c.heartbeatLoop(gen, sock, done, activity)
	c.setState(StateConnected)
	return nil
}

func (c *Conn) readLoop(gen int, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}
		c.noteActivity(gen)
		c.handleFrame(data)
	}
}

// noteActivity marks inbound traffic for the heartbeat monitor. Any frame
// counts, not just heartbeats.
func (c *Conn) noteActivity(gen int) {
	c.mu.Lock()
	activity := c.activity
	stale := c.gen != gen
	c.mu.Unlock()
	if stale || activity == nil {
		return
	}
	select {
	case activity <- struct{}{}:
	default:
	}
}

func (c *Conn) handleFrame(data []byte) {
	var event api.Event
	if err := json.Unmarshal(data, &event); err != nil {
		c.handleDecodeError(&DecodeError{Data: data, Err: err})
		return
	}
	if event.Type == "" {
		c.handleDecodeError(&DecodeError{Data: data, Err: errors.New("missing event type")})
		return
	}

	if event.Type == api.EventHeartbeat {
		var hb api.HeartbeatPayload
		if err := json.Unmarshal(event.Payload, &hb); err == nil && hb.ConnectionID != "" {
			c.mu.Lock()
			c.connectionID = hb.ConnectionID
			c.mu.Unlock()
		}
		c.disp.dispatch(event)
		return
	}
	if !c.reg.admit(event) {
		return
	}
	c.disp.dispatch(event)
}

func (c *Conn) handleDecodeError(derr *DecodeError) {
	if c.decodeErrFn != nil {
		c.decodeErrFn(derr)
		return
	}
	c.logger.Warn("dropping malformed stream frame", "error", derr.Err, "bytes", len(derr.Data))
}

// heartbeatLoop sends periodic pings. Each ping arms a timeout window that
// any inbound frame disarms; if the window expires the socket is forced
// closed so the read loop can drive a reconnect.
func (c *Conn) heartbeatLoop(gen int, sock Socket, done <-chan struct{}, activity <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	timer := time.NewTimer(c.cfg.HeartbeatTimeout)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	armed := false

	ping, _ := json.Marshal(api.PingFrame{Type: api.FramePing})
	for {
		select {
		case <-done:
			return
		case <-activity:
			if armed {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				armed = false
			}
		case <-ticker.C:
			if err := sock.WriteMessage(ping); err != nil {
				c.logger.Debug("heartbeat ping failed", "error", err)
			}
			if !armed {
				timer.Reset(c.cfg.HeartbeatTimeout)
				armed = true
			}
		case <-timer.C:
			c.logger.Warn("heartbeat timeout, forcing close",
				"timeout", c.cfg.HeartbeatTimeout)
			c.forceClose(gen, sock)
			return
		}
	}
}

// forceClose closes the socket of a live session so the read loop unblocks
// and drives the reconnect path. Stale generations are ignored.
func (c *Conn) forceClose(gen int, sock Socket) {
	c.mu.Lock()
	stale := c.gen != gen
	if !stale {
		c.closeCause = ErrHeartbeatTimeout
	}
	c.mu.Unlock()
	if stale {
		return
	}
	sock.Close()
}

// handleReadError runs on the read loop when the socket dies. It stops the
// session's heartbeat loop and either settles into disconnected (intentional
// close, reconnect disabled) or kicks off the reconnect loop.
func (c *Conn) handleReadError(gen int, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.sessionDone != nil {
		close(c.sessionDone)
		c.sessionDone = nil
	}
	c.socket = nil
	c.activity = nil
	closing := c.closing
	if c.closeCause != nil {
		err = c.closeCause
		c.closeCause = nil
	}
	c.mu.Unlock()

	if closing {
		c.setState(StateDisconnected)
		return
	}
	if !c.cfg.AutoReconnect {
		c.setState(StateDisconnected)
		c.emitError(fmt.Errorf("stream: connection lost: %w", err))
		return
	}
	c.logger.Warn("stream connection lost, reconnecting", "error", err)
	c.setState(StateReconnecting)
	go c.reconnectLoop()
}

// reconnectLoop dials with capped exponential backoff until a session comes
// up, the connection is closed, or the attempt budget is spent. Exhaustion
// is reported exactly once.
func (c *Conn) reconnectLoop() {
	var lastErr error
	attempts := c.cfg.MaxReconnectAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		c.sleeper(c.strategy.Delay(attempt))
		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()
		if closing {
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateConnecting)
		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		sock, err := c.dialer.DialContext(ctx, c.dialURL(), c.dialHeader())
		cancel()
		if err != nil {
			lastErr = err
			c.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
			c.setState(StateReconnecting)
			continue
		}
		if err := c.startSession(sock); err != nil {
			lastErr = err
			c.setState(StateReconnecting)
			continue
		}
		c.logger.Info("stream reconnected", "attempts", attempt)
		return
	}

	c.setState(StateDisconnected)
	c.emitError(&ReconnectsExhaustedError{Attempts: attempts, Last: lastErr})
}

func (c *Conn) emitError(err error) {
	if c.errHandlerFn != nil {
		c.errHandlerFn(err)
		return
	}
	c.logger.Error("stream failure", "error", err)
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fns := make([]func(State), 0, len(c.stateListeners))
	for _, fn := range c.stateListeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (c *Conn) dialURL() string {
	return c.cfg.URL
}

func (c *Conn) dialHeader() http.Header {
	header := http.Header{}
	if token := strings.TrimSpace(c.cfg.Token); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}
