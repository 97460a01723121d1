package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const handshakeTimeout = 10 * time.Second

// Socket is one established stream connection. Implementations must allow
// Close to be called concurrently with a blocked ReadMessage.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes sockets. The websocket implementation is the default;
// tests inject fakes.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Socket, error)
}

// NewDialer returns the websocket-backed dialer.
func NewDialer() Dialer {
	return &wsDialer{dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout}}
}

type wsDialer struct {
	dialer *websocket.Dialer
}

func (d *wsDialer) DialContext(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &wsSocket{conn: conn}, nil
}

// wsSocket serializes writes; the heartbeat goroutine and subscription
// replay may write concurrently.
type wsSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
