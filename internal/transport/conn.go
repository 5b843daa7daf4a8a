// Package transport owns the WebSocket connection to the console: dialing,
// a send-serializing write path (gorilla/websocket.Conn is not safe for
// concurrent writers), receiving framed messages, and a graceful close.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second

	// sendQueueDepth bounds how many outbound messages may be buffered
	// before Send blocks. Control-plane traffic (AUTH, HEARTBEAT, FRAME)
	// is low-volume enough that this is generous headroom, not a backpressure
	// mechanism.
	sendQueueDepth = 64
)

// BuildURL appends the agent WebSocket path to a configured console URL,
// normalizing http(s) schemes to ws(s).
func BuildURL(consoleURL string) (string, error) {
	u, err := url.Parse(consoleURL)
	if err != nil {
		return "", fmt.Errorf("parsing console URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
		// already a WebSocket scheme
	default:
		return "", fmt.Errorf("unsupported console URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws/agent"
	return u.String(), nil
}

// Conn wraps a single WebSocket connection lifetime. Writes are serialized
// through a dedicated goroutine so that the supervisor's control-plane
// sends, the heartbeat task's sends, and the capture task's FRAME sends can
// all call Send concurrently without racing on the underlying socket.
type Conn struct {
	ws      *websocket.Conn
	sendCh  chan sendRequest
	done    chan struct{}
	closeMu chan struct{} // closed exactly once by Close
}

type sendRequest struct {
	data   []byte
	result chan error
}

// Dial opens a new WebSocket connection to url and starts its write-
// serializing goroutine. The caller owns the returned Conn and must call
// Close when done.
func Dial(ctx context.Context, wsURL string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	ws, _, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial failed: %w", err)
	}

	c := &Conn{
		ws:      ws,
		sendCh:  make(chan sendRequest, sendQueueDepth),
		done:    make(chan struct{}),
		closeMu: make(chan struct{}),
	}
	go c.writeLoop()
	return c, nil
}

// writeLoop is the sole goroutine allowed to call ws.WriteMessage, so
// concurrent Send callers never interleave partial writes.
func (c *Conn) writeLoop() {
	for {
		select {
		case req, ok := <-c.sendCh:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.ws.WriteMessage(websocket.BinaryMessage, req.data)
			req.result <- err
		case <-c.done:
			return
		}
	}
}

// Send writes a fully framed binary message. Safe to call concurrently from
// multiple goroutines.
func (c *Conn) Send(data []byte) error {
	req := sendRequest{data: data, result: make(chan error, 1)}
	select {
	case c.sendCh <- req:
	case <-c.done:
		return fmt.Errorf("transport: connection closed")
	}
	select {
	case err := <-req.result:
		return err
	case <-c.done:
		return fmt.Errorf("transport: connection closed")
	}
}

// Receive blocks for the next binary message. It returns an error if the
// underlying connection is closed or a read error occurs.
func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("transport: reading message: %w", err)
	}
	return data, nil
}

// SetReadDeadline forwards to the underlying connection. The supervisor
// does not call it: it bounds the AUTH handshake wait with its own timer.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// Close performs a graceful WebSocket close handshake and stops the write
// loop. Safe to call more than once.
func (c *Conn) Close() error {
	select {
	case <-c.closeMu:
		return nil
	default:
		close(c.closeMu)
	}

	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent shutting down"),
		time.Now().Add(writeTimeout),
	)
	close(c.done)
	return c.ws.Close()
}
