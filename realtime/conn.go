package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("connection send buffer full")
)

type ConnOptions struct {
	WriteWait      time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// Conn wraps a websocket. A single writer goroutine owns every write to the socket,
// so Send is safe for concurrent use and keeps per-connection ordering.
type Conn struct {
	id     string
	UserID int

	ws   *websocket.Conn
	opts ConnOptions
	send chan []byte
	done chan struct{}
	once sync.Once
}

var _ Member = (*Conn)(nil)

// NewConn wraps ws and starts its writer.
func NewConn(ws *websocket.Conn, userID int, opts ConnOptions) *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) ID() string { return c.id }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send queues payload. A client that lets its buffer fill up is disconnected.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.CloseWith(websocket.CloseTryAgainLater, "send buffer full")
		return ErrSlowConsumer
	}
}

// Close closes the connection with a normal closure frame.
func (c *Conn) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith sends a close frame with code and reason, then closes the socket. Only the first call counts.
func (c *Conn) CloseWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.opts.WriteWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// prepareRead limits frame sizes and pushes the read deadline back on every pong.
func (c *Conn) prepareRead() {
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
}

// readFrame blocks until the next text frame.
func (c *Conn) readFrame() ([]byte, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.CloseWith(websocket.CloseGoingAway, "")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.CloseWith(websocket.CloseGoingAway, "")
				return
			}
		}
	}
}
