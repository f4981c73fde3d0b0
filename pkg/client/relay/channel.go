// Package relay is the client end of the relay websocket: it keeps a
// connection open, announces every new connection with start_chat, and
// delivers decoded server envelopes as events.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/protocol"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

var (
	// ErrNotConnected is returned by Send while no connection is open.
	ErrNotConnected = errors.New("relay not connected")
	// ErrDial wraps failures to establish a connection.
	ErrDial = errors.New("relay dial failed")
)

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens relay connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket. A nil Dialer uses
// websocket.DefaultDialer.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

type EventKind int

const (
	EventOpen EventKind = iota
	EventEnvelope
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventEnvelope:
		return "envelope"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered for every connection change and inbound envelope.
type Event struct {
	Kind     EventKind
	Envelope protocol.Envelope
	Err      error
}

type Config struct {
	URL    string
	Origin string

	// ReconnectDelay is the fixed wait before every reconnect attempt.
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration

	Dialer Dialer
	Logger *slog.Logger

	// After schedules the reconnect wait. Defaults to time.After.
	After func(time.Duration) <-chan time.Time
}

// Channel maintains the relay connection. Retries are unbounded with a fixed
// delay; under a sustained outage every client reconnects on the same beat.
type Channel struct {
	cfg    Config
	logger *slog.Logger
	events chan Event

	mu   sync.Mutex
	conn Conn

	writeMu sync.Mutex
}

func New(cfg Config) (*Channel, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("relay url is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Channel{
		cfg:    cfg,
		logger: cfg.Logger,
		events: make(chan Event, 16),
	}, nil
}

// Events returns the channel's event stream. It is closed when Run returns.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Run connects and reconnects until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	defer close(c.events)

	for {
		err := c.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("relay connection closed; reconnecting", "error", err, "delay", c.cfg.ReconnectDelay)
		if !c.emit(ctx, Event{Kind: EventClosed, Err: err}) {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.cfg.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Channel) serve(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}

	conn, err := c.cfg.Dialer.Dial(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDial, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.setConn(nil)
		_ = conn.Close()
	}()

	if err := c.write(conn, protocol.StartChat{}); err != nil {
		return err
	}
	c.setConn(conn)
	c.logger.Info("relay connected", "url", c.cfg.URL)
	if !c.emit(ctx, Event{Kind: EventOpen}) {
		return ctx.Err()
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		env, err := protocol.DecodeServer(data)
		if err != nil {
			c.logger.Warn("dropping undecodable relay frame", "error", err, "bytes", len(data))
			continue
		}
		if !c.emit(ctx, Event{Kind: EventEnvelope, Envelope: env}) {
			return ctx.Err()
		}
	}
}

// Send writes env on the open connection.
func (c *Channel) Send(env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, env)
}

func (c *Channel) write(conn Conn, env protocol.Envelope) error {
	payload, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Channel) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
