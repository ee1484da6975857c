package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/luminal-games/driftsync/shared/protocol"
)

// ClientState tracks the connection lifecycle of a Client.
type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnected
	StateError
)

// Client is the observer side of the transport: one connection to the
// host, the same reliable queue / latest-wins mailbox split on the
// outbound path, and a drainable inbound event feed.
//
// Shared fields are protected by mu; the read loop runs on its own
// goroutine.
type Client struct {
	mu        sync.RWMutex
	state     ClientState
	lastError error
	conn      *websocket.Conn

	events   chan Event
	reliable chan []byte

	mailMu  sync.Mutex
	mailbox map[protocol.CoalesceKey][]byte
	kick    chan struct{}

	closed chan struct{}
	once   sync.Once
}

// NewClient creates an unconnected client.
func NewClient() *Client {
	return &Client{
		events:   make(chan Event, eventQueueSize),
		reliable: make(chan []byte, reliableQueueSize),
		mailbox:  make(map[protocol.CoalesceKey][]byte),
		kick:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

// Dial connects to a host at addr (host:port, no scheme) and starts the
// read and write loops.
func (c *Client) Dial(ctx context.Context, addr string) error {
	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/sync", nil)
	if err != nil {
		c.setError(fmt.Errorf("dial %s: %w", addr, err))
		return c.LastError()
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	log.WithField("addr", addr).Info("[network] connected")
	go c.readLoop(conn)
	go c.writeLoop(conn)
	return nil
}

// Close tears the connection down.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closed) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.state != StateError {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	if conn != nil {
		_ = conn.CloseNow()
	}
}

// State returns the connection state.
func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the error that moved the client into StateError.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Drain returns every pending inbound event, non-blocking. The
// observer's tick loop calls this once per frame.
func (c *Client) Drain() []Event {
	return drainChan(c.events)
}

// Send delivers one message to the host under the given class.
func (c *Client) Send(rel protocol.Reliability, msg any) error {
	c.mu.RLock()
	connected := c.conn != nil
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	if rel == protocol.Reliable {
		select {
		case c.reliable <- frame:
			return nil
		default:
			return ErrBackpressure
		}
	}

	key, ok := protocol.Coalesce(msg)
	if !ok {
		select {
		case c.reliable <- frame:
		default:
		}
		return nil
	}
	c.mailMu.Lock()
	c.mailbox[key] = frame
	c.mailMu.Unlock()
	select {
	case c.kick <- struct{}{}:
	default:
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	var readErr error
	for {
		typ, data, err := conn.Read(context.Background())
		if err != nil {
			readErr = err
			break
		}
		if typ != websocket.MessageBinary {
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.WithError(err).Warn("[network] bad frame")
			continue
		}
		select {
		case c.events <- Message{Msg: msg}:
		default:
			log.Warn("[network] inbound queue full, dropping")
		}
	}

	c.mu.Lock()
	stillCurrent := c.conn == conn
	if stillCurrent {
		c.conn = nil
		if c.state != StateError {
			c.state = StateDisconnected
		}
	}
	c.mu.Unlock()
	if stillCurrent {
		log.WithError(readErr).Info("[network] disconnected")
		c.events <- PeerLeft{Err: readErr}
	}
}

func (c *Client) writeLoop(conn *websocket.Conn) {
	write := func(frame []byte) bool {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return conn.Write(ctx, websocket.MessageBinary, frame) == nil
	}

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.reliable:
			if !write(frame) {
				return
			}
		case <-c.kick:
			c.mailMu.Lock()
			frames := make([][]byte, 0, len(c.mailbox))
			for _, f := range c.mailbox {
				frames = append(frames, f)
			}
			c.mailbox = make(map[protocol.CoalesceKey][]byte)
			c.mailMu.Unlock()

			for _, f := range frames {
				if !write(f) {
					return
				}
			}
		}
	}
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}
