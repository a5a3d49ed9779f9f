// Package client is the endpoint side of the signaling protocol: a
// websocket transport, the call-session state machine, and the WebRTC
// negotiation engine behind it.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/protocol"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
)

var ErrClientClosed = errors.New("client closed")

// Client owns one websocket connection to the relay and the session actor
// bound to it. Run drives both until the transport drops or ctx ends.
type Client struct {
	self domain.User
	conn *websocket.Conn
	sess *Session

	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Dial connects to the relay's signaling endpoint and wires a session
// backed by the negotiation engine. The session is not registered yet; Run
// does that once the pumps are up.
func Dial(ctx context.Context, wsURL string, self domain.User, source MediaSource, rtcCfg webrtc.Configuration, notify Events) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		self: self,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	c.sess = NewSession(self, c, NewEngineFactory(c, source, rtcCfg), notify)
	return c, nil
}

// Session exposes the call-session state machine for user actions.
func (c *Client) Session() *Session { return c.sess }

// Send implements Sender. A full outbound queue means the transport is
// stalled; the frame is dropped rather than blocking the session actor.
func (c *Client) Send(env *protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("outbound queue full")
	}
}

// Run registers, then pumps frames until the connection or ctx dies. It
// always returns with the session terminated and the socket closed.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		c.sess.Run(ctx)
	}()

	err := c.Send(&protocol.Envelope{
		Type:     protocol.TypePresenceRegister,
		Register: &protocol.RegisterPayload{Identity: c.self.ID, User: c.self},
	})
	if err == nil {
		err = c.readLoop()
	}

	cancel()
	c.Close()
	wg.Wait()
	return err
}

func (c *Client) readLoop() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad frame, dropped")
			continue
		}
		c.sess.HandleFrame(env)
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("write failed")
				return
			}
		}
	}
}

// Close tears down the transport. Run unblocks with a read error and
// terminates the session.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}
