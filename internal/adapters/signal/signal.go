// Package signal is the WebSocket side of the relay: it owns transport
// connections, feeds inbound frames to the router, and tears presence down
// when a connection dies.
package signal

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/app"
	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Controller struct {
	Registry *app.Registry
	Router   *app.Router

	// Zero values fall back to the defaults in io.go.
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(reg *app.Registry, router *app.Router) *Controller {
	return &Controller{Registry: reg, Router: router}
}

// WsSignalConn is one client's transport connection. Writes go through a
// buffered channel so a slow consumer backpressures instead of blocking
// the relay.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool

	// authIdentity is the session identity the auth collaborator attached
	// to the HTTP upgrade, empty for anonymous connections.
	authIdentity domain.Identity
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection's pumps.
// Each connection gets a single read loop, so per-connection message order
// is preserved end to end.
func (ctl *Controller) HandleSignal(c *gin.Context) {
	authID := domain.Identity(c.GetString("identity"))
	log.Info().Str("module", "signal").Str("identity", string(authID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:         ws,
		send:         make(chan core.Frame, 32),
		authIdentity: authID,
	}

	go ctl.writePump(conn)
	go ctl.readPump(conn)
}
