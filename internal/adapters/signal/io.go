package signal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/protocol"
)

const (
	writeWait         = 5 * time.Second
	defaultReadLimit  = 65536
	defaultPingPeriod = 54 * time.Second
)

func (ctl *Controller) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return defaultPingPeriod
}

func (ctl *Controller) writePump(c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(c *WsSignalConn) {
	defer func() {
		// Abnormal or normal close alike: presence drops, peers get a new
		// snapshot, and their own state machines turn the absence into an
		// implicit call-end.
		ctl.Registry.Unregister(c)
		c.Close()
		log.Info().Str("module", "signal").Msg("readPump closed")
	}()

	limit := ctl.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.conn.SetReadLimit(limit)

	readWait := ctl.pingPeriod() * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signal").Msg("readPump read error")
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
		ctl.handleFrame(c, data)
	}
}

func (ctl *Controller) handleFrame(c *WsSignalConn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		// Protocol error: drop the frame, never the connection.
		log.Warn().Err(err).Str("module", "signal").Msg("bad frame")
		return
	}

	switch {
	case env.Type == protocol.TypePresenceRegister:
		ctl.handleRegister(c, env)
	case env.Routable():
		ctl.handleRoute(c, env)
	default:
		// Relay-originated types coming from a client are shape-valid but
		// meaningless here.
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unroutable client frame")
	}
}
