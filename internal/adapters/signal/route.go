package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/protocol"
)

// handleRoute forwards a routable envelope on behalf of this connection.
// A connection that never registered has no identity to stamp as From, so
// its frames are dropped as protocol errors.
func (ctl *Controller) handleRoute(c *WsSignalConn, env *protocol.Envelope) {
	from, ok := ctl.Registry.IdentityOf(c)
	if !ok {
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("frame before register")
		return
	}
	ctl.Router.Route(from, env)
}
