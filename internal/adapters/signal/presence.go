package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/protocol"
)

// handleRegister binds this connection to an identity in the presence
// registry. The registry broadcasts the updated snapshot to everyone,
// including the newcomer, as part of the same critical section.
func (ctl *Controller) handleRegister(c *WsSignalConn, env *protocol.Envelope) {
	identity := c.authIdentity
	if identity == "" {
		// No authenticated session on the upgrade; the auth collaborator
		// is external, so the announced identity is taken at face value.
		identity = env.Register.Identity
	}
	if err := identity.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("register with bad identity")
		return
	}

	user := env.Register.User
	user.ID = identity

	ctl.Registry.Register(identity, c, user)
}
