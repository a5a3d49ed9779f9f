package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/protocol"
)

type presenceEntry struct {
	user domain.User
	conn core.SignalConnection
}

// Registry is the process-wide presence map from identity to its live
// signaling connection. Entries are pure in-memory state: created on
// register, destroyed the moment the connection goes away. Every mutation
// broadcasts a fresh snapshot to all registered connections under the same
// critical section, so no receiver can observe a torn update.
type Registry struct {
	mu      sync.Mutex
	entries map[domain.Identity]*presenceEntry
	byConn  map[core.SignalConnection]domain.Identity
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[domain.Identity]*presenceEntry),
		byConn:  make(map[core.SignalConnection]domain.Identity),
	}
}

// Register binds identity to conn, replacing any prior entry for that
// identity. A replaced connection is closed: a reconnect always wins over
// its stale predecessor.
func (r *Registry) Register(identity domain.Identity, conn core.SignalConnection, user domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[identity]; ok && old.conn != conn {
		delete(r.byConn, old.conn)
		old.conn.Close()
		log.Info().Str("module", "app.registry").Str("identity", string(identity)).Msg("replaced stale connection")
	}
	r.entries[identity] = &presenceEntry{user: user, conn: conn}
	r.byConn[conn] = identity
	log.Info().Str("module", "app.registry").Str("identity", string(identity)).Str("username", user.Username).Msg("registered")

	r.broadcastLocked()
}

// Unregister removes every entry bound to conn, used on disconnect
// regardless of cause. No-op for an unknown connection.
func (r *Registry) Unregister(conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byConn[conn]
	if !ok {
		return
	}
	delete(r.byConn, conn)
	// Only drop the identity if it still points at this connection; a
	// reconnect may already own the slot.
	if e, ok := r.entries[identity]; ok && e.conn == conn {
		delete(r.entries, identity)
	}
	log.Info().Str("module", "app.registry").Str("identity", string(identity)).Msg("unregistered")

	r.broadcastLocked()
}

// Resolve maps an identity to its live connection.
func (r *Registry) Resolve(identity domain.Identity) (core.SignalConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[identity]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// IdentityOf is the reverse lookup used to stamp From on inbound frames.
func (r *Registry) IdentityOf(conn core.SignalConnection) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConn[conn]
	return id, ok
}

// Snapshot returns the current presence set ordered by identity. Receivers
// must replace, not merge, their local view.
func (r *Registry) Snapshot() []protocol.PresenceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []protocol.PresenceInfo {
	out := make([]protocol.PresenceInfo, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, protocol.PresenceInfo{Identity: id, User: e.user})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (r *Registry) broadcastLocked() {
	env := &protocol.Envelope{
		Type:     protocol.TypePresenceSnapshot,
		Snapshot: r.snapshotLocked(),
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("snapshot encode")
		return
	}
	for id, e := range r.entries {
		if err := e.conn.TrySend(frame); err != nil {
			// Slow or dying consumer. At-least-once only: the next
			// mutation re-sends a full snapshot anyway.
			log.Warn().Err(err).Str("module", "app.registry").Str("identity", string(id)).Msg("snapshot dropped")
		}
	}
}
