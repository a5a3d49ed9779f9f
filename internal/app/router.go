package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/protocol"
)

// Router is the signaling relay: a pure forwarder. It resolves the target
// identity through the Registry and passes the envelope on verbatim, with
// one exception: From is stamped from the sender's registered identity so a
// client cannot spoof another sender. The router validates nothing about
// call lifecycle; endpoints own that.
type Router struct {
	Registry *Registry
	History  core.HistoryStore

	mu   sync.Mutex
	seen map[domain.CallID]watchedCall
}

// watchedCall is an observation of a call attempt in flight, kept only so
// the router can hand a finished record to the history collaborator. It is
// never consulted for routing and is rebuilt from nothing after a restart.
type watchedCall struct {
	caller    domain.Identity
	receiver  domain.Identity
	kind      domain.MediaKind
	startedAt time.Time
}

func NewRouter(reg *Registry, history core.HistoryStore) *Router {
	return &Router{
		Registry: reg,
		History:  history,
		seen:     make(map[domain.CallID]watchedCall),
	}
}

// Route forwards env from the given sender. Resolution failure synthesizes
// target-unreachable back to the sender and is not retried.
func (r *Router) Route(from domain.Identity, env *protocol.Envelope) {
	env.From = from

	dst, ok := r.Registry.Resolve(env.To)
	if !ok {
		log.Info().Str("module", "app.router").
			Str("from", string(from)).Str("to", string(env.To)).
			Str("type", string(env.Type)).Msg("target unreachable")
		r.observe(env, domain.OutcomeUnreachable)
		r.unreachable(from, env)
		return
	}

	frame, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode for forward")
		return
	}
	if err := dst.TrySend(frame); err != nil {
		// Receiver backpressured or mid-close. Same contract as an absent
		// entry: tell the sender and move on.
		log.Warn().Err(err).Str("module", "app.router").Str("to", string(env.To)).Msg("forward dropped")
		r.unreachable(from, env)
		return
	}

	r.observeForwarded(env)
}

// unreachable tells the sender its target is gone. Envelopes without a
// callId (media-state) are best-effort anyway; a callId-less unreachable
// would not survive the receiving side's validation, so none is sent.
func (r *Router) unreachable(from domain.Identity, env *protocol.Envelope) {
	if env.CallID == "" {
		return
	}
	r.sendTo(from, &protocol.Envelope{
		Type:   protocol.TypeUnreachable,
		CallID: env.CallID,
	})
}

func (r *Router) sendTo(identity domain.Identity, env *protocol.Envelope) {
	conn, ok := r.Registry.Resolve(identity)
	if !ok {
		return
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode synthesized")
		return
	}
	_ = conn.TrySend(frame)
}

// observeForwarded updates the history observation for lifecycle verbs the
// router happened to carry.
func (r *Router) observeForwarded(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCallRequest:
		r.mu.Lock()
		r.seen[env.CallID] = watchedCall{
			caller:    env.From,
			receiver:  env.To,
			kind:      env.Request.Kind,
			startedAt: time.Now(),
		}
		r.mu.Unlock()
	case protocol.TypeCallReject:
		r.observe(env, domain.OutcomeRejected)
	case protocol.TypeCallCancel:
		r.observe(env, domain.OutcomeCancelled)
	case protocol.TypeCallBusy:
		r.observe(env, domain.OutcomeBusy)
	case protocol.TypeCallEnd:
		r.observe(env, domain.OutcomeCompleted)
	}
}

func (r *Router) observe(env *protocol.Envelope, outcome domain.CallOutcome) {
	r.mu.Lock()
	w, ok := r.seen[env.CallID]
	if ok {
		delete(r.seen, env.CallID)
	}
	r.mu.Unlock()
	if !ok || r.History == nil {
		return
	}

	rec := domain.CallRecord{
		Caller:    w.caller,
		Receiver:  w.receiver,
		Kind:      w.kind,
		StartedAt: w.startedAt,
		Outcome:   outcome,
	}
	// Best-effort: history must never stall the routing path.
	callID := env.CallID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.History.Append(ctx, rec); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("call_id", string(callID)).Msg("history append")
		}
	}()
}
