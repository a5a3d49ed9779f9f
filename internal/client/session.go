package client

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/protocol"
)

// Sender delivers one envelope toward the relay. Implementations are
// best-effort; a failed send surfaces later as a protocol-level timeout or
// disconnect, never as a state transition by itself.
type Sender interface {
	Send(env *protocol.Envelope) error
}

// Negotiator drives the offer/answer/candidate exchange for one call
// attempt. Start runs asynchronously; a permanent failure is reported
// through the factory's fail callback. Close must synchronously release the
// peer connection and stop local capture.
type Negotiator interface {
	Start(ctx context.Context)
	HandleOffer(sdp string)
	HandleAnswer(sdp string)
	HandleCandidate(raw []byte)
	SetTrackEnabled(kind domain.MediaKind, enabled bool)
	Close()
}

// NegotiatorFactory builds a Negotiator for the session once it turns
// active. fail must be safe to call from any goroutine.
type NegotiatorFactory func(sess domain.CallSession, isCaller bool, fail func(domain.CallID, error)) Negotiator

// Session is one participant's call-session state machine. It is a
// single-owner actor: every external trigger becomes an event into one
// serialized queue, and only the Run goroutine mutates state.
type Session struct {
	self   domain.User
	out    Sender
	newNeg NegotiatorFactory
	notify Events

	events chan event

	// actor-owned state below, touched only from Run
	sess *domain.CallSession
	neg  Negotiator

	localAudio  bool
	localVideo  bool
	remoteAudio bool
	remoteVideo bool
}

func NewSession(self domain.User, out Sender, newNeg NegotiatorFactory, notify Events) *Session {
	return &Session{
		self:   self,
		out:    out,
		newNeg: newNeg,
		notify: notify,
		events: make(chan event, 64),
	}
}

// Run consumes the event queue until ctx is cancelled. Cancellation tears
// down any live session the same way a transport loss would.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.terminate(EndDisconnected)
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// State reports the current lifecycle state. Only meaningful from the
// notify callbacks or tests driving the actor directly.
func (s *Session) State() domain.CallState {
	if s.sess == nil {
		return domain.CallIdle
	}
	return s.sess.State
}

// --- external triggers; all of them just enqueue ---

// Call starts an outbound attempt to target.
func (s *Session) Call(target domain.Identity, kind domain.MediaKind) {
	s.post(event{action: actCall, target: target, kind: kind})
}

// Accept answers the pending inbound attempt.
func (s *Session) Accept() { s.post(event{action: actAccept}) }

// Reject declines the pending inbound attempt.
func (s *Session) Reject() { s.post(event{action: actReject}) }

// Hangup cancels an outbound attempt or ends an active call.
func (s *Session) Hangup() { s.post(event{action: actHangup}) }

// SetMediaEnabled toggles a local track and mirrors the change to the peer.
func (s *Session) SetMediaEnabled(kind domain.MediaKind, enabled bool) {
	s.post(event{action: actToggleMedia, kind: kind, enabled: enabled})
}

// HandleFrame feeds one inbound signaling envelope into the actor.
func (s *Session) HandleFrame(env *protocol.Envelope) {
	s.post(event{frame: env})
}

// Disconnected reports transport loss; any non-idle session terminates.
func (s *Session) Disconnected() {
	s.post(event{action: actDisconnected})
}

func (s *Session) negotiationFailed(id domain.CallID, err error) {
	s.post(event{action: actNegotiationFailed, failID: id, failErr: err})
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	default:
		// The queue only fills if the actor is gone; dropping matches the
		// discard policy for stale protocol input.
		log.Warn().Str("module", "client.session").Msg("event queue full, dropping")
	}
}

// --- actor internals ---

func (s *Session) handle(ctx context.Context, ev event) {
	if ev.frame != nil {
		s.handleFrame(ctx, ev.frame)
		return
	}
	switch ev.action {
	case actCall:
		s.handleCall(ctx, ev.target, ev.kind)
	case actAccept:
		s.handleAccept(ctx)
	case actReject:
		s.handleReject()
	case actHangup:
		s.handleHangup()
	case actToggleMedia:
		s.handleToggleMedia(ev.kind, ev.enabled)
	case actNegotiationFailed:
		s.handleNegotiationFailed(ev.failID, ev.failErr)
	case actDisconnected:
		s.terminate(EndDisconnected)
	}
}

func (s *Session) handleCall(ctx context.Context, target domain.Identity, kind domain.MediaKind) {
	if s.sess != nil {
		// One non-terminal session per participant. The caller's own UI is
		// told via state, nothing goes on the wire.
		log.Warn().Str("module", "client.session").Str("state", string(s.sess.State)).Msg("call while busy")
		return
	}
	if kind.Validate() != nil || target.Validate() != nil || target == s.self.ID {
		return
	}

	s.sess = &domain.CallSession{
		ID:        domain.NewCallID(),
		Caller:    s.self.ID,
		Receiver:  target,
		Kind:      kind,
		State:     domain.CallOutgoingPending,
		CreatedAt: time.Now(),
	}
	s.resetMediaFlags(kind)
	s.send(&protocol.Envelope{
		Type:    protocol.TypeCallRequest,
		To:      target,
		CallID:  s.sess.ID,
		Request: &protocol.CallRequestPayload{Kind: kind, Caller: s.self},
	})
	s.changed()
}

func (s *Session) handleAccept(ctx context.Context) {
	if s.sess == nil || s.sess.State != domain.CallIncomingPending {
		return
	}
	s.send(&protocol.Envelope{
		Type:   protocol.TypeCallAccept,
		To:     s.sess.Caller,
		CallID: s.sess.ID,
		Accept: &protocol.CallAcceptPayload{Receiver: s.self},
	})
	s.activate(ctx, false)
}

func (s *Session) handleReject() {
	if s.sess == nil || s.sess.State != domain.CallIncomingPending {
		return
	}
	s.send(&protocol.Envelope{
		Type:   protocol.TypeCallReject,
		To:     s.sess.Caller,
		CallID: s.sess.ID,
	})
	s.terminate(EndHangup)
}

func (s *Session) handleHangup() {
	if s.sess == nil {
		return
	}
	switch s.sess.State {
	case domain.CallOutgoingPending:
		s.send(&protocol.Envelope{
			Type:   protocol.TypeCallCancel,
			To:     s.sess.Receiver,
			CallID: s.sess.ID,
		})
	case domain.CallIncomingPending:
		s.handleReject()
		return
	case domain.CallActive:
		s.send(&protocol.Envelope{
			Type:   protocol.TypeCallEnd,
			To:     s.sess.Peer(s.self.ID),
			CallID: s.sess.ID,
		})
	}
	s.terminate(EndHangup)
}

func (s *Session) handleToggleMedia(kind domain.MediaKind, enabled bool) {
	switch kind {
	case domain.MediaAudio:
		s.localAudio = enabled
	case domain.MediaVideo:
		s.localVideo = enabled
	default:
		return
	}
	if s.sess == nil || s.sess.State != domain.CallActive {
		return
	}
	if s.neg != nil {
		s.neg.SetTrackEnabled(kind, enabled)
	}
	// Best-effort mirror; no callId needed, only one active session exists.
	s.send(&protocol.Envelope{
		Type:  protocol.TypeMediaState,
		To:    s.sess.Peer(s.self.ID),
		Media: &protocol.MediaStatePayload{Kind: kind, Enabled: enabled},
	})
}

func (s *Session) handleNegotiationFailed(id domain.CallID, err error) {
	if s.sess == nil || s.sess.ID != id {
		return
	}
	log.Error().Err(err).Str("module", "client.session").Str("call_id", string(id)).Msg("negotiation failed")
	// The peer must not be left waiting.
	s.send(&protocol.Envelope{
		Type:   protocol.TypeCallEnd,
		To:     s.sess.Peer(s.self.ID),
		CallID: s.sess.ID,
	})
	s.terminate(EndMediaFailure)
}

func (s *Session) handleFrame(ctx context.Context, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCallRequest:
		s.handleCallRequest(env)
		return
	case protocol.TypePresenceSnapshot:
		s.handleSnapshot(env)
		return
	case protocol.TypeMediaState:
		if s.sess != nil && s.sess.State == domain.CallActive && env.From == s.sess.Peer(s.self.ID) {
			s.setRemoteMedia(env.Media.Kind, env.Media.Enabled)
		}
		return
	}

	// Everything below is scoped to the current attempt. An unknown or
	// stale callId is a no-op, never an error.
	if s.sess == nil || env.CallID != s.sess.ID {
		log.Debug().Str("module", "client.session").Str("type", string(env.Type)).Msg("stale call_id, dropped")
		return
	}

	switch env.Type {
	case protocol.TypeCallAccept:
		if s.sess.State == domain.CallOutgoingPending {
			s.activate(ctx, true)
		}
	case protocol.TypeCallReject:
		if s.sess.State == domain.CallOutgoingPending {
			s.terminate(EndRejected)
		}
	case protocol.TypeCallBusy:
		if s.sess.State == domain.CallOutgoingPending {
			s.terminate(EndBusy)
		}
	case protocol.TypeUnreachable:
		s.terminate(EndUnreachable)
	case protocol.TypeCallCancel:
		// The cancel may cross our accept on the wire, landing after the
		// session turned active. The caller is already gone either way, so
		// a matching cancel is terminal from any state.
		s.terminate(EndCancelled)
	case protocol.TypeCallEnd:
		if s.sess.State == domain.CallActive {
			s.terminate(EndRemote)
		}
	case protocol.TypeSDPOffer:
		if s.sess.State == domain.CallActive && s.neg != nil && s.sess.Caller != s.self.ID {
			s.neg.HandleOffer(env.Description.SDP)
		}
	case protocol.TypeSDPAnswer:
		if s.sess.State == domain.CallActive && s.neg != nil && s.sess.Caller == s.self.ID {
			s.neg.HandleAnswer(env.Description.SDP)
		}
	case protocol.TypeICECandidate:
		if s.sess.State == domain.CallActive && s.neg != nil {
			s.neg.HandleCandidate(env.Candidate)
		}
	}
}

// handleCallRequest enforces the busy-guard: while any session is
// non-terminal, a new inbound request is answered with busy and the
// existing session is left untouched. Glare resolves itself through this
// same rule — whichever request lands first owns the incoming slot.
func (s *Session) handleCallRequest(env *protocol.Envelope) {
	if s.sess != nil {
		if env.CallID == s.sess.ID {
			// Duplicate of the attempt we are already handling. A busy
			// reply here would read as terminal to the legitimate caller.
			log.Debug().Str("module", "client.session").Str("call_id", string(env.CallID)).Msg("duplicate request, dropped")
			return
		}
		s.send(&protocol.Envelope{
			Type:   protocol.TypeCallBusy,
			To:     env.From,
			CallID: env.CallID,
			Reason: "busy",
		})
		return
	}

	caller := env.Request.Caller
	caller.ID = env.From
	s.sess = &domain.CallSession{
		ID:        env.CallID,
		Caller:    env.From,
		Receiver:  s.self.ID,
		Kind:      env.Request.Kind,
		State:     domain.CallIncomingPending,
		CreatedAt: time.Now(),
	}
	s.resetMediaFlags(env.Request.Kind)
	s.changed()
	if s.notify.OnIncoming != nil {
		s.notify.OnIncoming(caller, env.Request.Kind)
	}
}

// handleSnapshot replaces the local presence view. If the current peer has
// vanished from the snapshot, its transport is gone: implicit call-end.
func (s *Session) handleSnapshot(env *protocol.Envelope) {
	if s.notify.OnPresence != nil {
		s.notify.OnPresence(env.Snapshot)
	}
	if s.sess == nil {
		return
	}
	peer := s.sess.Peer(s.self.ID)
	for _, e := range env.Snapshot {
		if e.Identity == peer {
			return
		}
	}
	s.terminate(EndDisconnected)
}

// activate is the only path into the active state. The original caller
// owns the first offer; the receiver only ever answers.
func (s *Session) activate(ctx context.Context, isCaller bool) {
	s.sess.State = domain.CallActive
	if s.newNeg != nil {
		s.neg = s.newNeg(*s.sess, isCaller, s.negotiationFailed)
		s.neg.Start(ctx)
	}
	s.changed()
}

// terminate is the single exit path. It synchronously releases the peer
// connection and local capture before reporting idle.
func (s *Session) terminate(reason EndReason) {
	if s.sess == nil {
		return
	}
	if s.neg != nil {
		s.neg.Close()
		s.neg = nil
	}
	s.sess = nil
	s.changed()
	if s.notify.OnEnded != nil {
		s.notify.OnEnded(reason)
	}
}

func (s *Session) resetMediaFlags(kind domain.MediaKind) {
	s.localAudio = true
	s.localVideo = kind == domain.MediaVideo
	s.remoteAudio = true
	s.remoteVideo = kind == domain.MediaVideo
}

func (s *Session) setRemoteMedia(kind domain.MediaKind, enabled bool) {
	switch kind {
	case domain.MediaAudio:
		s.remoteAudio = enabled
	case domain.MediaVideo:
		s.remoteVideo = enabled
	default:
		return
	}
	if s.notify.OnRemoteMedia != nil {
		s.notify.OnRemoteMedia(kind, enabled)
	}
}

func (s *Session) changed() {
	if s.notify.OnState != nil {
		s.notify.OnState(s.State())
	}
}

func (s *Session) send(env *protocol.Envelope) {
	if err := s.out.Send(env); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Str("type", string(env.Type)).Msg("send failed")
	}
}
