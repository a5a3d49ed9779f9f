package client

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/protocol"
)

// step runs one queued event on the caller's goroutine so tests observe
// every transition deterministically, without the Run loop.
func (s *Session) step(ctx context.Context) bool {
	select {
	case ev := <-s.events:
		s.handle(ctx, ev)
		return true
	default:
		return false
	}
}

func mustStep(t *testing.T, ctx context.Context, s *Session) {
	t.Helper()
	if !s.step(ctx) {
		t.Fatal("no pending event")
	}
}

type capSender struct {
	envs []*protocol.Envelope
}

func (c *capSender) Send(env *protocol.Envelope) error {
	c.envs = append(c.envs, env)
	return nil
}

func (c *capSender) last(t *testing.T) *protocol.Envelope {
	t.Helper()
	if len(c.envs) == 0 {
		t.Fatal("nothing sent")
	}
	return c.envs[len(c.envs)-1]
}

type toggle struct {
	kind    domain.MediaKind
	enabled bool
}

type stubNeg struct {
	started  bool
	closed   bool
	isCaller bool
	sess     domain.CallSession

	offers     []string
	answers    []string
	candidates [][]byte
	toggles    []toggle
}

func (n *stubNeg) Start(context.Context)       { n.started = true }
func (n *stubNeg) HandleOffer(sdp string)      { n.offers = append(n.offers, sdp) }
func (n *stubNeg) HandleAnswer(sdp string)     { n.answers = append(n.answers, sdp) }
func (n *stubNeg) HandleCandidate(raw []byte)  { n.candidates = append(n.candidates, raw) }
func (n *stubNeg) Close()                      { n.closed = true }
func (n *stubNeg) SetTrackEnabled(kind domain.MediaKind, enabled bool) {
	n.toggles = append(n.toggles, toggle{kind, enabled})
}

// stubFactory hands out stub negotiators and remembers the last one.
type stubFactory struct {
	negs []*stubNeg
}

func (f *stubFactory) factory() NegotiatorFactory {
	return func(sess domain.CallSession, isCaller bool, _ func(domain.CallID, error)) Negotiator {
		n := &stubNeg{isCaller: isCaller, sess: sess}
		f.negs = append(f.negs, n)
		return n
	}
}

func (f *stubFactory) lastNeg(t *testing.T) *stubNeg {
	t.Helper()
	if len(f.negs) == 0 {
		t.Fatal("no negotiator built")
	}
	return f.negs[len(f.negs)-1]
}

type harness struct {
	sess    *Session
	out     *capSender
	factory *stubFactory
	ended   []EndReason
}

func newHarness(self domain.Identity) *harness {
	h := &harness{out: &capSender{}, factory: &stubFactory{}}
	h.sess = NewSession(
		domain.User{ID: self, Username: string(self)},
		h.out,
		h.factory.factory(),
		Events{OnEnded: func(r EndReason) { h.ended = append(h.ended, r) }},
	)
	return h
}

func incomingRequest(from domain.Identity, id domain.CallID, kind domain.MediaKind) *protocol.Envelope {
	return &protocol.Envelope{
		Type:    protocol.TypeCallRequest,
		From:    from,
		CallID:  id,
		Request: &protocol.CallRequestPayload{Kind: kind, Caller: domain.User{ID: from}},
	}
}

func TestCallSendsRequestAndGoesPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness("alice")

	h.sess.Call("bob", domain.MediaAudio)
	mustStep(t, ctx, h.sess)

	if h.sess.State() != domain.CallOutgoingPending {
		t.Fatalf("state = %s, want outgoing-pending", h.sess.State())
	}
	env := h.out.last(t)
	if env.Type != protocol.TypeCallRequest || env.To != "bob" {
		t.Fatalf("sent %s to %s", env.Type, env.To)
	}
	if env.CallID == "" {
		t.Fatal("request without call id")
	}
	if env.Request.Caller.ID != "alice" {
		t.Fatalf("caller payload = %+v", env.Request.Caller)
	}
}

func TestCallWhileBusyIsLocalNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness("alice")

	h.sess.Call("bob", domain.MediaAudio)
	mustStep(t, ctx, h.sess)
	sent := len(h.out.envs)

	h.sess.Call("carol", domain.MediaAudio)
	mustStep(t, ctx, h.sess)

	if h.sess.State() != domain.CallOutgoingPending {
		t.Fatalf("state = %s, want outgoing-pending", h.sess.State())
	}
	if len(h.out.envs) != sent {
		t.Fatal("second call produced wire traffic")
	}
}

func TestIncomingWhileBusyAnswersBusyAndKeepsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness("alice")

	h.sess.Call("bob", domain.MediaAudio)
	mustStep(t, ctx, h.sess)
	outgoing := h.out.last(t).CallID

	h.sess.HandleFrame(incomingRequest("carol", "c-other", domain.MediaAudio))
	mustStep(t, ctx, h.sess)

	env := h.out.last(t)
	if env.Type != protocol.TypeCallBusy || env.To != "carol" || env.CallID != "c-other" {
		t.Fatalf("busy reply = %+v", env)
	}
	if h.sess.State() != domain.CallOutgoingPending {
		t.Fatalf("state = %s, existing attempt was disturbed", h.sess.State())
	}
	if h.sess.sess.ID != outgoing {
		t.Fatal("existing call id changed")
	}
}

func TestAcceptActivatesReceiver(t *testing.T) {
	ctx := context.Background()
	h := newHarness("bob")

	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaVideo))
	mustStep(t, ctx, h.sess)
	if h.sess.State() != domain.CallIncomingPending {
		t.Fatalf("state = %s, want incoming-pending", h.sess.State())
	}

	h.sess.Accept()
	mustStep(t, ctx, h.sess)

	if h.sess.State() != domain.CallActive {
		t.Fatalf("state = %s, want active", h.sess.State())
	}
	env := h.out.last(t)
	if env.Type != protocol.TypeCallAccept || env.To != "alice" || env.CallID != "c-1" {
		t.Fatalf("accept = %+v", env)
	}
	neg := h.factory.lastNeg(t)
	if !neg.started || neg.isCaller {
		t.Fatalf("negotiator started=%v isCaller=%v, want started receiver", neg.started, neg.isCaller)
	}
}

func TestAcceptFrameActivatesCaller(t *testing.T) {
	ctx := context.Background()
	h := newHarness("alice")

	h.sess.Call("bob", domain.MediaAudio)
	mustStep(t, ctx, h.sess)
	id := h.out.last(t).CallID

	h.sess.HandleFrame(&protocol.Envelope{Type: protocol.TypeCallAccept, From: "bob", CallID: id})
	mustStep(t, ctx, h.sess)

	if h.sess.State() != domain.CallActive {
		t.Fatalf("state = %s, want active", h.sess.State())
	}
	neg := h.factory.lastNeg(t)
	if !neg.started || !neg.isCaller {
		t.Fatal("caller-side negotiator not started")
	}
}

// Terminal frames for a different callId than the live attempt must change
// nothing; duplicates of an already finished attempt behave the same way.
func TestStaleCallIDIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newHarness("alice")

	h.sess.Call("bob", domain.MediaAudio)
	mustStep(t, ctx, h.sess)

	for _, typ := range []protocol.Type{
		protocol.TypeCallAccept, protocol.TypeCallReject, protocol.TypeCallBusy,
		protocol.TypeCallCancel, protocol.TypeCallEnd, protocol.TypeUnreachable,
	} {
		h.sess.HandleFrame(&protocol.Envelope{Type: typ, From: "bob", CallID: "stale"})
		mustStep(t, ctx, h.sess)
		if h.sess.State() != domain.CallOutgoingPending {
			t.Fatalf("%s with stale id moved state to %s", typ, h.sess.State())
		}
	}
	if len(h.ended) != 0 {
		t.Fatalf("stale frames ended the session: %v", h.ended)
	}
}

func TestRejectBusyUnreachableTerminateOutgoing(t *testing.T) {
	testCases := []struct {
		typ    protocol.Type
		reason EndReason
	}{
		{protocol.TypeCallReject, EndRejected},
		{protocol.TypeCallBusy, EndBusy},
		{protocol.TypeUnreachable, EndUnreachable},
	}
	for _, tc := range testCases {
		t.Run(string(tc.typ), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness("alice")
			h.sess.Call("bob", domain.MediaAudio)
			mustStep(t, ctx, h.sess)
			id := h.out.last(t).CallID

			h.sess.HandleFrame(&protocol.Envelope{Type: tc.typ, From: "bob", CallID: id})
			mustStep(t, ctx, h.sess)

			if h.sess.State() != domain.CallIdle {
				t.Fatalf("state = %s, want idle", h.sess.State())
			}
			if len(h.ended) != 1 || h.ended[0] != tc.reason {
				t.Fatalf("ended = %v, want [%s]", h.ended, tc.reason)
			}
		})
	}
}

func TestCancelTerminatesIncoming(t *testing.T) {
	ctx := context.Background()
	h := newHarness("bob")

	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
	mustStep(t, ctx, h.sess)
	h.sess.HandleFrame(&protocol.Envelope{Type: protocol.TypeCallCancel, From: "alice", CallID: "c-1"})
	mustStep(t, ctx, h.sess)

	if h.sess.State() != domain.CallIdle {
		t.Fatalf("state = %s, want idle", h.sess.State())
	}
	if len(h.ended) != 1 || h.ended[0] != EndCancelled {
		t.Fatalf("ended = %v, want [cancelled]", h.ended)
	}
}

// A cancel that crossed our accept on the wire lands while we are already
// active. The caller went idle the moment it cancelled, so the late cancel
// is the last word on this attempt and must still tear the session down.
func TestCancelAfterAcceptTerminatesActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness("bob")

	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
	mustStep(t, ctx, h.sess)
	h.sess.Accept()
	mustStep(t, ctx, h.sess)
	if h.sess.State() != domain.CallActive {
		t.Fatalf("state = %s, want active", h.sess.State())
	}

	h.sess.HandleFrame(&protocol.Envelope{Type: protocol.TypeCallCancel, From: "alice", CallID: "c-1"})
	mustStep(t, ctx, h.sess)

	if h.sess.State() != domain.CallIdle {
		t.Fatalf("state = %s, want idle", h.sess.State())
	}
	if len(h.ended) != 1 || h.ended[0] != EndCancelled {
		t.Fatalf("ended = %v, want [cancelled]", h.ended)
	}
	if !h.factory.lastNeg(t).closed {
		t.Fatal("negotiator not released")
	}
}

// TestCancelCrossingAcceptSettlesIdle replays the full race through wired
// sessions: the caller hangs up while the receiver's accept is in flight.
// Both frames are stale for their recipients' new states, yet both parties
// must settle idle with nothing left queued.
func TestCancelCrossingAcceptSettlesIdle(t *testing.T) {
	ctx := context.Background()
	fa, fb := &stubFactory{}, &stubFactory{}
	alice := NewSession(domain.User{ID: "alice"}, &pipe{from: "alice"}, fa.factory(), Events{})
	bob := NewSession(domain.User{ID: "bob"}, &pipe{from: "bob"}, fb.factory(), Events{})
	alice.out.(*pipe).peer = bob
	bob.out.(*pipe).peer = alice

	alice.Call("bob", domain.MediaAudio)
	pumpAll(ctx, alice, bob)
	if bob.State() != domain.CallIncomingPending {
		t.Fatalf("bob = %s, want incoming-pending", bob.State())
	}

	// Both act before either sees the other's frame.
	alice.Hangup()
	bob.Accept()
	pumpAll(ctx, alice, bob)

	if alice.State() != domain.CallIdle {
		t.Fatalf("alice = %s, want idle", alice.State())
	}
	if bob.State() != domain.CallIdle {
		t.Fatalf("bob = %s, want idle", bob.State())
	}
	if !fb.lastNeg(t).closed {
		t.Fatal("bob's negotiator not released")
	}
}

// A replayed request for the attempt we are already handling must not take
// the busy path: the busy reply would read as terminal to the real caller.
func TestDuplicateRequestForLiveCallIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness("bob")

	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
	mustStep(t, ctx, h.sess)
	sent := len(h.out.envs)

	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
	mustStep(t, ctx, h.sess)

	if len(h.out.envs) != sent {
		t.Fatalf("duplicate request produced wire traffic: %+v", h.out.last(t))
	}
	if h.sess.State() != domain.CallIncomingPending {
		t.Fatalf("state = %s, want incoming-pending", h.sess.State())
	}
}

func TestHangupByState(t *testing.T) {
	ctx := context.Background()

	t.Run("outgoing sends cancel", func(t *testing.T) {
		h := newHarness("alice")
		h.sess.Call("bob", domain.MediaAudio)
		mustStep(t, ctx, h.sess)

		h.sess.Hangup()
		mustStep(t, ctx, h.sess)

		if env := h.out.last(t); env.Type != protocol.TypeCallCancel || env.To != "bob" {
			t.Fatalf("sent %+v, want call-cancel to bob", env)
		}
		if h.sess.State() != domain.CallIdle {
			t.Fatalf("state = %s, want idle", h.sess.State())
		}
	})

	t.Run("incoming sends reject", func(t *testing.T) {
		h := newHarness("bob")
		h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
		mustStep(t, ctx, h.sess)

		h.sess.Hangup()
		mustStep(t, ctx, h.sess)

		if env := h.out.last(t); env.Type != protocol.TypeCallReject || env.To != "alice" {
			t.Fatalf("sent %+v, want call-reject to alice", env)
		}
	})

	t.Run("active sends end and releases negotiator", func(t *testing.T) {
		h := newHarness("bob")
		h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
		mustStep(t, ctx, h.sess)
		h.sess.Accept()
		mustStep(t, ctx, h.sess)

		h.sess.Hangup()
		mustStep(t, ctx, h.sess)

		if env := h.out.last(t); env.Type != protocol.TypeCallEnd || env.To != "alice" {
			t.Fatalf("sent %+v, want call-end to alice", env)
		}
		if !h.factory.lastNeg(t).closed {
			t.Fatal("negotiator not released on hangup")
		}
		if h.sess.State() != domain.CallIdle {
			t.Fatalf("state = %s, want idle", h.sess.State())
		}
	})
}

func TestDescriptionRoutingRespectsRoles(t *testing.T) {
	ctx := context.Background()
	h := newHarness("alice")
	h.sess.Call("bob", domain.MediaAudio)
	mustStep(t, ctx, h.sess)
	id := h.out.last(t).CallID
	h.sess.HandleFrame(&protocol.Envelope{Type: protocol.TypeCallAccept, From: "bob", CallID: id})
	mustStep(t, ctx, h.sess)
	neg := h.factory.lastNeg(t)

	// The caller answers nothing; an offer aimed at it is dropped.
	h.sess.HandleFrame(&protocol.Envelope{
		Type: protocol.TypeSDPOffer, From: "bob", CallID: id,
		Description: &protocol.Description{Kind: "offer", SDP: "sdp-o"},
	})
	mustStep(t, ctx, h.sess)
	if len(neg.offers) != 0 {
		t.Fatal("caller consumed an offer")
	}

	h.sess.HandleFrame(&protocol.Envelope{
		Type: protocol.TypeSDPAnswer, From: "bob", CallID: id,
		Description: &protocol.Description{Kind: "answer", SDP: "sdp-a"},
	})
	mustStep(t, ctx, h.sess)
	if len(neg.answers) != 1 || neg.answers[0] != "sdp-a" {
		t.Fatalf("answers = %v", neg.answers)
	}

	cand := json.RawMessage(`{"candidate":"candidate:1"}`)
	h.sess.HandleFrame(&protocol.Envelope{
		Type: protocol.TypeICECandidate, From: "bob", CallID: id, Candidate: cand,
	})
	mustStep(t, ctx, h.sess)
	if len(neg.candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(neg.candidates))
	}
}

func TestMediaToggleForwardsAndMirrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness("bob")
	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaVideo))
	mustStep(t, ctx, h.sess)
	h.sess.Accept()
	mustStep(t, ctx, h.sess)

	h.sess.SetMediaEnabled(domain.MediaVideo, false)
	mustStep(t, ctx, h.sess)

	neg := h.factory.lastNeg(t)
	if len(neg.toggles) != 1 || neg.toggles[0] != (toggle{domain.MediaVideo, false}) {
		t.Fatalf("toggles = %v", neg.toggles)
	}
	env := h.out.last(t)
	if env.Type != protocol.TypeMediaState || env.To != "alice" {
		t.Fatalf("sent %+v, want media-state to alice", env)
	}
	if env.Media.Kind != domain.MediaVideo || env.Media.Enabled {
		t.Fatalf("media payload = %+v", env.Media)
	}
}

func TestRemoteMediaStateOnlyFromPeer(t *testing.T) {
	ctx := context.Background()
	var changes []toggle
	h := newHarness("bob")
	h.sess.notify.OnRemoteMedia = func(kind domain.MediaKind, enabled bool) {
		changes = append(changes, toggle{kind, enabled})
	}
	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
	mustStep(t, ctx, h.sess)
	h.sess.Accept()
	mustStep(t, ctx, h.sess)

	h.sess.HandleFrame(&protocol.Envelope{
		Type: protocol.TypeMediaState, From: "mallory",
		Media: &protocol.MediaStatePayload{Kind: domain.MediaAudio, Enabled: false},
	})
	mustStep(t, ctx, h.sess)
	if len(changes) != 0 {
		t.Fatal("media state from a non-peer was applied")
	}

	h.sess.HandleFrame(&protocol.Envelope{
		Type: protocol.TypeMediaState, From: "alice",
		Media: &protocol.MediaStatePayload{Kind: domain.MediaAudio, Enabled: false},
	})
	mustStep(t, ctx, h.sess)
	if len(changes) != 1 || changes[0] != (toggle{domain.MediaAudio, false}) {
		t.Fatalf("changes = %v", changes)
	}
}

func TestNegotiationFailureEndsCall(t *testing.T) {
	ctx := context.Background()
	h := newHarness("bob")
	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
	mustStep(t, ctx, h.sess)
	h.sess.Accept()
	mustStep(t, ctx, h.sess)

	h.sess.negotiationFailed("c-1", ErrPeerConnectionLost)
	mustStep(t, ctx, h.sess)

	if env := h.out.last(t); env.Type != protocol.TypeCallEnd || env.To != "alice" {
		t.Fatalf("sent %+v, want call-end to alice", env)
	}
	if h.sess.State() != domain.CallIdle {
		t.Fatalf("state = %s, want idle", h.sess.State())
	}
	if len(h.ended) != 1 || h.ended[0] != EndMediaFailure {
		t.Fatalf("ended = %v, want [media-failure]", h.ended)
	}
	if !h.factory.lastNeg(t).closed {
		t.Fatal("negotiator not released")
	}
}

// A failure report for an attempt that already finished must not touch a
// newer session reusing the slot.
func TestLateNegotiationFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness("bob")
	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
	mustStep(t, ctx, h.sess)
	h.sess.Accept()
	mustStep(t, ctx, h.sess)
	h.sess.Hangup()
	mustStep(t, ctx, h.sess)

	h.sess.HandleFrame(incomingRequest("carol", "c-2", domain.MediaAudio))
	mustStep(t, ctx, h.sess)

	h.sess.negotiationFailed("c-1", ErrPeerConnectionLost)
	mustStep(t, ctx, h.sess)

	if h.sess.State() != domain.CallIncomingPending {
		t.Fatalf("state = %s, late failure disturbed the new attempt", h.sess.State())
	}
}

func TestSnapshotWithoutPeerEndsCall(t *testing.T) {
	ctx := context.Background()
	h := newHarness("bob")
	h.sess.HandleFrame(incomingRequest("alice", "c-1", domain.MediaAudio))
	mustStep(t, ctx, h.sess)
	h.sess.Accept()
	mustStep(t, ctx, h.sess)

	// Peer still present: nothing happens.
	h.sess.HandleFrame(&protocol.Envelope{
		Type: protocol.TypePresenceSnapshot,
		Snapshot: []protocol.PresenceInfo{
			{Identity: "alice"}, {Identity: "bob"},
		},
	})
	mustStep(t, ctx, h.sess)
	if h.sess.State() != domain.CallActive {
		t.Fatalf("state = %s after benign snapshot", h.sess.State())
	}

	// Peer gone: implicit call-end.
	h.sess.HandleFrame(&protocol.Envelope{
		Type:     protocol.TypePresenceSnapshot,
		Snapshot: []protocol.PresenceInfo{{Identity: "bob"}},
	})
	mustStep(t, ctx, h.sess)
	if h.sess.State() != domain.CallIdle {
		t.Fatalf("state = %s, want idle", h.sess.State())
	}
	if len(h.ended) != 1 || h.ended[0] != EndDisconnected {
		t.Fatalf("ended = %v, want [disconnected]", h.ended)
	}
	if !h.factory.lastNeg(t).closed {
		t.Fatal("negotiator not released")
	}
}

// pipe delivers a session's outbound envelopes straight into the peer's
// queue, stamping From the way the relay would.
type pipe struct {
	from domain.Identity
	peer *Session
}

func (p *pipe) Send(env *protocol.Envelope) error {
	e := *env
	e.From = p.from
	p.peer.HandleFrame(&e)
	return nil
}

func pumpAll(ctx context.Context, sessions ...*Session) {
	for {
		progressed := false
		for _, s := range sessions {
			for s.step(ctx) {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// TestGlareResolvesToBothIdle wires two sessions back to back and lets them
// call each other simultaneously. Each side busy-guards the other's request
// and each treats the busy answer as terminal, so the storm settles with
// both parties idle and no queued events left.
func TestGlareResolvesToBothIdle(t *testing.T) {
	ctx := context.Background()
	fa, fb := &stubFactory{}, &stubFactory{}
	var alice, bob *Session
	alice = NewSession(domain.User{ID: "alice"}, &pipe{from: "alice"}, fa.factory(), Events{})
	bob = NewSession(domain.User{ID: "bob"}, &pipe{from: "bob"}, fb.factory(), Events{})
	alice.out.(*pipe).peer = bob
	bob.out.(*pipe).peer = alice

	alice.Call("bob", domain.MediaAudio)
	bob.Call("alice", domain.MediaAudio)
	pumpAll(ctx, alice, bob)

	if alice.State() != domain.CallIdle {
		t.Fatalf("alice = %s, want idle", alice.State())
	}
	if bob.State() != domain.CallIdle {
		t.Fatalf("bob = %s, want idle", bob.State())
	}
}

// TestPipedCallLifecycle runs a full accept/hangup exchange between two
// wired sessions.
func TestPipedCallLifecycle(t *testing.T) {
	ctx := context.Background()
	fa, fb := &stubFactory{}, &stubFactory{}
	var aliceEnded, bobEnded []EndReason
	var bob *Session
	alice := NewSession(domain.User{ID: "alice"}, &pipe{from: "alice"}, fa.factory(),
		Events{OnEnded: func(r EndReason) { aliceEnded = append(aliceEnded, r) }})
	bob = NewSession(domain.User{ID: "bob"}, &pipe{from: "bob"}, fb.factory(),
		Events{OnEnded: func(r EndReason) { bobEnded = append(bobEnded, r) }})
	alice.out.(*pipe).peer = bob
	bob.out.(*pipe).peer = alice

	alice.Call("bob", domain.MediaAudio)
	pumpAll(ctx, alice, bob)
	if bob.State() != domain.CallIncomingPending {
		t.Fatalf("bob = %s, want incoming-pending", bob.State())
	}

	bob.Accept()
	pumpAll(ctx, alice, bob)
	if alice.State() != domain.CallActive || bob.State() != domain.CallActive {
		t.Fatalf("states = %s/%s, want active/active", alice.State(), bob.State())
	}
	if !fa.lastNeg(t).isCaller || fb.lastNeg(t).isCaller {
		t.Fatal("offer ownership inverted")
	}

	alice.Hangup()
	pumpAll(ctx, alice, bob)
	if alice.State() != domain.CallIdle || bob.State() != domain.CallIdle {
		t.Fatalf("states = %s/%s, want idle/idle", alice.State(), bob.State())
	}
	if len(aliceEnded) != 1 || aliceEnded[0] != EndHangup {
		t.Fatalf("alice ended = %v", aliceEnded)
	}
	if len(bobEnded) != 1 || bobEnded[0] != EndRemote {
		t.Fatalf("bob ended = %v", bobEnded)
	}
	if !fa.lastNeg(t).closed || !fb.lastNeg(t).closed {
		t.Fatal("negotiators not released on both sides")
	}
}
