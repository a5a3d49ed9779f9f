package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/adapters/rtc"
	"github.com/dkeye/Ring/internal/core"
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/protocol"
)

var (
	ErrPeerConnectionLost = errors.New("peer connection lost")
	ErrEngineClosed       = errors.New("negotiation engine closed")
)

// Engine runs the offer/answer/candidate exchange for one call attempt on
// its own goroutine. Remote descriptions and candidates arriving before the
// engine finished acquiring media simply wait in the command queue, so the
// session actor never blocks on media setup.
type Engine struct {
	sess     domain.CallSession
	peer     domain.Identity
	isCaller bool

	out    Sender
	source MediaSource
	rtcCfg webrtc.Configuration
	fail   func(domain.CallID, error)

	cmds   chan negCmd
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	conn  core.MediaConnection
	media *LocalMedia
}

type negKind int

const (
	cmdOffer negKind = iota
	cmdAnswer
	cmdCandidate
)

type negCmd struct {
	kind negKind
	sdp  string
	raw  []byte
}

// NewEngineFactory binds the collaborators every call attempt shares. The
// returned factory is what the session actor invokes on activation.
func NewEngineFactory(out Sender, source MediaSource, cfg webrtc.Configuration) NegotiatorFactory {
	return func(sess domain.CallSession, isCaller bool, fail func(domain.CallID, error)) Negotiator {
		peer := sess.Caller
		if isCaller {
			peer = sess.Receiver
		}
		return &Engine{
			sess:     sess,
			peer:     peer,
			isCaller: isCaller,
			out:      out,
			source:   source,
			rtcCfg:   cfg,
			fail:     fail,
			cmds:     make(chan negCmd, 16),
			done:     make(chan struct{}),
		}
	}
}

func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

func (e *Engine) HandleOffer(sdp string)  { e.post(negCmd{kind: cmdOffer, sdp: sdp}) }
func (e *Engine) HandleAnswer(sdp string) { e.post(negCmd{kind: cmdAnswer, sdp: sdp}) }
func (e *Engine) HandleCandidate(raw []byte) {
	e.post(negCmd{kind: cmdCandidate, raw: append([]byte(nil), raw...)})
}

func (e *Engine) post(cmd negCmd) {
	select {
	case <-e.done:
	case e.cmds <- cmd:
	default:
		log.Warn().Str("module", "client.rtc").Str("call_id", string(e.sess.ID)).Msg("command queue full, dropping")
	}
}

// SetTrackEnabled toggles the local feed without renegotiation; a muted
// track keeps its sender but stops emitting packets.
func (e *Engine) SetTrackEnabled(kind domain.MediaKind, enabled bool) {
	e.mu.Lock()
	media := e.media
	e.mu.Unlock()
	if media != nil {
		media.SetEnabled(kind, enabled)
	}
}

// Close synchronously releases the peer connection and stops local capture.
// Safe to call from any goroutine and more than once.
func (e *Engine) Close() {
	e.once.Do(func() { close(e.done) })

	e.mu.Lock()
	conn, media := e.conn, e.media
	e.conn, e.media = nil, nil
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if media != nil {
		media.Close()
	}
}

func (e *Engine) run(ctx context.Context) {
	conn, _, err := e.setup(ctx)
	if err != nil {
		e.Close()
		if !errors.Is(err, ErrEngineClosed) {
			e.fail(e.sess.ID, err)
		}
		return
	}

	if e.isCaller {
		offer, err := conn.CreateAndSetOffer()
		if err != nil {
			e.Close()
			e.fail(e.sess.ID, err)
			return
		}
		e.sendDescription(protocol.TypeSDPOffer, "offer", offer.SDP)
	}

	for {
		select {
		case <-ctx.Done():
			e.Close()
			return
		case <-e.done:
			return
		case cmd := <-e.cmds:
			if err := e.apply(conn, cmd); err != nil {
				log.Error().Err(err).Str("module", "client.rtc").Str("call_id", string(e.sess.ID)).Msg("negotiation step")
				e.Close()
				e.fail(e.sess.ID, err)
				return
			}
		}
	}
}

func (e *Engine) setup(ctx context.Context) (core.MediaConnection, *LocalMedia, error) {
	media, err := e.source.Acquire(ctx, e.sess.Kind)
	if err != nil {
		return nil, nil, err
	}

	var conn core.MediaConnection
	conn, err = rtc.NewConnection(e.rtcCfg, e.sess.ID)
	if err != nil {
		media.Close()
		return nil, nil, err
	}

	for _, track := range media.Tracks() {
		sender, err := conn.AddLocalTrack(track)
		if err != nil {
			media.Close()
			conn.Close()
			return nil, nil, err
		}
		go drainSender(sender)
	}

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		raw, err := json.Marshal(ci)
		if err != nil {
			return
		}
		e.send(&protocol.Envelope{
			Type:      protocol.TypeICECandidate,
			To:        e.peer,
			CallID:    e.sess.ID,
			Candidate: raw,
		})
	})
	conn.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go drainRemote(ctx, track)
	})
	conn.OnClosed(func() {
		select {
		case <-e.done:
		default:
			e.fail(e.sess.ID, ErrPeerConnectionLost)
		}
	})

	if err := conn.Start(ctx); err != nil {
		media.Close()
		conn.Close()
		return nil, nil, err
	}

	e.mu.Lock()
	select {
	case <-e.done:
		e.mu.Unlock()
		media.Close()
		conn.Close()
		return nil, nil, ErrEngineClosed
	default:
	}
	e.conn, e.media = conn, media
	e.mu.Unlock()
	return conn, media, nil
}

func (e *Engine) apply(conn core.MediaConnection, cmd negCmd) error {
	switch cmd.kind {
	case cmdOffer:
		answer, err := conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  cmd.sdp,
		})
		if err != nil {
			return err
		}
		e.sendDescription(protocol.TypeSDPAnswer, "answer", answer.SDP)
		return nil
	case cmdAnswer:
		return conn.ApplyAnswer(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  cmd.sdp,
		})
	case cmdCandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(cmd.raw, &ci); err != nil {
			// A malformed candidate from the peer is not fatal.
			log.Warn().Err(err).Str("module", "client.rtc").Msg("bad candidate, dropped")
			return nil
		}
		return conn.AddICECandidate(ci)
	}
	return nil
}

func (e *Engine) sendDescription(t protocol.Type, kind, sdp string) {
	e.send(&protocol.Envelope{
		Type:        t,
		To:          e.peer,
		CallID:      e.sess.ID,
		Description: &protocol.Description{Kind: kind, SDP: sdp},
	})
}

func (e *Engine) send(env *protocol.Envelope) {
	if err := e.out.Send(env); err != nil {
		log.Warn().Err(err).Str("module", "client.rtc").Str("type", string(env.Type)).Msg("send failed")
	}
}

// drainSender keeps the RTCP loop alive so interceptors see reports.
func drainSender(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// drainRemote consumes inbound RTP until the track or call ends. Playback
// devices live outside this module.
func drainRemote(ctx context.Context, track *webrtc.TrackRemote) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
