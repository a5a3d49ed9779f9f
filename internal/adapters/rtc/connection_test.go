package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func newTestPair(t *testing.T) (*Connection, *Connection) {
	t.Helper()
	caller, err := NewConnection(DefaultConfig(nil), "c-test")
	if err != nil {
		t.Fatalf("caller: %v", err)
	}
	callee, err := NewConnection(DefaultConfig(nil), "c-test")
	if err != nil {
		caller.Close()
		t.Fatalf("callee: %v", err)
	}
	t.Cleanup(func() {
		caller.Close()
		callee.Close()
	})
	return caller, callee
}

func hostCandidate() webrtc.ICECandidateInit {
	mid := "0"
	var line uint16
	return webrtc.ICECandidateInit{
		Candidate:     "candidate:2442523459 1 udp 2122260223 127.0.0.1 50000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &line,
	}
}

// Candidates that arrive before the remote description must be held back
// and applied, in order, once it lands.
func TestCandidateBufferedUntilRemoteDescription(t *testing.T) {
	caller, callee := newTestPair(t)

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "t",
	)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if _, err := caller.AddLocalTrack(track); err != nil {
		t.Fatalf("AddLocalTrack: %v", err)
	}

	if err := callee.AddICECandidate(hostCandidate()); err != nil {
		t.Fatalf("early candidate: %v", err)
	}
	callee.mu.Lock()
	buffered := len(callee.pending)
	callee.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("pending = %d, want 1", buffered)
	}

	offer, err := caller.CreateAndSetOffer()
	if err != nil {
		t.Fatalf("CreateAndSetOffer: %v", err)
	}
	answer, err := callee.ApplyOfferAndCreateAnswer(*offer)
	if err != nil {
		t.Fatalf("ApplyOfferAndCreateAnswer: %v", err)
	}

	callee.mu.Lock()
	remoteSet, left := callee.remoteSet, len(callee.pending)
	callee.mu.Unlock()
	if !remoteSet {
		t.Fatal("remote description not marked set")
	}
	if left != 0 {
		t.Fatalf("pending not flushed: %d left", left)
	}

	if err := caller.ApplyAnswer(*answer); err != nil {
		t.Fatalf("ApplyAnswer: %v", err)
	}

	// Late candidates now apply directly.
	if err := caller.AddICECandidate(hostCandidate()); err != nil {
		t.Fatalf("late candidate: %v", err)
	}
}

func TestCandidateAfterCloseIsDropped(t *testing.T) {
	conn, err := NewConnection(DefaultConfig(nil), "c-closed")
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	conn.Close()

	if err := conn.AddICECandidate(hostCandidate()); err != nil {
		t.Fatalf("candidate after close: %v", err)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.pending) != 0 {
		t.Fatal("closed connection buffered a candidate")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn, err := NewConnection(DefaultConfig(nil), "c-idem")
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	conn.Close()
	conn.Close()
}
