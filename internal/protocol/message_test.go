package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Ring/internal/domain"
)

// TestValidate checks the per-type shape rules on the envelope.
func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		env     Envelope
		wantErr error
	}{
		{
			name: "register ok",
			env: Envelope{
				Type:     TypePresenceRegister,
				Register: &RegisterPayload{Identity: "alice"},
			},
		},
		{
			name:    "register without payload",
			env:     Envelope{Type: TypePresenceRegister},
			wantErr: ErrMissingPayload,
		},
		{
			name: "call request ok",
			env: Envelope{
				Type:    TypeCallRequest,
				To:      "bob",
				CallID:  "c-1",
				Request: &CallRequestPayload{Kind: domain.MediaAudio},
			},
		},
		{
			name: "call request without target",
			env: Envelope{
				Type:    TypeCallRequest,
				CallID:  "c-1",
				Request: &CallRequestPayload{Kind: domain.MediaAudio},
			},
			wantErr: ErrMissingTarget,
		},
		{
			name: "call request with bad kind",
			env: Envelope{
				Type:    TypeCallRequest,
				To:      "bob",
				CallID:  "c-1",
				Request: &CallRequestPayload{Kind: "screenshare"},
			},
			wantErr: domain.ErrBadMediaKind,
		},
		{
			name:    "accept without payload",
			env:     Envelope{Type: TypeCallAccept, To: "alice", CallID: "c-1"},
			wantErr: ErrMissingPayload,
		},
		{
			name:    "reject without call id",
			env:     Envelope{Type: TypeCallReject, To: "alice"},
			wantErr: domain.ErrBadCallID,
		},
		{
			name: "offer with empty sdp",
			env: Envelope{
				Type:        TypeSDPOffer,
				To:          "bob",
				CallID:      "c-1",
				Description: &Description{Kind: "offer"},
			},
			wantErr: ErrEmptySDP,
		},
		{
			name: "answer ok",
			env: Envelope{
				Type:        TypeSDPAnswer,
				To:          "alice",
				CallID:      "c-1",
				Description: &Description{Kind: "answer", SDP: "v=0..."},
			},
		},
		{
			name:    "candidate without body",
			env:     Envelope{Type: TypeICECandidate, To: "bob", CallID: "c-1"},
			wantErr: ErrEmptyCandidate,
		},
		{
			name: "candidate ok",
			env: Envelope{
				Type:      TypeICECandidate,
				To:        "bob",
				CallID:    "c-1",
				Candidate: json.RawMessage(`{"candidate":"candidate:1"}`),
			},
		},
		{
			name: "media state ok",
			env: Envelope{
				Type:  TypeMediaState,
				To:    "bob",
				Media: &MediaStatePayload{Kind: domain.MediaVideo, Enabled: false},
			},
		},
		{
			name:    "unknown type",
			env:     Envelope{Type: "call-hold"},
			wantErr: ErrUnknownType,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// TestDecode verifies that malformed frames are rejected and well-formed
// ones round-trip through the wire format.
func TestDecode(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("Decode accepted malformed JSON")
	}
	if _, err := Decode([]byte(`{"type":"no-such-type"}`)); err == nil {
		t.Fatal("Decode accepted unknown type")
	}

	in := &Envelope{
		Type:    TypeCallRequest,
		To:      "bob",
		CallID:  "c-42",
		Request: &CallRequestPayload{Kind: domain.MediaVideo, Caller: domain.User{ID: "alice", Username: "Alice"}},
	}
	frame, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Type != in.Type || out.To != in.To || out.CallID != in.CallID {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.Request == nil || out.Request.Kind != domain.MediaVideo || out.Request.Caller.Username != "Alice" {
		t.Fatalf("payload mismatch: %+v", out.Request)
	}
}

// TestRoutable pins down which types the relay forwards.
func TestRoutable(t *testing.T) {
	routable := []Type{
		TypeCallRequest, TypeCallAccept, TypeCallReject, TypeCallCancel,
		TypeCallEnd, TypeCallBusy, TypeSDPOffer, TypeSDPAnswer,
		TypeICECandidate, TypeMediaState,
	}
	for _, typ := range routable {
		if !(&Envelope{Type: typ}).Routable() {
			t.Errorf("%s should be routable", typ)
		}
	}
	for _, typ := range []Type{TypePresenceRegister, TypePresenceSnapshot, TypeUnreachable} {
		if (&Envelope{Type: typ}).Routable() {
			t.Errorf("%s should not be routable", typ)
		}
	}
}
