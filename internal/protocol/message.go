// Package protocol defines the signaling messages exchanged between
// endpoints and the relay. Every message is one JSON envelope with a type
// tag; payload fields are typed per variant and validated at the boundary.
// A malformed envelope is a protocol error: the receiver drops it and keeps
// the connection alive.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Ring/internal/domain"
)

type Type string

const (
	TypePresenceRegister Type = "presence-register"
	TypePresenceSnapshot Type = "presence-snapshot"
	TypeCallRequest      Type = "call-request"
	TypeCallAccept       Type = "call-accept"
	TypeCallReject       Type = "call-reject"
	TypeCallCancel       Type = "call-cancel"
	TypeCallEnd          Type = "call-end"
	TypeCallBusy         Type = "call-busy-error"
	TypeUnreachable      Type = "target-unreachable"
	TypeSDPOffer         Type = "sdp-offer"
	TypeSDPAnswer        Type = "sdp-answer"
	TypeICECandidate     Type = "ice-candidate"
	TypeMediaState       Type = "media-state"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrMissingPayload = errors.New("missing payload")
	ErrMissingTarget  = errors.New("missing target identity")
	ErrEmptySDP       = errors.New("empty session description")
	ErrEmptyCandidate = errors.New("empty ice candidate")
)

// PresenceInfo is one entry of a presence snapshot.
type PresenceInfo struct {
	Identity domain.Identity `json:"identity"`
	User     domain.User     `json:"user"`
}

// RegisterPayload announces a connection's identity and display profile.
type RegisterPayload struct {
	Identity domain.Identity `json:"identity"`
	User     domain.User     `json:"user"`
}

// CallRequestPayload carries what the receiver needs to render the attempt.
type CallRequestPayload struct {
	Kind   domain.MediaKind `json:"media_kind"`
	Caller domain.User      `json:"caller"`
}

// CallAcceptPayload carries the receiver's display profile back to the caller.
type CallAcceptPayload struct {
	Receiver domain.User `json:"receiver"`
}

// Description is an opaque SDP blob plus its kind ("offer" or "answer").
type Description struct {
	Kind string `json:"kind"`
	SDP  string `json:"sdp"`
}

// MediaStatePayload mirrors a local track toggle to the peer. Best-effort:
// loss only affects presentation.
type MediaStatePayload struct {
	Kind    domain.MediaKind `json:"kind"`
	Enabled bool             `json:"enabled"`
}

// Envelope is the wire frame. From is stamped by the relay from the
// connection's registered identity; a client-supplied From is overwritten.
// At most one payload pointer is set, matching Type.
type Envelope struct {
	Type   Type            `json:"type"`
	From   domain.Identity `json:"from,omitempty"`
	To     domain.Identity `json:"to,omitempty"`
	CallID domain.CallID   `json:"call_id,omitempty"`
	Reason string          `json:"reason,omitempty"`

	Register    *RegisterPayload    `json:"register,omitempty"`
	Snapshot    []PresenceInfo      `json:"snapshot,omitempty"`
	Request     *CallRequestPayload `json:"request,omitempty"`
	Accept      *CallAcceptPayload  `json:"accept,omitempty"`
	Description *Description        `json:"description,omitempty"`
	Candidate   json.RawMessage     `json:"candidate,omitempty"`
	Media       *MediaStatePayload  `json:"media,omitempty"`
}

// Routable reports whether the relay forwards this envelope to env.To.
// presence-register is consumed by the relay, presence-snapshot and
// target-unreachable are only ever produced by it.
func (e *Envelope) Routable() bool {
	switch e.Type {
	case TypeCallRequest, TypeCallAccept, TypeCallReject, TypeCallCancel,
		TypeCallEnd, TypeCallBusy, TypeSDPOffer, TypeSDPAnswer,
		TypeICECandidate, TypeMediaState:
		return true
	}
	return false
}

// Validate checks the envelope shape for its type. It does not check call
// lifecycle; that is the endpoints' job.
func (e *Envelope) Validate() error {
	switch e.Type {
	case TypePresenceRegister:
		if e.Register == nil {
			return ErrMissingPayload
		}
		return e.Register.Identity.Validate()
	case TypePresenceSnapshot:
		return nil
	case TypeCallRequest:
		if e.Request == nil {
			return ErrMissingPayload
		}
		if err := e.Request.Kind.Validate(); err != nil {
			return err
		}
		return e.routableShape()
	case TypeCallAccept:
		if e.Accept == nil {
			return ErrMissingPayload
		}
		return e.routableShape()
	case TypeCallReject, TypeCallCancel, TypeCallEnd, TypeCallBusy:
		return e.routableShape()
	case TypeUnreachable:
		return e.CallID.Validate()
	case TypeSDPOffer, TypeSDPAnswer:
		if e.Description == nil || e.Description.SDP == "" {
			return ErrEmptySDP
		}
		return e.routableShape()
	case TypeICECandidate:
		if len(e.Candidate) == 0 {
			return ErrEmptyCandidate
		}
		return e.routableShape()
	case TypeMediaState:
		if e.Media == nil {
			return ErrMissingPayload
		}
		if err := e.Media.Kind.Validate(); err != nil {
			return err
		}
		if err := e.To.Validate(); err != nil {
			return ErrMissingTarget
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
}

func (e *Envelope) routableShape() error {
	if err := e.To.Validate(); err != nil {
		return ErrMissingTarget
	}
	return e.CallID.Validate()
}

// Decode parses and validates one wire frame.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", env.Type, err)
	}
	return &env, nil
}

// Encode marshals an envelope. Marshalling a well-formed envelope cannot
// fail, so errors surface as a nil frame the sender drops.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}
