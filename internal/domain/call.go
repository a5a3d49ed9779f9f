package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBadMediaKind = errors.New("unknown media kind")
	ErrBadCallID    = errors.New("call id empty")
)

// CallID scopes one call attempt. Generated by the initiator at request
// time and echoed on every signaling message for that attempt.
type CallID string

func NewCallID() CallID { return CallID(uuid.NewString()) }

func (id CallID) Validate() error {
	if id == "" {
		return ErrBadCallID
	}
	return nil
}

// MediaKind selects what the caller wants to send.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Validate() error {
	switch k {
	case MediaAudio, MediaVideo:
		return nil
	}
	return ErrBadMediaKind
}

// CallState is the lifecycle state of one participant's session projection.
// idle is both the initial and the only terminal state.
type CallState string

const (
	CallIdle            CallState = "idle"
	CallOutgoingPending CallState = "outgoing-pending"
	CallIncomingPending CallState = "incoming-pending"
	CallActive          CallState = "active"
)

// Terminal reports whether the state carries no live session.
func (s CallState) Terminal() bool { return s == CallIdle }

// CallSession is one participant's local projection of a call attempt.
// There is no shared record between participants; consistency comes from
// protocol discipline.
type CallSession struct {
	ID        CallID
	Caller    Identity
	Receiver  Identity
	Kind      MediaKind
	State     CallState
	CreatedAt time.Time
}

// Peer returns the other participant from self's point of view.
func (s *CallSession) Peer(self Identity) Identity {
	if s.Caller == self {
		return s.Receiver
	}
	return s.Caller
}

// CallOutcome classifies a finished call attempt for the history store.
type CallOutcome string

const (
	OutcomeCompleted   CallOutcome = "completed"
	OutcomeRejected    CallOutcome = "rejected"
	OutcomeCancelled   CallOutcome = "cancelled"
	OutcomeBusy        CallOutcome = "busy"
	OutcomeUnreachable CallOutcome = "unreachable"
)

// CallRecord is what the history collaborator persists per finished call.
type CallRecord struct {
	Caller    Identity    `json:"caller"`
	Receiver  Identity    `json:"receiver"`
	Kind      MediaKind   `json:"media_kind"`
	StartedAt time.Time   `json:"started_at"`
	Outcome   CallOutcome `json:"outcome"`
}
