package client

import (
	"github.com/dkeye/Ring/internal/domain"
	"github.com/dkeye/Ring/internal/protocol"
)

// EndReason tells the presentation layer why a session went back to idle.
type EndReason string

const (
	EndHangup       EndReason = "hangup"
	EndRejected     EndReason = "rejected"
	EndBusy         EndReason = "busy"
	EndCancelled    EndReason = "cancelled"
	EndRemote       EndReason = "ended"
	EndUnreachable  EndReason = "unreachable"
	EndMediaFailure EndReason = "media-failure"
	EndDisconnected EndReason = "disconnected"
)

// Events are presentation-layer callbacks. All of them fire on the session
// actor goroutine; handlers must not call back into the session
// synchronously.
type Events struct {
	OnState       func(domain.CallState)
	OnIncoming    func(caller domain.User, kind domain.MediaKind)
	OnEnded       func(reason EndReason)
	OnPresence    func([]protocol.PresenceInfo)
	OnRemoteMedia func(kind domain.MediaKind, enabled bool)
}

// event is one serialized input to the session actor. Signaling frames and
// local user actions both arrive through the same queue, so the state
// machine never observes two transitions concurrently.
type event struct {
	// exactly one of these is meaningful
	frame *protocol.Envelope

	action  action
	target  domain.Identity
	kind    domain.MediaKind
	enabled bool

	failID  domain.CallID
	failErr error
}

type action int

const (
	actNone action = iota
	actCall
	actAccept
	actReject
	actHangup
	actToggleMedia
	actNegotiationFailed
	actDisconnected
)
