// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxIdentityLen = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// Identity is the opaque, globally unique handle naming a user. It is
// supplied by the auth collaborator and stable across reconnects.
type Identity string

func (id Identity) Validate() error {
	if len(id) == 0 {
		return ErrIdentityEmpty
	}
	if len(id) > MaxIdentityLen {
		return ErrIdentityTooLong
	}
	return nil
}

// User is the display profile attached to an identity. Username and
// AvatarURL are caller-supplied metadata, not authoritative identity.
type User struct {
	ID        Identity `json:"id"`
	Username  string   `json:"username"`
	AvatarURL string   `json:"avatar_url,omitempty"`
}

// ValidateUsername bounds the display name adapters accept.
func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
