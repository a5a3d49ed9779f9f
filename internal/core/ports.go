package core

import (
	"context"

	"github.com/dkeye/Ring/internal/domain"
)

// UserStore is the identity/auth collaborator. The relay trusts whatever
// identity it yields for a connection.
type UserStore interface {
	Create(ctx context.Context, username, hashedPassword, avatarURL string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (user *domain.User, hashedPassword string, err error)
	GetByID(ctx context.Context, id domain.Identity) (*domain.User, error)
	Search(ctx context.Context, query string) ([]domain.User, error)
}

// FriendStore keeps the friend graph keyed by identity pairs.
type FriendStore interface {
	Request(ctx context.Context, from, to domain.Identity) error
	Respond(ctx context.Context, requester, target domain.Identity, accept bool) error
	FriendsOf(ctx context.Context, id domain.Identity) ([]domain.User, error)
	RequestsFor(ctx context.Context, id domain.Identity) ([]domain.User, error)
}

// HistoryStore accepts completed-call records and answers per-identity reads.
// Writes are best-effort observations; routing never consults history.
type HistoryStore interface {
	Append(ctx context.Context, rec domain.CallRecord) error
	ByIdentity(ctx context.Context, id domain.Identity, limit int) ([]domain.CallRecord, error)
}
