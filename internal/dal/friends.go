package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkeye/Ring/internal/domain"
)

var ErrNoSuchRequest = errors.New("friend request not found")

// Friends implements core.FriendStore on the friends table. A row is a
// directed request; status flips to accepted on the target's confirmation.
type Friends struct {
	DB *sql.DB
}

func (s *Friends) Request(ctx context.Context, from, to domain.Identity) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT OR IGNORE INTO friends (requester, target) VALUES (?, ?)",
		string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("error inserting friend request: %w", err)
	}
	return nil
}

func (s *Friends) Respond(ctx context.Context, requester, target domain.Identity, accept bool) error {
	var res sql.Result
	var err error
	if accept {
		res, err = s.DB.ExecContext(ctx,
			"UPDATE friends SET status = 'accepted' WHERE requester = ? AND target = ? AND status = 'pending'",
			string(requester), string(target),
		)
	} else {
		res, err = s.DB.ExecContext(ctx,
			"DELETE FROM friends WHERE requester = ? AND target = ? AND status = 'pending'",
			string(requester), string(target),
		)
	}
	if err != nil {
		return fmt.Errorf("error responding to friend request: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNoSuchRequest
	}
	return nil
}

func (s *Friends) FriendsOf(ctx context.Context, id domain.Identity) ([]domain.User, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT u.id, u.username, u.avatar_url
		FROM friends f
		JOIN users u ON u.id = CASE WHEN f.requester = ? THEN f.target ELSE f.requester END
		WHERE (f.requester = ? OR f.target = ?) AND f.status = 'accepted'
		ORDER BY u.username`,
		string(id), string(id), string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("error querying friends: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *Friends) RequestsFor(ctx context.Context, id domain.Identity) ([]domain.User, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT u.id, u.username, u.avatar_url
		FROM friends f
		JOIN users u ON u.id = f.requester
		WHERE f.target = ? AND f.status = 'pending'
		ORDER BY f.created_at`,
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("error querying friend requests: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
