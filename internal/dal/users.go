package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dkeye/Ring/internal/domain"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUsernameUsed = errors.New("username already taken")
)

// Users implements core.UserStore on the users table.
type Users struct {
	DB *sql.DB
}

func (s *Users) Create(ctx context.Context, username, hashedPassword, avatarURL string) (*domain.User, error) {
	id := domain.Identity(uuid.NewString())
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO users (id, username, password, avatar_url) VALUES (?, ?, ?, ?)",
		string(id), username, hashedPassword, avatarURL,
	)
	if err != nil {
		// unique constraint on username is the common failure here
		return nil, fmt.Errorf("%w: %s", ErrUsernameUsed, username)
	}
	return &domain.User{ID: id, Username: username, AvatarURL: avatarURL}, nil
}

func (s *Users) GetByUsername(ctx context.Context, username string) (*domain.User, string, error) {
	var user domain.User
	var password string
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, username, password, avatar_url FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &password, &user.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, "", fmt.Errorf("error querying user: %w", err)
	}
	return &user, password, nil
}

func (s *Users) GetByID(ctx context.Context, id domain.Identity) (*domain.User, error) {
	var user domain.User
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, username, avatar_url FROM users WHERE id = ?",
		string(id),
	).Scan(&user.ID, &user.Username, &user.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return &user, nil
}

func (s *Users) Search(ctx context.Context, query string) ([]domain.User, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, username, avatar_url FROM users WHERE username LIKE ? ORDER BY username LIMIT 50",
		"%"+query+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("error searching users: %w", err)
	}
	defer rows.Close()

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
