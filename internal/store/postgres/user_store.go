package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rehan1020/tgbot/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userSelectCols = `id, username, role, notify_enabled, created_at`

// Register inserts the user if unknown; the first row in the table gets
// the admin role. Re-registering refreshes the username but never touches
// the role, so the original admin keeps it.
func (s *UserStore) Register(ctx context.Context, id int64, username string) (domain.User, error) {
	const query = `
		INSERT INTO users (id, username, role)
		VALUES ($1, $2,
			CASE WHEN (SELECT COUNT(*) FROM users) = 0
				THEN 'admin' ELSE 'member' END)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
		RETURNING ` + userSelectCols

	row := s.pool.QueryRow(ctx, query, id, username)
	u, err := scanUserRow(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: register user %d: %w", id, err)
	}
	return u, nil
}

// GetByID fetches a single user.
func (s *UserStore) GetByID(ctx context.Context, id int64) (domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE id = $1`, id)

	u, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %d: %w", id, err)
	}
	return u, nil
}

// List returns all registered users, oldest first.
func (s *UserStore) List(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userSelectCols+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: user rows: %w", err)
	}
	return users, nil
}

// SetNotify flips the notification flag for a user.
func (s *UserStore) SetNotify(ctx context.Context, id int64, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET notify_enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("postgres: set notify for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the number of registered users.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count users: %w", err)
	}
	return n, nil
}

func scanUserRow(row pgx.Row) (domain.User, error) {
	var u domain.User
	var role string

	if err := row.Scan(&u.ID, &u.Username, &role, &u.NotifyEnabled, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.UserRole(role)
	return u, nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
